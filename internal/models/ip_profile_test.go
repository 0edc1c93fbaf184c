package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIPProfile_IsBlocked(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := NewIPProfile("10.0.0.1")

	assert.False(t, p.IsBlocked(now))

	until := now.Add(30 * time.Minute)
	p.BlockedUntil = &until
	assert.True(t, p.IsBlocked(now))
	assert.True(t, p.IsBlocked(until.Add(-time.Nanosecond)))
	assert.False(t, p.IsBlocked(until), "block ends when now reaches blocked_until")
}

func TestIPProfile_CloneIsDeep(t *testing.T) {
	now := time.Now()
	until := now.Add(time.Minute)
	p := &IPProfile{
		IP:           "10.0.0.2",
		AttemptTimes: []time.Time{now},
		FailureTimes: []time.Time{now},
		BlockedUntil: &until,
	}

	c := p.Clone()
	c.AttemptTimes[0] = now.Add(time.Hour)
	c.FailureTimes = append(c.FailureTimes, now)
	*c.BlockedUntil = now

	assert.Equal(t, now, p.AttemptTimes[0])
	assert.Len(t, p.FailureTimes, 1)
	assert.Equal(t, until, *p.BlockedUntil)
}

func TestPruneBefore(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	times := []time.Time{base, base.Add(time.Hour), base.Add(2 * time.Hour)}

	assert.Len(t, PruneBefore(times, base.Add(90*time.Minute)), 1)
	assert.Len(t, PruneBefore(times, base), 3)
	assert.Empty(t, PruneBefore(times, base.Add(3*time.Hour)))
}

func TestIPProfile_AttemptsSince(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p := &IPProfile{AttemptTimes: []time.Time{base, base.Add(5 * time.Minute), base.Add(9 * time.Minute)}}

	assert.Equal(t, 3, p.AttemptsSince(base))
	assert.Equal(t, 2, p.AttemptsSince(base.Add(5*time.Minute)))
	assert.Equal(t, 0, p.AttemptsSince(base.Add(10*time.Minute)))
}
