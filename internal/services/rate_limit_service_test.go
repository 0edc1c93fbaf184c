package services_test

import (
	"testing"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRateLimiter() *services.RateLimitService {
	return services.NewRateLimitService(services.RateLimitConfig{
		MaxAttemptsPerHour: 5,
		MaxAttemptsPerDay:  20,
		FailureWindow:      time.Hour,
	}, discardLogger())
}

func TestRateLimitService_RecordAndCheck_AllowsInitialAttempt(t *testing.T) {
	s := newTestRateLimiter()
	p := models.NewIPProfile(testIP)

	d := s.RecordAndCheck(p, businessTime)

	assert.True(t, d.Allow)
	assert.Empty(t, d.Reason)
	assert.Equal(t, 1, p.HourlyWindowCount)
	assert.Equal(t, 1, p.DailyWindowCount)
	assert.Equal(t, businessTime, p.LastAttemptAt)
}

func TestRateLimitService_RecordAndCheck_HourlyLimit(t *testing.T) {
	s := newTestRateLimiter()
	p := models.NewIPProfile(testIP)
	now := businessTime

	for i := 0; i < 5; i++ {
		assert.True(t, s.RecordAndCheck(p, now).Allow, "attempt %d", i+1)
		now = now.Add(time.Minute)
	}

	d := s.RecordAndCheck(p, now)
	assert.False(t, d.Allow)
	assert.Equal(t, models.ReasonRateLimited, d.Reason)
	assert.Equal(t, 5, p.HourlyWindowCount)
	assert.Len(t, p.AttemptTimes, 5, "rejected attempts are not logged")

	// The window slides: an hour after the first attempt one slot frees up
	assert.True(t, s.RecordAndCheck(p, businessTime.Add(time.Hour+time.Second)).Allow)
}

func TestRateLimitService_RecordAndCheck_DailyLimit(t *testing.T) {
	s := newTestRateLimiter()
	p := models.NewIPProfile(testIP)
	now := businessTime

	// Four per hour stays under the hourly limit
	for i := 0; i < 20; i++ {
		assert.True(t, s.RecordAndCheck(p, now).Allow, "attempt %d", i+1)
		now = now.Add(15 * time.Minute)
	}

	d := s.RecordAndCheck(p, now)
	assert.False(t, d.Allow)
	assert.LessOrEqual(t, p.DailyWindowCount, 20)

	// After 24h from the first attempt the oldest entry is pruned
	assert.True(t, s.RecordAndCheck(p, businessTime.Add(24*time.Hour+time.Second)).Allow)
}

func TestRateLimitService_RecordAndCheck_RetryAfterHourly(t *testing.T) {
	s := newTestRateLimiter()
	p := models.NewIPProfile(testIP)

	for i := 0; i < 5; i++ {
		require.True(t, s.RecordAndCheck(p, businessTime.Add(time.Duration(i)*time.Minute)).Allow)
	}

	now := businessTime.Add(5 * time.Minute)
	d := s.RecordAndCheck(p, now)

	require.False(t, d.Allow)
	assert.Equal(t, 55*time.Minute, d.RetryAfter)
	assert.True(t, s.RecordAndCheck(p, now.Add(d.RetryAfter+time.Second)).Allow)
}

func TestRateLimitService_RecordAndCheck_RetryAfterWhenDailyWindowBinds(t *testing.T) {
	s := newTestRateLimiter()
	p := models.NewIPProfile(testIP)

	// One attempt every 70 minutes never fills the hourly window
	now := businessTime
	for i := 0; i < 20; i++ {
		require.True(t, s.RecordAndCheck(p, now).Allow, "attempt %d", i+1)
		now = now.Add(70 * time.Minute)
	}
	now = now.Add(-70 * time.Minute).Add(10 * time.Minute)

	d := s.RecordAndCheck(p, now)
	require.False(t, d.Allow)

	// The first attempt leaves the daily window 24h after it was made
	want := businessTime.Add(24 * time.Hour).Sub(now)
	assert.Equal(t, want, d.RetryAfter)
	assert.Greater(t, d.RetryAfter, time.Hour)

	assert.False(t, s.RecordAndCheck(p, now.Add(d.RetryAfter-time.Second)).Allow)
	assert.True(t, s.RecordAndCheck(p, now.Add(d.RetryAfter+time.Second)).Allow)
}

func TestRateLimitService_RecordFailure_CountsAndCaps(t *testing.T) {
	s := newTestRateLimiter()
	p := models.NewIPProfile(testIP)

	for i := 1; i <= 40; i++ {
		assert.Equal(t, i, s.RecordFailure(p, businessTime.Add(time.Duration(i)*time.Second)))
	}

	assert.Equal(t, 40, p.ConsecutiveFailures)
	assert.Len(t, p.FailureTimes, 32)
}

func TestRateLimitService_RecordFailure_PrunesOldFailures(t *testing.T) {
	s := newTestRateLimiter()
	p := models.NewIPProfile(testIP)

	s.RecordFailure(p, businessTime)
	s.RecordFailure(p, businessTime.Add(2*time.Hour))

	assert.Equal(t, 2, p.ConsecutiveFailures)
	assert.Len(t, p.FailureTimes, 1)
}

func TestRateLimitService_RecordSuccess_ResetsConsecutiveFailures(t *testing.T) {
	s := newTestRateLimiter()
	p := models.NewIPProfile(testIP)
	for i := 0; i < 9; i++ {
		s.RecordFailure(p, businessTime)
	}

	s.RecordSuccess(p)

	assert.Zero(t, p.ConsecutiveFailures)
}
