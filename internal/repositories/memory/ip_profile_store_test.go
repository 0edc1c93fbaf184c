package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func TestIPProfileStore_UpdateCreatesAndPersists(t *testing.T) {
	store := NewIPProfileStore()
	ctx := context.Background()

	err := store.Update(ctx, "10.0.0.1", func(_ context.Context, p *models.IPProfile) error {
		p.ConsecutiveFailures = 3
		p.LastAttemptAt = t0
		return nil
	})
	require.NoError(t, err)

	p, err := store.Get(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.ConsecutiveFailures)
	assert.Equal(t, t0, p.LastAttemptAt)
}

func TestIPProfileStore_UpdateDiscardsOnError(t *testing.T) {
	store := NewIPProfileStore()
	ctx := context.Background()
	boom := errors.New("boom")

	require.NoError(t, store.Update(ctx, "10.0.0.1", func(_ context.Context, p *models.IPProfile) error {
		p.ConsecutiveFailures = 1
		return nil
	}))

	err := store.Update(ctx, "10.0.0.1", func(_ context.Context, p *models.IPProfile) error {
		p.ConsecutiveFailures = 99
		p.AttemptTimes = append(p.AttemptTimes, t0)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	p, err := store.Get(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 1, p.ConsecutiveFailures)
	assert.Empty(t, p.AttemptTimes)
}

func TestIPProfileStore_UpdateExistingUnknownIP(t *testing.T) {
	store := NewIPProfileStore()

	called := false
	err := store.UpdateExisting(context.Background(), "192.0.2.1", func(_ context.Context, p *models.IPProfile) error {
		called = true
		return nil
	})

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.False(t, called)
}

func TestIPProfileStore_ConcurrentUpdatesAreSerialized(t *testing.T) {
	store := NewIPProfileStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Update(ctx, "10.0.0.1", func(_ context.Context, p *models.IPProfile) error {
				p.DailyWindowCount++
				return nil
			})
		}()
	}
	wg.Wait()

	p, err := store.Get(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 100, p.DailyWindowCount)
}

func TestIPProfileStore_GetReturnsCopy(t *testing.T) {
	store := NewIPProfileStore()
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, "10.0.0.1", func(_ context.Context, p *models.IPProfile) error {
		p.AttemptTimes = []time.Time{t0}
		return nil
	}))

	p, err := store.Get(ctx, "10.0.0.1")
	require.NoError(t, err)
	p.AttemptTimes[0] = t0.Add(time.Hour)

	again, err := store.Get(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, t0, again.AttemptTimes[0])
}

func TestIPProfileStore_ListAndCountBlocked(t *testing.T) {
	store := NewIPProfileStore()
	ctx := context.Background()

	block := func(ip string, until time.Time) {
		require.NoError(t, store.Update(ctx, ip, func(_ context.Context, p *models.IPProfile) error {
			p.BlockedUntil = &until
			return nil
		}))
	}
	block("10.0.0.2", t0.Add(20*time.Minute))
	block("10.0.0.1", t0.Add(10*time.Minute))
	block("10.0.0.3", t0.Add(-time.Minute)) // expired

	blocked, err := store.ListBlocked(ctx, t0)
	require.NoError(t, err)
	require.Len(t, blocked, 2)
	assert.Equal(t, "10.0.0.1", blocked[0].IP)
	assert.Equal(t, "10.0.0.2", blocked[1].IP)

	n, err := store.CountBlocked(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestIPProfileStore_SweepIdle(t *testing.T) {
	store := NewIPProfileStore()
	ctx := context.Background()
	now := t0
	cutoff := now.Add(-24 * time.Hour)

	set := func(ip string, last time.Time, blockedUntil *time.Time) {
		require.NoError(t, store.Update(ctx, ip, func(_ context.Context, p *models.IPProfile) error {
			p.LastAttemptAt = last
			p.BlockedUntil = blockedUntil
			return nil
		}))
	}
	stillBlocked := now.Add(time.Minute)
	set("idle", now.Add(-25*time.Hour), nil)
	set("recent", now.Add(-time.Hour), nil)
	set("idle-but-blocked", now.Add(-25*time.Hour), &stillBlocked)

	removed, err := store.SweepIdle(ctx, cutoff, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	_, err = store.Get(ctx, "idle")
	assert.ErrorIs(t, err, models.ErrNotFound)
	_, err = store.Get(ctx, "recent")
	assert.NoError(t, err)
	_, err = store.Get(ctx, "idle-but-blocked")
	assert.NoError(t, err)
}

func TestIPProfileStore_SweepSkipsLockedProfile(t *testing.T) {
	store := NewIPProfileStore()
	ctx := context.Background()
	now := t0

	require.NoError(t, store.Update(ctx, "10.0.0.1", func(_ context.Context, p *models.IPProfile) error {
		p.LastAttemptAt = now.Add(-48 * time.Hour)
		return nil
	}))

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)

	go func() {
		done <- store.Update(ctx, "10.0.0.1", func(_ context.Context, p *models.IPProfile) error {
			close(inside)
			<-release
			p.LastAttemptAt = now
			return nil
		})
	}()

	<-inside
	removed, err := store.SweepIdle(ctx, now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), removed, "sweep must skip a profile under update")

	close(release)
	require.NoError(t, <-done)

	p, err := store.Get(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, now, p.LastAttemptAt)
}
