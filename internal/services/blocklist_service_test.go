package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/enrollguard/internal/clock"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/repositories/memory"
	"github.com/BradenHooton/enrollguard/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedEvents struct {
	events []*models.SecurityEvent
}

func (r *recordedEvents) RecordEvent(_ context.Context, ev *models.SecurityEvent) error {
	r.events = append(r.events, ev)
	return nil
}

func newTestBlocklist(store services.IPProfileStore) (*services.BlocklistService, *recordedEvents, *clock.FakeClock) {
	events := &recordedEvents{}
	clk := clock.Fake(businessTime)
	return services.NewBlocklistService(store, events, 30*time.Minute, clk, discardLogger()), events, clk
}

func TestBlocklistService_Block_TransitionOnlyOnce(t *testing.T) {
	s, _, _ := newTestBlocklist(memory.NewIPProfileStore())
	p := models.NewIPProfile(testIP)

	assert.True(t, s.Block(p, businessTime))
	assert.True(t, s.IsBlocked(p, businessTime))
	assert.Equal(t, businessTime.Add(30*time.Minute), *p.BlockedUntil)

	// Re-blocking extends instead of stacking and is not a new transition
	later := businessTime.Add(10 * time.Minute)
	assert.False(t, s.Block(p, later))
	assert.Equal(t, later.Add(30*time.Minute), *p.BlockedUntil)
}

func TestBlocklistService_IsBlocked_ExpiresAtBlockedUntil(t *testing.T) {
	s, _, _ := newTestBlocklist(memory.NewIPProfileStore())
	p := models.NewIPProfile(testIP)
	s.Block(p, businessTime)

	assert.True(t, s.IsBlocked(p, businessTime.Add(30*time.Minute-time.Nanosecond)))
	assert.False(t, s.IsBlocked(p, businessTime.Add(30*time.Minute)))
}

func TestBlocklistService_BlockedEvent(t *testing.T) {
	s, _, _ := newTestBlocklist(memory.NewIPProfileStore())
	p := models.NewIPProfile(testIP)
	p.ConsecutiveFailures = 10
	s.Block(p, businessTime)

	ev := s.BlockedEvent(p, businessTime)

	assert.Equal(t, models.SecurityEventBlocked, ev.Type)
	assert.Equal(t, testIP, ev.Subject)
	assert.Equal(t, 10, ev.Detail["consecutive_failures"])
	assert.Equal(t, 1800, ev.Detail["duration_seconds"])
}

func TestBlocklistService_Unblock(t *testing.T) {
	store := memory.NewIPProfileStore()
	s, events, _ := newTestBlocklist(store)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, testIP, func(_ context.Context, p *models.IPProfile) error {
		p.ConsecutiveFailures = 12
		p.FailureTimes = []time.Time{businessTime}
		until := businessTime.Add(20 * time.Minute)
		p.BlockedUntil = &until
		return nil
	}))

	result, err := s.Unblock(ctx, testIP, "ops@example.com")
	require.NoError(t, err)
	assert.True(t, result.WasBlocked)

	p, err := store.Get(ctx, testIP)
	require.NoError(t, err)
	assert.Nil(t, p.BlockedUntil)
	assert.Zero(t, p.ConsecutiveFailures)
	assert.Empty(t, p.FailureTimes)

	require.Len(t, events.events, 1)
	assert.Equal(t, models.SecurityEventUnblocked, events.events[0].Type)
	assert.Equal(t, "ops@example.com", events.events[0].Detail["actor"])
}

func TestBlocklistService_Unblock_NotBlockedResetsWithoutEvent(t *testing.T) {
	store := memory.NewIPProfileStore()
	s, events, _ := newTestBlocklist(store)
	ctx := context.Background()

	require.NoError(t, store.Update(ctx, testIP, func(_ context.Context, p *models.IPProfile) error {
		p.ConsecutiveFailures = 4
		return nil
	}))

	result, err := s.Unblock(ctx, testIP, "ops@example.com")
	require.NoError(t, err)
	assert.False(t, result.WasBlocked)
	assert.Empty(t, events.events)

	p, err := store.Get(ctx, testIP)
	require.NoError(t, err)
	assert.Zero(t, p.ConsecutiveFailures)
}

func TestBlocklistService_Unblock_UnknownIP(t *testing.T) {
	s, events, _ := newTestBlocklist(memory.NewIPProfileStore())

	result, err := s.Unblock(context.Background(), "203.0.113.9", "ops@example.com")

	assert.ErrorIs(t, err, models.ErrNotFound)
	assert.Nil(t, result)
	assert.Empty(t, events.events)
}

func TestBlocklistService_Unblock_StorageError(t *testing.T) {
	store := &services.MockIPProfileStore{
		UpdateExistingFunc: func(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error {
			return errors.New("connection refused")
		},
	}
	s, _, _ := newTestBlocklist(store)

	_, err := s.Unblock(context.Background(), testIP, "ops@example.com")

	assert.Error(t, err)
	assert.NotErrorIs(t, err, models.ErrNotFound)
}

func TestBlocklistService_ListBlocked_UsesClock(t *testing.T) {
	var gotNow time.Time
	store := &services.MockIPProfileStore{
		ListBlockedFunc: func(ctx context.Context, now time.Time) ([]*models.IPProfile, error) {
			gotNow = now
			return []*models.IPProfile{models.NewIPProfile(testIP)}, nil
		},
	}
	s, _, clk := newTestBlocklist(store)
	clk.Advance(time.Hour)

	profiles, err := s.ListBlocked(context.Background())

	require.NoError(t, err)
	assert.Len(t, profiles, 1)
	assert.Equal(t, businessTime.Add(time.Hour), gotNow)
}
