package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/enrollguard/internal/clock"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/google/uuid"
)

// IPProfileStore persists per-IP admission state. Update and
// UpdateExisting run fn while holding the lock for ip and persist its
// changes only when fn returns nil.
type IPProfileStore interface {
	Update(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error
	UpdateExisting(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error
	Get(ctx context.Context, ip string) (*models.IPProfile, error)
	ListBlocked(ctx context.Context, now time.Time) ([]*models.IPProfile, error)
	CountBlocked(ctx context.Context, now time.Time) (int64, error)
	SweepIdle(ctx context.Context, cutoff, now time.Time) (int64, error)
}

// SecurityEventRecorder receives security state transitions.
type SecurityEventRecorder interface {
	RecordEvent(ctx context.Context, ev *models.SecurityEvent) error
}

// UnblockResult describes an administrative unblock.
type UnblockResult struct {
	IP         string `json:"ip_address"`
	WasBlocked bool   `json:"was_blocked"`
}

// BlocklistService owns the per-IP Normal/Blocked state machine.
type BlocklistService struct {
	store    IPProfileStore
	events   SecurityEventRecorder
	duration time.Duration
	clock    clock.Clock
	logger   *slog.Logger
}

// NewBlocklistService creates a new BlocklistService
func NewBlocklistService(store IPProfileStore, events SecurityEventRecorder, duration time.Duration, clk clock.Clock, logger *slog.Logger) *BlocklistService {
	if clk == nil {
		clk = clock.Real()
	}
	return &BlocklistService{
		store:    store,
		events:   events,
		duration: duration,
		clock:    clk,
		logger:   resolveLogger(logger),
	}
}

// IsBlocked reports whether p is blocked at now
func (s *BlocklistService) IsBlocked(p *models.IPProfile, now time.Time) bool {
	return p.IsBlocked(now)
}

// Block sets p.BlockedUntil to now + duration. Re-blocking extends the
// block instead of stacking. It returns true only for a Normal to Blocked
// transition; the caller emits the blocked event for those after its
// changes are persisted.
func (s *BlocklistService) Block(p *models.IPProfile, now time.Time) bool {
	wasBlocked := p.IsBlocked(now)
	until := now.Add(s.duration)
	p.BlockedUntil = &until
	return !wasBlocked
}

// BlockedEvent builds the event recorded for a Normal to Blocked transition.
func (s *BlocklistService) BlockedEvent(p *models.IPProfile, now time.Time) *models.SecurityEvent {
	detail := models.EventDetail{
		"consecutive_failures": p.ConsecutiveFailures,
		"duration_seconds":     int(s.duration.Seconds()),
	}
	if p.BlockedUntil != nil {
		detail["blocked_until"] = p.BlockedUntil.UTC().Format(time.RFC3339)
	}
	return &models.SecurityEvent{
		ID:        uuid.New(),
		Type:      models.SecurityEventBlocked,
		Subject:   p.IP,
		Timestamp: now,
		Detail:    detail,
	}
}

// Unblock clears the block on ip and resets its failure count. An unknown
// ip yields models.ErrNotFound. The unblocked event is only recorded when
// the ip was actually blocked.
func (s *BlocklistService) Unblock(ctx context.Context, ip, actor string) (*UnblockResult, error) {
	now := s.clock.Now()
	result := &UnblockResult{IP: ip}

	err := s.store.UpdateExisting(ctx, ip, func(_ context.Context, p *models.IPProfile) error {
		result.WasBlocked = p.IsBlocked(now)
		p.BlockedUntil = nil
		p.ConsecutiveFailures = 0
		p.FailureTimes = nil
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Warn("unblock requested for unknown ip",
				slog.String("ip_address", ip),
				slog.String("actor", actor))
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("failed to unblock ip: %w", err)
	}

	if result.WasBlocked {
		ev := &models.SecurityEvent{
			ID:        uuid.New(),
			Type:      models.SecurityEventUnblocked,
			Subject:   ip,
			Timestamp: now,
			Detail:    models.EventDetail{"actor": actor},
		}
		_ = s.events.RecordEvent(ctx, ev)
	}

	return result, nil
}

// ListBlocked returns the IPs blocked right now
func (s *BlocklistService) ListBlocked(ctx context.Context) ([]*models.IPProfile, error) {
	profiles, err := s.store.ListBlocked(ctx, s.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to list blocked ips: %w", err)
	}
	return profiles, nil
}
