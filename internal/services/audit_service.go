package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
)

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
	// alertTimeout bounds one notifier call
	alertTimeout = 10 * time.Second
)

// AttemptRepository is the append-only attempt log
type AttemptRepository interface {
	Append(ctx context.Context, rec *models.AttemptRecord) error
	List(ctx context.Context, q models.AttemptQuery) ([]*models.AttemptRecord, error)
	Totals(ctx context.Context, q models.AttemptQuery) (models.AttemptTotals, error)
}

// SecurityEventRepository is the append-only security event log
type SecurityEventRepository interface {
	Append(ctx context.Context, ev *models.SecurityEvent) error
	List(ctx context.Context, q models.EventQuery) ([]*models.SecurityEvent, error)
}

// AuditService handles audit logging with dual-write pattern (slog + database)
type AuditService struct {
	attempts AttemptRepository
	events   SecurityEventRepository
	notifier AlertNotifier
	logger   *slog.Logger

	alerts sync.WaitGroup
}

// NewAuditService creates a new AuditService. notifier may be nil.
func NewAuditService(attempts AttemptRepository, events SecurityEventRepository, notifier AlertNotifier, logger *slog.Logger) *AuditService {
	return &AuditService{
		attempts: attempts,
		events:   events,
		notifier: notifier,
		logger:   resolveLogger(logger),
	}
}

// RecordAttempt writes one attempt record. Persistence failures are logged
// and never change the outcome of the attempt.
func (s *AuditService) RecordAttempt(ctx context.Context, rec *models.AttemptRecord) error {
	attrs := []any{
		slog.String("attempt_id", rec.ID.String()),
		slog.String("ip_address", rec.SourceIP),
		slog.String("device_name", rec.DeviceName),
		slog.String("organization_code", rec.OrganizationCode),
		slog.String("outcome", string(rec.Outcome)),
		slog.Float64("risk_score", rec.RiskScore),
		slog.Float64("fingerprint_quality", rec.Fingerprint.Quality),
	}

	// Dual-write: immediate slog output
	switch rec.Outcome {
	case models.OutcomeAllowed:
		s.logger.InfoContext(ctx, "registration attempt", attrs...)
	default:
		if rec.DenialReason != nil {
			attrs = append(attrs, slog.String("denial_reason", *rec.DenialReason))
		}
		s.logger.WarnContext(ctx, "registration attempt", attrs...)
	}

	// Persist to database
	if err := s.attempts.Append(ctx, rec); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist attempt record",
			slog.String("attempt_id", rec.ID.String()),
			slog.Any("error", err),
		)
		return nil
	}

	return nil
}

// RecordEvent writes a security event and hands it to the notifier in the
// background. Callers are never held up by alert delivery.
func (s *AuditService) RecordEvent(ctx context.Context, ev *models.SecurityEvent) error {
	s.logger.WarnContext(ctx, "security event",
		slog.String("event_id", ev.ID.String()),
		slog.String("event_type", string(ev.Type)),
		slog.String("subject", ev.Subject),
		slog.Any("detail", ev.Detail),
	)

	if err := s.events.Append(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist security event",
			slog.String("event_id", ev.ID.String()),
			slog.Any("error", err),
		)
	}

	if s.notifier != nil {
		s.alerts.Add(1)
		go s.sendAlert(context.WithoutCancel(ctx), ev)
	}

	return nil
}

func (s *AuditService) sendAlert(ctx context.Context, ev *models.SecurityEvent) {
	defer s.alerts.Done()

	ctx, cancel := context.WithTimeout(ctx, alertTimeout)
	defer cancel()

	if err := s.notifier.NotifySecurityEvent(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "failed to send security alert",
			slog.String("event_id", ev.ID.String()),
			slog.Any("error", err),
		)
	}
}

// WaitForAlerts blocks until alerts already handed to the notifier are
// delivered or ctx is done.
func (s *AuditService) WaitForAlerts(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.alerts.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListAttempts returns attempts in [from, to), newest first
func (s *AuditService) ListAttempts(ctx context.Context, q models.AttemptQuery) ([]*models.AttemptRecord, error) {
	q.Limit = normalizeLimit(q.Limit)
	if err := validateRange(q.From, q.To); err != nil {
		return nil, err
	}

	records, err := s.attempts.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts: %w", err)
	}
	return records, nil
}

// ListEvents returns security events in [from, to), newest first
func (s *AuditService) ListEvents(ctx context.Context, q models.EventQuery) ([]*models.SecurityEvent, error) {
	q.Limit = normalizeLimit(q.Limit)
	if err := validateRange(q.From, q.To); err != nil {
		return nil, err
	}

	events, err := s.events.List(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list security events: %w", err)
	}
	return events, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return defaultQueryLimit
	}
	if limit > maxQueryLimit {
		return maxQueryLimit
	}
	return limit
}

func validateRange(from, to time.Time) error {
	if !from.Before(to) {
		return fmt.Errorf("%w: range start must be before range end", models.ErrBadRequest)
	}
	return nil
}
