package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/BradenHooton/enrollguard/internal/clock"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/google/uuid"
)

// DeviceRepository persists registered devices
type DeviceRepository interface {
	Create(ctx context.Context, d *models.Device) error
}

// DeviceTokenIssuer signs credentials for active devices
type DeviceTokenIssuer interface {
	GenerateDeviceToken(device *models.Device) (string, error)
}

// RegistrationRequest is one inbound device self-registration.
type RegistrationRequest struct {
	DeviceName       string
	OrganizationCode string
	RegistrationKey  string
	SourceIP         string
	Fingerprint      models.DeviceFingerprint
}

// RegistrationResult is the guard's decision. It is returned for every
// attempt, admitted or not.
type RegistrationResult struct {
	AttemptID   uuid.UUID
	Outcome     models.AttemptOutcome
	Reason      string
	Device      *models.Device
	DeviceToken string
	Risk        RiskAssessment
	// RetryAfter is set for ip_blocked and rate_limited denials.
	RetryAfter time.Duration
}

// RegistrationGuard runs the admission pipeline for device registration.
type RegistrationGuard struct {
	profiles     IPProfileStore
	limiter      *RateLimitService
	blocklist    *BlocklistService
	keys         *KeyValidator
	fingerprints *FingerprintEvaluator
	scorer       *RiskScorer
	devices      DeviceRepository
	tokens       DeviceTokenIssuer
	audit        *AuditService
	policy       GuardPolicy
	clock        clock.Clock
	logger       *slog.Logger
}

// GuardDeps groups the collaborators of a RegistrationGuard.
type GuardDeps struct {
	Profiles     IPProfileStore
	Limiter      *RateLimitService
	Blocklist    *BlocklistService
	Keys         *KeyValidator
	Fingerprints *FingerprintEvaluator
	Scorer       *RiskScorer
	Devices      DeviceRepository
	Tokens       DeviceTokenIssuer
	Audit        *AuditService
	Clock        clock.Clock
	Logger       *slog.Logger
}

// NewRegistrationGuard creates a new RegistrationGuard
func NewRegistrationGuard(deps GuardDeps, policy GuardPolicy) *RegistrationGuard {
	clk := deps.Clock
	if clk == nil {
		clk = clock.Real()
	}
	if policy.AuditWriteTimeout <= 0 {
		policy.AuditWriteTimeout = 5 * time.Second
	}
	return &RegistrationGuard{
		profiles:     deps.Profiles,
		limiter:      deps.Limiter,
		blocklist:    deps.Blocklist,
		keys:         deps.Keys,
		fingerprints: deps.Fingerprints,
		scorer:       deps.Scorer,
		devices:      deps.Devices,
		tokens:       deps.Tokens,
		audit:        deps.Audit,
		policy:       policy,
		clock:        clk,
		logger:       resolveLogger(deps.Logger),
	}
}

// Register decides one registration attempt. The returned result is never
// nil. The error is nil for admitted attempts (allowed or flagged), one of
// the admission sentinels for expected denials, and wraps
// models.ErrStorageUnavailable when the guard failed closed. Exactly one
// attempt record is written per call, even if ctx is cancelled.
func (g *RegistrationGuard) Register(ctx context.Context, req RegistrationRequest) (result *RegistrationResult, err error) {
	now := g.clock.Now()
	quality := g.fingerprints.ScoreQuality(req.Fingerprint)

	rec := &models.AttemptRecord{
		ID:               uuid.New(),
		Timestamp:        now,
		SourceIP:         req.SourceIP,
		DeviceName:       req.DeviceName,
		OrganizationCode: req.OrganizationCode,
		Fingerprint:      g.fingerprints.Summarize(req.Fingerprint, quality),
	}
	result = &RegistrationResult{AttemptID: rec.ID}

	var events []*models.SecurityEvent
	defer func() {
		if r := recover(); r != nil {
			// Audit the attempt as failed closed, then keep panicking.
			err = fmt.Errorf("%w: registration guard panicked: %v", models.ErrStorageUnavailable, r)
			result.Device = nil
			result.DeviceToken = ""
			g.finish(ctx, rec, result, nil, err)
			panic(r)
		}
		g.finish(ctx, rec, result, events, err)
	}()

	// decision carries the expected denial out of the critical section.
	// Update must commit for denials too so the failure count persists.
	var decision error

	updateErr := g.profiles.Update(ctx, req.SourceIP, func(ctx context.Context, p *models.IPProfile) error {
		decision = nil
		events = nil
		result.RetryAfter = 0

		// Blocked attempts do not add to ConsecutiveFailures so a block
		// cannot extend itself.
		if g.blocklist.IsBlocked(p, now) {
			decision = models.ErrIPBlocked
			result.RetryAfter = p.BlockedUntil.Sub(now)
			return nil
		}

		if d := g.limiter.RecordAndCheck(p, now); !d.Allow {
			decision = models.ErrRateLimitExceeded
			result.RetryAfter = d.RetryAfter
			events = g.recordFailure(p, now)
			return nil
		}

		validation, err := g.keys.Validate(ctx, req.RegistrationKey, req.OrganizationCode, now)
		if err != nil {
			if models.IsKeyError(err) {
				decision = err
				events = g.recordFailure(p, now)
				return nil
			}
			return err
		}
		keyID := validation.Key.ID
		rec.KeyID = &keyID

		risk := g.scorer.Assess(RiskInput{
			Profile:  p,
			Quality:  quality,
			Now:      now,
			StaleKey: validation.Stale,
		})
		result.Risk = risk

		device := &models.Device{
			ID:                uuid.New(),
			Name:              req.DeviceName,
			CompanyID:         validation.Organization.ID,
			Status:            models.DeviceStatusActive,
			RegistrationKeyID: keyID,
			FingerprintHash:   rec.Fingerprint.Hash,
			HardwareIDs:       req.Fingerprint.HardwareIDs,
			RiskScore:         risk.Score,
			RegisteredIP:      req.SourceIP,
			CreatedAt:         now,
		}
		if g.scorer.IsHighRisk(risk.Score) {
			device.Status = models.DeviceStatusPending
		}

		// Pending devices are registered but inactive and get no credential.
		token := ""
		if device.Status == models.DeviceStatusActive {
			token, err = g.tokens.GenerateDeviceToken(device)
			if err != nil {
				return fmt.Errorf("failed to issue device token: %w", err)
			}
		}

		if err := g.devices.Create(ctx, device); err != nil {
			return fmt.Errorf("failed to create device: %w", err)
		}

		g.limiter.RecordSuccess(p)

		if device.Status == models.DeviceStatusPending {
			events = append(events, highRiskEvent(device, risk, req.SourceIP, now))
		}

		result.Device = device
		result.DeviceToken = token
		return nil
	})

	if updateErr != nil {
		events = nil
		result.Device = nil
		result.DeviceToken = ""
		result.RetryAfter = 0
		return result, storageFault("registration guard failed closed", updateErr)
	}

	if decision != nil {
		return result, decision
	}
	return result, nil
}

// maxRejectedField bounds free-text fields copied from requests that never
// passed validation.
const maxRejectedField = 128

// RecordRejected audits an attempt turned away before admission control
// ran: a malformed body or the HTTP throttle. The record is a denial with
// reason; IP counters are not touched. It returns the attempt id.
func (g *RegistrationGuard) RecordRejected(ctx context.Context, req RegistrationRequest, reason string) uuid.UUID {
	rec := &models.AttemptRecord{
		ID:               uuid.New(),
		Timestamp:        g.clock.Now(),
		SourceIP:         req.SourceIP,
		DeviceName:       truncateRunes(req.DeviceName, maxRejectedField),
		OrganizationCode: truncateRunes(req.OrganizationCode, maxRejectedField),
		Outcome:          models.OutcomeDenied,
		DenialReason:     &reason,
	}

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.policy.AuditWriteTimeout)
	defer cancel()

	_ = g.audit.RecordAttempt(auditCtx, rec)
	return rec.ID
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// recordFailure counts a denied attempt and blocks the IP once the
// consecutive failure threshold is reached. It returns the blocked event
// when this attempt caused a Normal to Blocked transition.
func (g *RegistrationGuard) recordFailure(p *models.IPProfile, now time.Time) []*models.SecurityEvent {
	failures := g.limiter.RecordFailure(p, now)
	if failures < g.policy.BlockAfterFailures {
		return nil
	}
	if !g.blocklist.Block(p, now) {
		return nil
	}
	g.logger.Warn("ip blocked after consecutive failures",
		slog.String("ip_address", p.IP),
		slog.Int("consecutive_failures", failures))
	return []*models.SecurityEvent{g.blocklist.BlockedEvent(p, now)}
}

// finish completes the attempt record and writes it with any security
// events. It runs detached from ctx cancellation so a client disconnect
// cannot drop the record.
func (g *RegistrationGuard) finish(ctx context.Context, rec *models.AttemptRecord, result *RegistrationResult, events []*models.SecurityEvent, err error) {
	switch {
	case err == nil && result.Device != nil:
		rec.Outcome = models.OutcomeAllowed
		if result.Device.Status == models.DeviceStatusPending {
			rec.Outcome = models.OutcomeFlagged
		}
		deviceID := result.Device.ID
		rec.DeviceID = &deviceID
		rec.RiskScore = result.Risk.Score
	default:
		rec.Outcome = models.OutcomeDenied
		reason := models.DenialReasonFor(err)
		rec.DenialReason = &reason
		result.Reason = reason
		if errors.Is(err, models.ErrStorageUnavailable) {
			// A rolled back claim leaves no key to reference
			rec.KeyID = nil
		}
	}
	result.Outcome = rec.Outcome

	auditCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.policy.AuditWriteTimeout)
	defer cancel()

	_ = g.audit.RecordAttempt(auditCtx, rec)
	for _, ev := range events {
		_ = g.audit.RecordEvent(auditCtx, ev)
	}
}

func highRiskEvent(device *models.Device, risk RiskAssessment, ip string, now time.Time) *models.SecurityEvent {
	return &models.SecurityEvent{
		ID:        uuid.New(),
		Type:      models.SecurityEventHighRiskFlagged,
		Subject:   device.ID.String(),
		Timestamp: now,
		Detail: models.EventDetail{
			"risk_score":  risk.Score,
			"signals":     risk.Signals,
			"ip_address":  ip,
			"device_name": device.Name,
		},
	}
}
