package services

import (
	"fmt"
	"time"

	"github.com/BradenHooton/enrollguard/internal/config"
)

// GuardPolicy holds the admission thresholds the guard enforces.
type GuardPolicy struct {
	MaxAttemptsPerHour int
	MaxAttemptsPerDay  int
	BlockAfterFailures int
	BlockDuration      time.Duration
	HighRiskThreshold  float64
	StaleKeyAge        time.Duration
	AuditWriteTimeout  time.Duration
}

// RiskWeights are the additive contributions of each risk signal.
type RiskWeights struct {
	FailedAttempt    float64
	FailedAttemptCap float64
	OffHours         float64
	WeakFingerprint  float64
	NoMAC            float64
	NoUserAgent      float64
	BotSignature     float64
	Burst            float64
	StaleKey         float64
	MaxScore         float64

	BurstWindow    time.Duration
	BurstThreshold int
	// FailureWindow bounds which failures count toward FailedAttempt.
	FailureWindow time.Duration
}

// BusinessHours is the local window in which registrations are expected.
// Hours are [Start, End) in Location.
type BusinessHours struct {
	Start    int
	End      int
	Location *time.Location
}

// Contains reports whether t falls inside business hours
func (b BusinessHours) Contains(t time.Time) bool {
	loc := b.Location
	if loc == nil {
		loc = time.UTC
	}
	h := t.In(loc).Hour()
	return h >= b.Start && h < b.End
}

// DefaultGuardPolicy returns the stock thresholds.
func DefaultGuardPolicy() GuardPolicy {
	return guardPolicyFrom(config.DefaultGuardConfig())
}

// DefaultRiskWeights returns the stock signal weights.
func DefaultRiskWeights() RiskWeights {
	return riskWeightsFrom(config.DefaultGuardConfig())
}

// PolicyFromConfig converts loaded configuration into the guard's policy
// values.
func PolicyFromConfig(cfg config.GuardConfig) (GuardPolicy, RiskWeights, BusinessHours, error) {
	loc, err := time.LoadLocation(cfg.BusinessTimezone)
	if err != nil {
		return GuardPolicy{}, RiskWeights{}, BusinessHours{}, fmt.Errorf("invalid business timezone: %w", err)
	}

	hours := BusinessHours{
		Start:    cfg.BusinessHoursStart,
		End:      cfg.BusinessHoursEnd,
		Location: loc,
	}
	return guardPolicyFrom(cfg), riskWeightsFrom(cfg), hours, nil
}

func guardPolicyFrom(cfg config.GuardConfig) GuardPolicy {
	return GuardPolicy{
		MaxAttemptsPerHour: cfg.MaxAttemptsPerHour,
		MaxAttemptsPerDay:  cfg.MaxAttemptsPerDay,
		BlockAfterFailures: cfg.BlockAfterFailures,
		BlockDuration:      cfg.BlockDuration,
		HighRiskThreshold:  cfg.HighRiskThreshold,
		StaleKeyAge:        cfg.StaleKeyAge,
		AuditWriteTimeout:  cfg.AuditWriteTimeout,
	}
}

func riskWeightsFrom(cfg config.GuardConfig) RiskWeights {
	return RiskWeights{
		FailedAttempt:    cfg.WeightFailedAttempt,
		FailedAttemptCap: cfg.FailedAttemptCap,
		OffHours:         cfg.WeightOffHours,
		WeakFingerprint:  cfg.WeightWeakQuality,
		NoMAC:            cfg.WeightNoMAC,
		NoUserAgent:      cfg.WeightNoUserAgent,
		BotSignature:     cfg.WeightBotSignature,
		Burst:            cfg.WeightBurst,
		StaleKey:         cfg.WeightStaleKey,
		MaxScore:         cfg.MaxRiskScore,
		BurstWindow:      cfg.BurstWindow,
		BurstThreshold:   cfg.BurstThreshold,
		FailureWindow:    cfg.FailureWindow,
	}
}
