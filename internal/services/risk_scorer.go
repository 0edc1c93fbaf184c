package services

import (
	"math"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
)

// Risk signal names reported in RiskAssessment.Signals
const (
	SignalFailedAttempts  = "failed_attempts"
	SignalOffHours        = "off_hours"
	SignalWeakFingerprint = "weak_fingerprint"
	SignalNoMAC           = "no_mac_addresses"
	SignalNoUserAgent     = "no_user_agent"
	SignalBotSignature    = "bot_signature"
	SignalBurst           = "burst"
	SignalStaleKey        = "stale_key"
)

// RiskInput is everything the score depends on.
type RiskInput struct {
	Profile  *models.IPProfile
	Quality  models.QualityScore
	Now      time.Time
	StaleKey bool
}

// RiskAssessment is a score with the signals that produced it.
type RiskAssessment struct {
	Score   float64  `json:"score"`
	Signals []string `json:"signals"`
}

// RiskScorer computes an additive, clamped risk score. Score is a pure
// function of its input.
type RiskScorer struct {
	weights      RiskWeights
	hours        BusinessHours
	threshold    float64
	fingerprints *FingerprintEvaluator
}

// NewRiskScorer creates a new RiskScorer
func NewRiskScorer(weights RiskWeights, hours BusinessHours, threshold float64, fingerprints *FingerprintEvaluator) *RiskScorer {
	return &RiskScorer{
		weights:      weights,
		hours:        hours,
		threshold:    threshold,
		fingerprints: fingerprints,
	}
}

// Score returns the risk score for in
func (s *RiskScorer) Score(in RiskInput) float64 {
	return s.Assess(in).Score
}

// IsHighRisk reports whether score requires manual review
func (s *RiskScorer) IsHighRisk(score float64) bool {
	return score >= s.threshold
}

// Assess scores in and names each contributing signal.
func (s *RiskScorer) Assess(in RiskInput) RiskAssessment {
	w := s.weights
	var score float64
	signals := make([]string, 0)

	add := func(weight float64, signal string) {
		if weight <= 0 {
			return
		}
		score += weight
		signals = append(signals, signal)
	}

	if in.Profile != nil {
		window := w.FailureWindow
		if window <= 0 {
			window = time.Hour
		}
		failures := in.Profile.FailuresSince(in.Now.Add(-window))
		add(math.Min(float64(failures)*w.FailedAttempt, w.FailedAttemptCap), SignalFailedAttempts)

		if w.BurstThreshold > 0 && in.Profile.AttemptsSince(in.Now.Add(-w.BurstWindow)) >= w.BurstThreshold {
			add(w.Burst, SignalBurst)
		}
	}

	if !s.hours.Contains(in.Now) {
		add(w.OffHours, SignalOffHours)
	}
	if s.fingerprints.Weak(in.Quality) {
		add(w.WeakFingerprint, SignalWeakFingerprint)
	}
	if in.Quality.Has(models.DeficiencyMissingMACAddresses) {
		add(w.NoMAC, SignalNoMAC)
	}
	if in.Quality.Has(models.DeficiencyMissingUserAgent) {
		add(w.NoUserAgent, SignalNoUserAgent)
	}
	if in.Quality.Has(models.DeficiencyBotSignature) {
		add(w.BotSignature, SignalBotSignature)
	}
	if in.StaleKey {
		add(w.StaleKey, SignalStaleKey)
	}

	return RiskAssessment{Score: clamp(score, 0, w.MaxScore), Signals: signals}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
