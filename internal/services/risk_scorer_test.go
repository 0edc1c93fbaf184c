package services_test

import (
	"testing"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/services"
	"github.com/stretchr/testify/assert"
)

func newTestScorer() (*services.RiskScorer, *services.FingerprintEvaluator) {
	fingerprints := services.NewFingerprintEvaluator(0.5)
	hours := services.BusinessHours{Start: 8, End: 18, Location: time.UTC}
	return services.NewRiskScorer(services.DefaultRiskWeights(), hours, 7.0, fingerprints), fingerprints
}

func TestRiskScorer_Score_CleanAttemptIsZero(t *testing.T) {
	scorer, fingerprints := newTestScorer()

	score := scorer.Score(services.RiskInput{
		Profile: models.NewIPProfile(testIP),
		Quality: fingerprints.ScoreQuality(services.NewTestFingerprint()),
		Now:     businessTime,
	})

	assert.Zero(t, score)
}

func TestRiskScorer_Assess_Scenarios(t *testing.T) {
	scorer, fingerprints := newTestScorer()
	threeAM := time.Date(2026, 3, 10, 3, 0, 0, 0, time.UTC)

	noMACNoUA := services.NewTestFingerprint()
	noMACNoUA.MACAddresses = nil
	noMACNoUA.UserAgent = ""

	withBot := noMACNoUA
	withBot.HardwareIDs = []string{"VirtualBox-1234"}

	tests := []struct {
		name     string
		fp       models.DeviceFingerprint
		want     float64
		highRisk bool
		signals  []string
	}{
		{
			name:     "off hours without mac or user agent",
			fp:       noMACNoUA,
			want:     3.5,
			highRisk: false,
			signals:  []string{services.SignalOffHours, services.SignalNoMAC, services.SignalNoUserAgent},
		},
		{
			// A bot signature also marks the fingerprint weak
			name:     "same plus bot signature",
			fp:       withBot,
			want:     8.5,
			highRisk: true,
			signals: []string{
				services.SignalOffHours, services.SignalWeakFingerprint, services.SignalNoMAC,
				services.SignalNoUserAgent, services.SignalBotSignature,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scorer.Assess(services.RiskInput{
				Profile: models.NewIPProfile(testIP),
				Quality: fingerprints.ScoreQuality(tt.fp),
				Now:     threeAM,
			})

			assert.InDelta(t, tt.want, got.Score, 1e-9)
			assert.Equal(t, tt.highRisk, scorer.IsHighRisk(got.Score))
			assert.ElementsMatch(t, tt.signals, got.Signals)
		})
	}
}

func TestRiskScorer_Score_IsPure(t *testing.T) {
	scorer, fingerprints := newTestScorer()

	p := models.NewIPProfile(testIP)
	p.FailureTimes = []time.Time{businessTime.Add(-5 * time.Minute), businessTime.Add(-time.Minute)}
	p.AttemptTimes = []time.Time{businessTime.Add(-2 * time.Minute), businessTime.Add(-time.Minute), businessTime}

	fp := services.NewTestFingerprint()
	fp.UserAgent = "python-requests/2.31"
	in := services.RiskInput{
		Profile:  p,
		Quality:  fingerprints.ScoreQuality(fp),
		Now:      businessTime,
		StaleKey: true,
	}

	first := scorer.Assess(in)
	for i := 0; i < 50; i++ {
		assert.Equal(t, first, scorer.Assess(in))
	}
	assert.Equal(t, 3, len(p.AttemptTimes), "scoring must not mutate the profile")
}

func TestRiskScorer_Score_FailedAttemptsCapped(t *testing.T) {
	scorer, fingerprints := newTestScorer()
	quality := fingerprints.ScoreQuality(services.NewTestFingerprint())

	p := models.NewIPProfile(testIP)
	prev := 0.0
	for i := 1; i <= 12; i++ {
		p.FailureTimes = append(p.FailureTimes, businessTime.Add(-time.Duration(i)*time.Minute))
		score := scorer.Score(services.RiskInput{Profile: p, Quality: quality, Now: businessTime})

		assert.GreaterOrEqual(t, score, prev, "failures=%d", i)
		assert.LessOrEqual(t, score, 3.0)
		prev = score
	}
	assert.Equal(t, 3.0, prev)
}

func TestRiskScorer_Score_IgnoresFailuresOutsideWindow(t *testing.T) {
	scorer, fingerprints := newTestScorer()

	p := models.NewIPProfile(testIP)
	p.FailureTimes = []time.Time{businessTime.Add(-3 * time.Hour), businessTime.Add(-2 * time.Hour)}

	score := scorer.Score(services.RiskInput{
		Profile: p,
		Quality: fingerprints.ScoreQuality(services.NewTestFingerprint()),
		Now:     businessTime,
	})
	assert.Zero(t, score)
}

func TestRiskScorer_Score_Burst(t *testing.T) {
	scorer, fingerprints := newTestScorer()
	quality := fingerprints.ScoreQuality(services.NewTestFingerprint())

	p := models.NewIPProfile(testIP)
	p.AttemptTimes = []time.Time{businessTime.Add(-9 * time.Minute), businessTime.Add(-time.Minute)}
	assert.Zero(t, scorer.Score(services.RiskInput{Profile: p, Quality: quality, Now: businessTime}))

	p.AttemptTimes = append(p.AttemptTimes, businessTime)
	got := scorer.Assess(services.RiskInput{Profile: p, Quality: quality, Now: businessTime})
	assert.Equal(t, 2.0, got.Score)
	assert.Equal(t, []string{services.SignalBurst}, got.Signals)
}

// Turning on any single signal never lowers the score.
func TestRiskScorer_Score_MonotonicPerSignal(t *testing.T) {
	scorer, fingerprints := newTestScorer()
	offHours := time.Date(2026, 3, 10, 22, 0, 0, 0, time.UTC)

	base := services.RiskInput{
		Profile: models.NewIPProfile(testIP),
		Quality: fingerprints.ScoreQuality(services.NewTestFingerprint()),
		Now:     businessTime,
	}
	baseScore := scorer.Score(base)

	mutate := map[string]func(in services.RiskInput) services.RiskInput{
		"off hours": func(in services.RiskInput) services.RiskInput {
			in.Now = offHours
			return in
		},
		"stale key": func(in services.RiskInput) services.RiskInput {
			in.StaleKey = true
			return in
		},
		"missing mac": func(in services.RiskInput) services.RiskInput {
			fp := services.NewTestFingerprint()
			fp.MACAddresses = nil
			in.Quality = fingerprints.ScoreQuality(fp)
			return in
		},
		"bot user agent": func(in services.RiskInput) services.RiskInput {
			fp := services.NewTestFingerprint()
			fp.UserAgent = "HeadlessChrome/120"
			in.Quality = fingerprints.ScoreQuality(fp)
			return in
		},
		"one failure": func(in services.RiskInput) services.RiskInput {
			p := models.NewIPProfile(testIP)
			p.FailureTimes = []time.Time{in.Now.Add(-time.Minute)}
			in.Profile = p
			return in
		},
	}

	for name, fn := range mutate {
		t.Run(name, func(t *testing.T) {
			assert.Greater(t, scorer.Score(fn(base)), baseScore)
		})
	}
}

func TestRiskScorer_Score_ClampedToMax(t *testing.T) {
	weights := services.DefaultRiskWeights()
	weights.MaxScore = 5.0
	fingerprints := services.NewFingerprintEvaluator(0.5)
	scorer := services.NewRiskScorer(weights, services.BusinessHours{Start: 8, End: 18}, 7.0, fingerprints)

	score := scorer.Score(services.RiskInput{
		Profile: models.NewIPProfile(testIP),
		Quality: fingerprints.ScoreQuality(models.DeviceFingerprint{UserAgent: "curl/8.0"}),
		Now:     time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC),
	})

	assert.Equal(t, 5.0, score)
}

func TestBusinessHours_Contains_UsesLocation(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skip("tzdata not available")
	}
	hours := services.BusinessHours{Start: 8, End: 18, Location: berlin}

	// 07:30 UTC is 08:30 in Berlin during winter time
	assert.True(t, hours.Contains(time.Date(2026, 1, 15, 7, 30, 0, 0, time.UTC)))
	assert.False(t, hours.Contains(time.Date(2026, 1, 15, 17, 30, 0, 0, time.UTC)))
}
