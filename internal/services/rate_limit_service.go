package services

import (
	"log/slog"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
)

const (
	hourlyWindow = time.Hour
	dailyWindow  = 24 * time.Hour
	// maxFailureLog caps IPProfile.FailureTimes; the failure risk signal
	// saturates long before this.
	maxFailureLog = 32
)

// Decision is the rate limiter's verdict on one attempt. RetryAfter is set
// on rejections: the wait until every full window has a free slot again.
type Decision struct {
	Allow      bool
	Reason     string
	RetryAfter time.Duration
}

// RateLimitConfig holds configuration for rate limiting behavior
type RateLimitConfig struct {
	MaxAttemptsPerHour int
	MaxAttemptsPerDay  int
	FailureWindow      time.Duration
}

// RateLimitService enforces per-IP sliding-window limits. Its methods
// mutate an IPProfile and must run inside the store's per-IP critical
// section so check and increment are one atomic step.
type RateLimitService struct {
	config RateLimitConfig
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	if config.FailureWindow <= 0 {
		config.FailureWindow = time.Hour
	}
	return &RateLimitService{
		config: config,
		logger: resolveLogger(logger),
	}
}

// RecordAndCheck checks both windows and, when the attempt is allowed,
// records it in them. Rejected attempts are not added to the window log so
// a client hammering the endpoint cannot extend its own lockout.
func (s *RateLimitService) RecordAndCheck(p *models.IPProfile, now time.Time) Decision {
	p.AttemptTimes = models.PruneBefore(p.AttemptTimes, now.Add(-dailyWindow))
	hourly := p.AttemptsSince(now.Add(-hourlyWindow))
	daily := len(p.AttemptTimes)
	p.LastAttemptAt = now

	if hourly >= s.config.MaxAttemptsPerHour || daily >= s.config.MaxAttemptsPerDay {
		p.HourlyWindowCount = hourly
		p.DailyWindowCount = daily
		wait := s.retryAfter(p, hourly, daily, now)
		s.logger.Warn("IP rate limited",
			slog.String("ip_address", p.IP),
			slog.Int("hourly_attempts", hourly),
			slog.Int("daily_attempts", daily),
			slog.Duration("retry_after", wait))
		return Decision{Allow: false, Reason: models.ReasonRateLimited, RetryAfter: wait}
	}

	p.AttemptTimes = append(p.AttemptTimes, now)
	p.HourlyWindowCount = hourly + 1
	p.DailyWindowCount = daily + 1
	return Decision{Allow: true}
}

// retryAfter returns how long until both windows admit another attempt.
// AttemptTimes is ascending and already pruned to the daily window, so the
// entry that must age out of a window holding at least limit attempts is
// AttemptTimes[len-limit].
func (s *RateLimitService) retryAfter(p *models.IPProfile, hourly, daily int, now time.Time) time.Duration {
	var wait time.Duration
	n := len(p.AttemptTimes)
	if limit := s.config.MaxAttemptsPerHour; limit > 0 && hourly >= limit {
		wait = p.AttemptTimes[n-limit].Add(hourlyWindow).Sub(now)
	}
	if limit := s.config.MaxAttemptsPerDay; limit > 0 && daily >= limit {
		if d := p.AttemptTimes[n-limit].Add(dailyWindow).Sub(now); d > wait {
			wait = d
		}
	}
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// RecordFailure counts a denied attempt and returns the new consecutive
// failure count.
func (s *RateLimitService) RecordFailure(p *models.IPProfile, now time.Time) int {
	p.ConsecutiveFailures++
	p.FailureTimes = models.PruneBefore(p.FailureTimes, now.Add(-s.config.FailureWindow))
	p.FailureTimes = append(p.FailureTimes, now)
	if len(p.FailureTimes) > maxFailureLog {
		p.FailureTimes = append(p.FailureTimes[:0:0], p.FailureTimes[len(p.FailureTimes)-maxFailureLog:]...)
	}
	return p.ConsecutiveFailures
}

// RecordSuccess resets the consecutive failure count after an admission.
func (s *RateLimitService) RecordSuccess(p *models.IPProfile) {
	p.ConsecutiveFailures = 0
}
