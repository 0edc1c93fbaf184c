package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/BradenHooton/enrollguard/internal/clock"
	"github.com/BradenHooton/enrollguard/internal/models"
)

// SecurityLevel is the coarse threat posture shown on the dashboard.
type SecurityLevel string

const (
	SecurityLevelNormal   SecurityLevel = "normal"
	SecurityLevelElevated SecurityLevel = "elevated"
	SecurityLevelHigh     SecurityLevel = "high"
)

// Security level buckets. A level is reached when either input crosses its
// bound, so the level never drops as either input grows.
const (
	elevatedBlockedIPs  = 3
	highBlockedIPs      = 10
	elevatedFailureRate = 0.3
	highFailureRate     = 0.6
)

// StatsAttemptRepository is the subset of AttemptRepository needed by StatsService.
type StatsAttemptRepository interface {
	Totals(ctx context.Context, q models.AttemptQuery) (models.AttemptTotals, error)
}

// StatsBlockedCounter counts currently blocked IPs.
type StatsBlockedCounter interface {
	CountBlocked(ctx context.Context, now time.Time) (int64, error)
}

// StatsDeviceRepository counts registered devices by status.
type StatsDeviceRepository interface {
	CountByStatus(ctx context.Context) (map[models.DeviceStatus]int64, error)
}

// SecurityStats is the dashboard snapshot.
type SecurityStats struct {
	TotalAttempts      int64                         `json:"total_attempts"`
	AdmittedAttempts   int64                         `json:"admitted_attempts"`
	FlaggedAttempts    int64                         `json:"flagged_attempts"`
	DeniedAttempts     int64                         `json:"denied_attempts"`
	SuccessRate        float64                       `json:"success_rate"`
	BlockedIPCount     int64                         `json:"blocked_ip_count"`
	RecentHourAttempts int64                         `json:"recent_hour_attempts"`
	RecentFailureRate  float64                       `json:"recent_failure_rate"`
	DevicesByStatus    map[models.DeviceStatus]int64 `json:"devices_by_status"`
	SecurityLevel      SecurityLevel                 `json:"security_level"`
	GeneratedAt        time.Time                     `json:"generated_at"`
}

// StatsService derives read-only dashboard figures from the audit log and
// the IP profile store.
type StatsService struct {
	attempts StatsAttemptRepository
	blocked  StatsBlockedCounter
	devices  StatsDeviceRepository
	clock    clock.Clock
	logger   *slog.Logger
}

// NewStatsService creates a new StatsService
func NewStatsService(attempts StatsAttemptRepository, blocked StatsBlockedCounter, devices StatsDeviceRepository, clk clock.Clock, logger *slog.Logger) *StatsService {
	if clk == nil {
		clk = clock.Real()
	}
	return &StatsService{
		attempts: attempts,
		blocked:  blocked,
		devices:  devices,
		clock:    clk,
		logger:   resolveLogger(logger),
	}
}

// GetSecurityStats returns aggregate attempt, block and device counts.
func (s *StatsService) GetSecurityStats(ctx context.Context) (*SecurityStats, error) {
	now := s.clock.Now()

	all, err := s.attempts.Totals(ctx, models.AttemptQuery{To: now.Add(time.Nanosecond)})
	if err != nil {
		s.logger.Error("stats: failed to total attempts", slog.Any("error", err))
		return nil, err
	}

	recent, err := s.attempts.Totals(ctx, models.AttemptQuery{
		From: now.Add(-time.Hour),
		To:   now.Add(time.Nanosecond),
	})
	if err != nil {
		s.logger.Error("stats: failed to total recent attempts", slog.Any("error", err))
		return nil, err
	}

	blocked, err := s.blocked.CountBlocked(ctx, now)
	if err != nil {
		s.logger.Error("stats: failed to count blocked ips", slog.Any("error", err))
		return nil, err
	}

	devices, err := s.devices.CountByStatus(ctx)
	if err != nil {
		s.logger.Error("stats: failed to count devices", slog.Any("error", err))
		return nil, err
	}

	failureRate := ratio(recent.Denied, recent.Total)

	return &SecurityStats{
		TotalAttempts:      all.Total,
		AdmittedAttempts:   all.Admitted(),
		FlaggedAttempts:    all.Flagged,
		DeniedAttempts:     all.Denied,
		SuccessRate:        ratio(all.Admitted(), all.Total),
		BlockedIPCount:     blocked,
		RecentHourAttempts: recent.Total,
		RecentFailureRate:  failureRate,
		DevicesByStatus:    devices,
		SecurityLevel:      ComputeSecurityLevel(blocked, failureRate),
		GeneratedAt:        now,
	}, nil
}

// ComputeSecurityLevel buckets the blocked-IP count and the recent failure
// rate. It is monotonic in both inputs.
func ComputeSecurityLevel(blockedIPs int64, failureRate float64) SecurityLevel {
	switch {
	case blockedIPs >= highBlockedIPs || failureRate >= highFailureRate:
		return SecurityLevelHigh
	case blockedIPs >= elevatedBlockedIPs || failureRate >= elevatedFailureRate:
		return SecurityLevelElevated
	default:
		return SecurityLevelNormal
	}
}

func ratio(n, d int64) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
