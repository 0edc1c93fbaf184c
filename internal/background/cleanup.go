package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BradenHooton/enrollguard/internal/clock"
)

// ProfileSweeper deletes IP profiles idle since cutoff. Blocked profiles and
// profiles locked by an in-flight attempt must be skipped.
type ProfileSweeper interface {
	SweepIdle(ctx context.Context, cutoff, now time.Time) (int64, error)
}

// CleanupManager periodically sweeps idle IP profiles out of the store
type CleanupManager struct {
	sweeper   ProfileSweeper
	logger    *slog.Logger
	clock     clock.Clock
	interval  time.Duration
	retention time.Duration
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	sweeper ProfileSweeper,
	logger *slog.Logger,
	clk clock.Clock,
	interval time.Duration,
	retention time.Duration,
) *CleanupManager {
	if clk == nil {
		clk = clock.Real()
	}
	return &CleanupManager{
		sweeper:   sweeper,
		logger:    logger,
		clock:     clk,
		interval:  interval,
		retention: retention,
		stopCh:    make(chan struct{}),
	}
}

// Start begins the periodic sweep. It blocks until Stop is called or ctx is
// cancelled.
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.RunOnce(ctx)

	for {
		select {
		case <-ticker.C:
			cm.RunOnce(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// RunOnce performs a single sweep and returns the number of profiles removed
func (cm *CleanupManager) RunOnce(ctx context.Context) int64 {
	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	now := cm.clock.Now()
	removed, err := cm.sweeper.SweepIdle(sweepCtx, now.Add(-cm.retention), now)
	if err != nil {
		cm.logger.Error("failed to sweep idle ip profiles", slog.Any("error", err))
		return 0
	}

	if removed > 0 {
		cm.logger.Info("idle ip profile sweep completed", slog.Int64("profiles_removed", removed))
	}
	return removed
}

// Stop signals the cleanup manager to stop. Safe to call more than once.
func (cm *CleanupManager) Stop() {
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}
