package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/enrollguard/internal/database"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/jackc/pgx/v5"
)

const ipProfileColumns = `ip, attempt_times, failure_times, hourly_window_count, daily_window_count,
	consecutive_failures, last_attempt_at, blocked_until`

// IPProfileRepository stores per-IP admission state. Every mutation runs
// inside a transaction holding the row lock for that IP.
type IPProfileRepository struct {
	db *database.DB
}

// NewIPProfileRepository creates a new IPProfileRepository
func NewIPProfileRepository(db *database.DB) *IPProfileRepository {
	return &IPProfileRepository{db: db}
}

func scanIPProfileRow(row rowScanner) (*models.IPProfile, error) {
	var p models.IPProfile
	var blockedUntil *time.Time

	err := row.Scan(
		&p.IP, &p.AttemptTimes, &p.FailureTimes, &p.HourlyWindowCount, &p.DailyWindowCount,
		&p.ConsecutiveFailures, &p.LastAttemptAt, &blockedUntil,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	p.BlockedUntil = blockedUntil
	return &p, nil
}

func scanIPProfileRows(rows pgx.Rows) ([]*models.IPProfile, error) {
	defer rows.Close()

	profiles := make([]*models.IPProfile, 0)
	for rows.Next() {
		p, err := scanIPProfileRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan ip profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ip profile rows: %w", database.MapPostgresError(err))
	}

	return profiles, nil
}

// Update locks the profile for ip, creating it if absent, and persists the
// changes fn makes. Nothing is written when fn returns an error. The
// upsert takes the row lock in the same statement, so a concurrent sweep
// cannot delete the row between creation and locking.
func (r *IPProfileRepository) Update(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query := `
			INSERT INTO ip_profiles (ip) VALUES ($1)
			ON CONFLICT (ip) DO UPDATE SET ip = EXCLUDED.ip
			RETURNING ` + ipProfileColumns

		profile, err := scanIPProfileRow(tx.QueryRow(ctx, query, ip))
		if err != nil {
			return fmt.Errorf("failed to lock ip profile: %w", err)
		}

		if err := fn(ctx, profile); err != nil {
			return err
		}

		return r.save(ctx, tx, profile)
	})
}

// UpdateExisting is Update for profiles that must already exist. It returns
// models.ErrNotFound for an unknown ip.
func (r *IPProfileRepository) UpdateExisting(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error {
	return r.db.WithTransaction(ctx, func(ctx context.Context, tx pgx.Tx) error {
		query := `SELECT ` + ipProfileColumns + ` FROM ip_profiles WHERE ip = $1 FOR UPDATE`

		profile, err := scanIPProfileRow(tx.QueryRow(ctx, query, ip))
		if err != nil {
			return err
		}

		if err := fn(ctx, profile); err != nil {
			return err
		}

		return r.save(ctx, tx, profile)
	})
}

func (r *IPProfileRepository) save(ctx context.Context, tx pgx.Tx, p *models.IPProfile) error {
	query := `
		UPDATE ip_profiles
		SET attempt_times = $2, failure_times = $3, hourly_window_count = $4,
		    daily_window_count = $5, consecutive_failures = $6, last_attempt_at = $7,
		    blocked_until = $8
		WHERE ip = $1
	`

	_, err := tx.Exec(ctx, query,
		p.IP, nonNilTimes(p.AttemptTimes), nonNilTimes(p.FailureTimes), p.HourlyWindowCount,
		p.DailyWindowCount, p.ConsecutiveFailures, p.LastAttemptAt, p.BlockedUntil,
	)
	if err != nil {
		return fmt.Errorf("failed to save ip profile: %w", database.MapPostgresError(err))
	}
	return nil
}

// Get returns the profile for ip without locking it
func (r *IPProfileRepository) Get(ctx context.Context, ip string) (*models.IPProfile, error) {
	query := `SELECT ` + ipProfileColumns + ` FROM ip_profiles WHERE ip = $1`
	return scanIPProfileRow(r.db.Querier(ctx).QueryRow(ctx, query, ip))
}

// ListBlocked returns profiles whose block is still active at now, soonest expiry first
func (r *IPProfileRepository) ListBlocked(ctx context.Context, now time.Time) ([]*models.IPProfile, error) {
	query := `
		SELECT ` + ipProfileColumns + `
		FROM ip_profiles
		WHERE blocked_until > $1
		ORDER BY blocked_until ASC
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocked ips: %w", database.MapPostgresError(err))
	}

	return scanIPProfileRows(rows)
}

// CountBlocked returns the number of IPs blocked at now
func (r *IPProfileRepository) CountBlocked(ctx context.Context, now time.Time) (int64, error) {
	query := `SELECT COUNT(*) FROM ip_profiles WHERE blocked_until > $1`

	var count int64
	if err := r.db.Querier(ctx).QueryRow(ctx, query, now).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count blocked ips: %w", database.MapPostgresError(err))
	}
	return count, nil
}

// SweepIdle deletes profiles idle since before cutoff that are not blocked
// at now. Rows locked by an in-flight Update are skipped.
func (r *IPProfileRepository) SweepIdle(ctx context.Context, cutoff, now time.Time) (int64, error) {
	query := `
		DELETE FROM ip_profiles
		WHERE ip IN (
			SELECT ip FROM ip_profiles
			WHERE last_attempt_at < $1
			  AND (blocked_until IS NULL OR blocked_until <= $2)
			FOR UPDATE SKIP LOCKED
		)
	`

	result, err := r.db.Querier(ctx).Exec(ctx, query, cutoff, now)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep ip profiles: %w", database.MapPostgresError(err))
	}

	return result.RowsAffected(), nil
}

// pgx encodes a nil slice as NULL; the array columns are NOT NULL.
func nonNilTimes(times []time.Time) []time.Time {
	if times == nil {
		return []time.Time{}
	}
	return times
}
