package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/enrollguard/internal/database"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// AttemptRepository is the append-only registration attempt log
type AttemptRepository struct {
	db *database.DB
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

func scanAttemptRow(row rowScanner) (*models.AttemptRecord, error) {
	var rec models.AttemptRecord

	err := row.Scan(
		&rec.ID, &rec.Timestamp, &rec.SourceIP, &rec.DeviceName, &rec.OrganizationCode,
		&rec.KeyID, &rec.DeviceID, &rec.Fingerprint, &rec.Outcome, &rec.DenialReason, &rec.RiskScore,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &rec, nil
}

func scanAttemptRows(rows pgx.Rows) ([]*models.AttemptRecord, error) {
	defer rows.Close()

	records := make([]*models.AttemptRecord, 0)
	for rows.Next() {
		rec, err := scanAttemptRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attempt rows: %w", database.MapPostgresError(err))
	}

	return records, nil
}

// Append writes one attempt record
func (r *AttemptRepository) Append(ctx context.Context, rec *models.AttemptRecord) error {
	query := `
		INSERT INTO registration_attempts (
			id, attempted_at, source_ip, device_name, organization_code,
			key_id, device_id, fingerprint, outcome, denial_reason, risk_score
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		rec.ID, rec.Timestamp, rec.SourceIP, rec.DeviceName, rec.OrganizationCode,
		rec.KeyID, rec.DeviceID, rec.Fingerprint, rec.Outcome, rec.DenialReason, rec.RiskScore,
	)
	if err != nil {
		return fmt.Errorf("failed to append attempt: %w", database.MapPostgresError(err))
	}
	return nil
}

// List returns attempts matching q, newest first
func (r *AttemptRepository) List(ctx context.Context, q models.AttemptQuery) ([]*models.AttemptRecord, error) {
	query := `
		SELECT id, attempted_at, source_ip, device_name, organization_code,
		       key_id, device_id, fingerprint, outcome, denial_reason, risk_score
		FROM registration_attempts
		WHERE attempted_at >= $1 AND attempted_at < $2
		  AND ($3 = '' OR source_ip = $3)
		ORDER BY attempted_at DESC
		LIMIT $4
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, q.From, q.To, q.SourceIP, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", database.MapPostgresError(err))
	}

	return scanAttemptRows(rows)
}

// Totals counts attempts by outcome in the half-open range q.From to q.To.
// Limit is ignored.
func (r *AttemptRepository) Totals(ctx context.Context, q models.AttemptQuery) (models.AttemptTotals, error) {
	query := `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE outcome = 'allowed'),
		       COUNT(*) FILTER (WHERE outcome = 'flagged'),
		       COUNT(*) FILTER (WHERE outcome = 'denied')
		FROM registration_attempts
		WHERE attempted_at >= $1 AND attempted_at < $2
		  AND ($3 = '' OR source_ip = $3)
	`

	var t models.AttemptTotals
	err := r.db.Querier(ctx).QueryRow(ctx, query, q.From, q.To, q.SourceIP).
		Scan(&t.Total, &t.Allowed, &t.Flagged, &t.Denied)
	if err != nil {
		return models.AttemptTotals{}, fmt.Errorf("failed to count attempts: %w", database.MapPostgresError(err))
	}

	return t, nil
}
