package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/enrollguard/internal/database"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/jackc/pgx/v5"
)

// SecurityEventRepository is the append-only security event log
type SecurityEventRepository struct {
	db *database.DB
}

// NewSecurityEventRepository creates a new SecurityEventRepository
func NewSecurityEventRepository(db *database.DB) *SecurityEventRepository {
	return &SecurityEventRepository{db: db}
}

func scanSecurityEventRow(row rowScanner) (*models.SecurityEvent, error) {
	var ev models.SecurityEvent

	err := row.Scan(&ev.ID, &ev.Type, &ev.Subject, &ev.Timestamp, &ev.Detail)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &ev, nil
}

func scanSecurityEventRows(rows pgx.Rows) ([]*models.SecurityEvent, error) {
	defer rows.Close()

	events := make([]*models.SecurityEvent, 0)
	for rows.Next() {
		ev, err := scanSecurityEventRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating security event rows: %w", database.MapPostgresError(err))
	}

	return events, nil
}

// Append writes one security event
func (r *SecurityEventRepository) Append(ctx context.Context, ev *models.SecurityEvent) error {
	query := `
		INSERT INTO security_events (id, event_type, subject, occurred_at, detail)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Querier(ctx).Exec(ctx, query, ev.ID, ev.Type, ev.Subject, ev.Timestamp, ev.Detail)
	if err != nil {
		return fmt.Errorf("failed to append security event: %w", database.MapPostgresError(err))
	}
	return nil
}

// List returns events matching q, newest first
func (r *SecurityEventRepository) List(ctx context.Context, q models.EventQuery) ([]*models.SecurityEvent, error) {
	query := `
		SELECT id, event_type, subject, occurred_at, detail
		FROM security_events
		WHERE occurred_at >= $1 AND occurred_at < $2
		  AND ($3 = '' OR event_type = $3)
		ORDER BY occurred_at DESC
		LIMIT $4
	`

	rows, err := r.db.Querier(ctx).Query(ctx, query, q.From, q.To, string(q.Type), q.Limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security events: %w", database.MapPostgresError(err))
	}

	return scanSecurityEventRows(rows)
}
