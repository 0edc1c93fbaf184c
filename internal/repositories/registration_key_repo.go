package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/BradenHooton/enrollguard/internal/database"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/google/uuid"
)

// RegistrationKeyRepository handles one-time registration key data access
type RegistrationKeyRepository struct {
	db *database.DB
}

// NewRegistrationKeyRepository creates a new RegistrationKeyRepository
func NewRegistrationKeyRepository(db *database.DB) *RegistrationKeyRepository {
	return &RegistrationKeyRepository{db: db}
}

func scanRegistrationKeyRow(row rowScanner) (*models.RegistrationKey, error) {
	var key models.RegistrationKey
	var usedAt *time.Time

	err := row.Scan(
		&key.ID, &key.KeyHash, &key.CompanyID, &key.Label,
		&key.IssuedAt, &key.ExpiresAt, &key.Used, &usedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	key.UsedAt = usedAt
	return &key, nil
}

// Create stores a newly issued key
func (r *RegistrationKeyRepository) Create(ctx context.Context, key *models.RegistrationKey) error {
	query := `
		INSERT INTO registration_keys (id, key_hash, company_id, label, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		key.ID, key.KeyHash, key.CompanyID, key.Label, key.IssuedAt, key.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create registration key: %w", database.MapPostgresError(err))
	}
	return nil
}

// GetByHash retrieves a key by the hash of its plaintext value
func (r *RegistrationKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.RegistrationKey, error) {
	query := `
		SELECT id, key_hash, company_id, label, issued_at, expires_at, used, used_at
		FROM registration_keys
		WHERE key_hash = $1
	`

	return scanRegistrationKeyRow(r.db.Querier(ctx).QueryRow(ctx, query, keyHash))
}

// Claim marks the key used. The WHERE clause makes this a compare-and-set:
// of several concurrent claims exactly one updates the row, the rest get
// models.ErrKeyAlreadyUsed.
func (r *RegistrationKeyRepository) Claim(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	query := `
		UPDATE registration_keys
		SET used = TRUE, used_at = $2
		WHERE id = $1 AND used = FALSE
	`

	result, err := r.db.Querier(ctx).Exec(ctx, query, id, usedAt)
	if err != nil {
		return fmt.Errorf("failed to claim registration key: %w", database.MapPostgresError(err))
	}

	if result.RowsAffected() == 0 {
		return models.ErrKeyAlreadyUsed
	}

	return nil
}
