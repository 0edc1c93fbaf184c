package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/enrollguard/internal/database"
	"github.com/BradenHooton/enrollguard/internal/models"
)

// OrganizationRepository resolves organization codes
type OrganizationRepository struct {
	db *database.DB
}

// NewOrganizationRepository creates a new OrganizationRepository
func NewOrganizationRepository(db *database.DB) *OrganizationRepository {
	return &OrganizationRepository{db: db}
}

// Create inserts an organization; a duplicate code yields models.ErrConflict
func (r *OrganizationRepository) Create(ctx context.Context, org *models.Organization) error {
	query := `INSERT INTO organizations (id, code, name) VALUES ($1, $2, $3)`

	if _, err := r.db.Querier(ctx).Exec(ctx, query, org.ID, org.Code, org.Name); err != nil {
		return fmt.Errorf("failed to create organization: %w", database.MapPostgresError(err))
	}
	return nil
}

// GetByCode retrieves an organization by its public code
func (r *OrganizationRepository) GetByCode(ctx context.Context, code string) (*models.Organization, error) {
	query := `SELECT id, code, name FROM organizations WHERE code = $1`

	var org models.Organization
	err := r.db.Querier(ctx).QueryRow(ctx, query, code).Scan(&org.ID, &org.Code, &org.Name)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &org, nil
}
