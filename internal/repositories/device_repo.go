package repositories

import (
	"context"
	"fmt"

	"github.com/BradenHooton/enrollguard/internal/database"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// DeviceRepository handles registered device data access
type DeviceRepository struct {
	db *database.DB
}

// NewDeviceRepository creates a new DeviceRepository
func NewDeviceRepository(db *database.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

func scanDeviceRow(row rowScanner) (*models.Device, error) {
	var d models.Device

	err := row.Scan(
		&d.ID, &d.Name, &d.CompanyID, &d.Status, &d.RegistrationKeyID,
		&d.FingerprintHash, pq.Array(&d.HardwareIDs), &d.RiskScore, &d.RegisteredIP, &d.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &d, nil
}

// Create inserts a device
func (r *DeviceRepository) Create(ctx context.Context, d *models.Device) error {
	query := `
		INSERT INTO devices (
			id, name, company_id, status, registration_key_id,
			fingerprint_hash, hardware_ids, risk_score, registered_ip, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	hardwareIDs := d.HardwareIDs
	if hardwareIDs == nil {
		hardwareIDs = []string{}
	}

	_, err := r.db.Querier(ctx).Exec(ctx, query,
		d.ID, d.Name, d.CompanyID, d.Status, d.RegistrationKeyID,
		d.FingerprintHash, pq.Array(hardwareIDs), d.RiskScore, d.RegisteredIP, d.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create device: %w", database.MapPostgresError(err))
	}
	return nil
}

// GetByID retrieves a device by ID
func (r *DeviceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Device, error) {
	query := `
		SELECT id, name, company_id, status, registration_key_id,
		       fingerprint_hash, hardware_ids, risk_score, registered_ip, created_at
		FROM devices
		WHERE id = $1
	`

	return scanDeviceRow(r.db.Querier(ctx).QueryRow(ctx, query, id))
}

// CountByStatus returns device counts keyed by status
func (r *DeviceRepository) CountByStatus(ctx context.Context) (map[models.DeviceStatus]int64, error) {
	query := `SELECT status, COUNT(*) FROM devices GROUP BY status`

	rows, err := r.db.Querier(ctx).Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count devices: %w", database.MapPostgresError(err))
	}
	defer rows.Close()

	counts := make(map[models.DeviceStatus]int64)
	for rows.Next() {
		var status models.DeviceStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan device count: %w", database.MapPostgresError(err))
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device counts: %w", database.MapPostgresError(err))
	}

	return counts, nil
}
