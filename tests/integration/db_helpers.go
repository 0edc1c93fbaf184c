//go:build integration

package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/database"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/repositories"
)

// TestDB is a throwaway Postgres container with the schema migrated.
type TestDB struct {
	container *postgres.PostgresContainer
	DB        *database.DB
}

// Pool is the pgx pool behind DB.
func (tdb *TestDB) Pool() *pgxpool.Pool {
	return tdb.DB.Pool
}

// SetupTestDatabase starts postgres:16-alpine and applies the embedded
// migrations. On error nothing is left running.
func SetupTestDatabase(ctx context.Context) (tdb *TestDB, err error) {
	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("enrollguard"),
		postgres.WithUsername("enrollguard"),
		postgres.WithPassword("enrollguard"),
		testcontainers.WithWaitStrategy(
			// Postgres logs readiness twice: once for the init run, once for real
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(45*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("start postgres: %w", err)
	}
	defer func() {
		if err != nil {
			_ = container.Terminate(context.Background())
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("container dsn: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	// Room for the concurrent-claim test
	poolCfg.MaxConns = 32

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}

	db := database.NewFromPool(pool, quietLogger())
	if err := db.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &TestDB{container: container, DB: db}, nil
}

// Teardown closes the pool and removes the container.
func (tdb *TestDB) Teardown(ctx context.Context) error {
	tdb.DB.Pool.Close()
	return tdb.container.Terminate(ctx)
}

// CleanupTables empties every guard table between tests.
func (tdb *TestDB) CleanupTables(ctx context.Context) error {
	_, err := tdb.DB.Pool.Exec(ctx, `TRUNCATE security_events, registration_attempts, ip_profiles,
		devices, registration_keys, organizations RESTART IDENTITY CASCADE`)
	return err
}

// SeedOrganization inserts an organization with the given code
func SeedOrganization(ctx context.Context, db *database.DB, code string) (*models.Organization, error) {
	org := &models.Organization{
		ID:   uuid.New(),
		Code: code,
		Name: code + " Inc.",
	}
	if err := repositories.NewOrganizationRepository(db).Create(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}

// SeedRegistrationKey stores the hash of plainKey for org
func SeedRegistrationKey(ctx context.Context, db *database.DB, org *models.Organization, plainKey string, issuedAt time.Time, ttl time.Duration) (*models.RegistrationKey, error) {
	key := &models.RegistrationKey{
		ID:        uuid.New(),
		KeyHash:   auth.HashRegistrationKey(plainKey),
		CompanyID: org.ID,
		Label:     "integration",
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	}
	if err := repositories.NewRegistrationKeyRepository(db).Create(ctx, key); err != nil {
		return nil, err
	}
	return key, nil
}
