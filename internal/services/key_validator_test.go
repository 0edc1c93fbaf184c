package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/repositories/memory"
	"github.com/BradenHooton/enrollguard/internal/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const staleAge = 90 * 24 * time.Hour

func newMemoryKeyValidator(t *testing.T) (*services.KeyValidator, *memory.RegistrationKeyStore, *models.Organization) {
	t.Helper()
	keys := memory.NewRegistrationKeyStore()
	orgs := memory.NewOrganizationStore()
	org := services.NewTestOrganization("ACME")
	require.NoError(t, orgs.Create(context.Background(), org))
	return services.NewKeyValidator(keys, orgs, staleAge, discardLogger()), keys, org
}

func storeKey(t *testing.T, keys *memory.RegistrationKeyStore, org *models.Organization, issuedAt time.Time, ttl time.Duration) string {
	t.Helper()
	plain, hash, err := auth.NewRegistrationKeyManager().GenerateKey()
	require.NoError(t, err)
	require.NoError(t, keys.Create(context.Background(), services.NewTestRegistrationKey(org, hash, issuedAt, ttl)))
	return plain
}

func TestKeyValidator_Validate_ClaimsKey(t *testing.T) {
	v, keys, org := newMemoryKeyValidator(t)
	plain := storeKey(t, keys, org, businessTime.Add(-time.Hour), 24*time.Hour)

	got, err := v.Validate(context.Background(), plain, "ACME", businessTime)

	require.NoError(t, err)
	assert.Equal(t, org.ID, got.Organization.ID)
	assert.True(t, got.Key.Used)
	assert.False(t, got.Stale)

	stored, err := keys.GetByHash(context.Background(), auth.HashRegistrationKey(plain))
	require.NoError(t, err)
	assert.True(t, stored.Used)
	require.NotNil(t, stored.UsedAt)
	assert.Equal(t, businessTime, *stored.UsedAt)
}

func TestKeyValidator_Validate_IgnoresSurroundingWhitespace(t *testing.T) {
	v, keys, org := newMemoryKeyValidator(t)
	plain := storeKey(t, keys, org, businessTime, time.Hour)

	_, err := v.Validate(context.Background(), "  "+plain+"\n", "ACME", businessTime)

	assert.NoError(t, err)
}

func TestKeyValidator_Validate_StaleKeyIsFlaggedNotRejected(t *testing.T) {
	v, keys, org := newMemoryKeyValidator(t)
	plain := storeKey(t, keys, org, businessTime.Add(-100*24*time.Hour), 200*24*time.Hour)

	got, err := v.Validate(context.Background(), plain, "ACME", businessTime)

	require.NoError(t, err)
	assert.True(t, got.Stale)
}

func TestKeyValidator_Validate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		run     func(t *testing.T, v *services.KeyValidator, keys *memory.RegistrationKeyStore, org *models.Organization) error
		wantErr error
	}{
		{
			name: "not found",
			run: func(t *testing.T, v *services.KeyValidator, _ *memory.RegistrationKeyStore, _ *models.Organization) error {
				_, err := v.Validate(context.Background(), "egk_missing", "ACME", businessTime)
				return err
			},
			wantErr: models.ErrKeyNotFound,
		},
		{
			name: "expired exactly at expires_at",
			run: func(t *testing.T, v *services.KeyValidator, keys *memory.RegistrationKeyStore, org *models.Organization) error {
				plain := storeKey(t, keys, org, businessTime.Add(-time.Hour), time.Hour)
				_, err := v.Validate(context.Background(), plain, "ACME", businessTime)
				return err
			},
			wantErr: models.ErrKeyExpired,
		},
		{
			name: "unknown organization",
			run: func(t *testing.T, v *services.KeyValidator, keys *memory.RegistrationKeyStore, org *models.Organization) error {
				plain := storeKey(t, keys, org, businessTime, time.Hour)
				_, err := v.Validate(context.Background(), plain, "NOPE", businessTime)
				return err
			},
			wantErr: models.ErrCompanyMismatch,
		},
		{
			name: "already used",
			run: func(t *testing.T, v *services.KeyValidator, keys *memory.RegistrationKeyStore, org *models.Organization) error {
				plain := storeKey(t, keys, org, businessTime, time.Hour)
				_, err := v.Validate(context.Background(), plain, "ACME", businessTime)
				require.NoError(t, err)
				_, err = v.Validate(context.Background(), plain, "ACME", businessTime)
				return err
			},
			wantErr: models.ErrKeyAlreadyUsed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, keys, org := newMemoryKeyValidator(t)
			err := tt.run(t, v, keys, org)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.True(t, models.IsKeyError(err))
		})
	}
}

func TestKeyValidator_Validate_MismatchCheckedBeforeExpiry(t *testing.T) {
	keys := memory.NewRegistrationKeyStore()
	orgs := memory.NewOrganizationStore()
	acme := services.NewTestOrganization("ACME")
	globex := services.NewTestOrganization("GLOBEX")
	require.NoError(t, orgs.Create(context.Background(), acme))
	require.NoError(t, orgs.Create(context.Background(), globex))
	v := services.NewKeyValidator(keys, orgs, staleAge, discardLogger())

	plain := storeKey(t, keys, acme, businessTime.Add(-48*time.Hour), time.Hour)

	_, err := v.Validate(context.Background(), plain, "GLOBEX", businessTime)

	assert.ErrorIs(t, err, models.ErrCompanyMismatch)
}

func TestKeyValidator_Validate_ConcurrentClaimsExactlyOneWins(t *testing.T) {
	v, keys, org := newMemoryKeyValidator(t)
	plain := storeKey(t, keys, org, businessTime, time.Hour)

	const n = 50
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int
		used    int
		other   []error
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := v.Validate(context.Background(), plain, "ACME", businessTime)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				success++
			case errors.Is(err, models.ErrKeyAlreadyUsed):
				used++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, success)
	assert.Equal(t, n-1, used)
	assert.Empty(t, other)
}

func TestKeyValidator_Validate_StorageFaults(t *testing.T) {
	org := services.NewTestOrganization("ACME")
	key := &models.RegistrationKey{ID: uuid.New(), CompanyID: org.ID, IssuedAt: businessTime, ExpiresAt: businessTime.Add(time.Hour)}
	boom := errors.New("connection reset")

	tests := []struct {
		name string
		keys *services.MockRegistrationKeyRepository
		orgs *services.MockOrganizationRepository
	}{
		{
			name: "lookup fails",
			keys: &services.MockRegistrationKeyRepository{
				GetByHashFunc: func(ctx context.Context, keyHash string) (*models.RegistrationKey, error) { return nil, boom },
			},
			orgs: &services.MockOrganizationRepository{},
		},
		{
			name: "organization lookup fails",
			keys: &services.MockRegistrationKeyRepository{
				GetByHashFunc: func(ctx context.Context, keyHash string) (*models.RegistrationKey, error) { return key, nil },
			},
			orgs: &services.MockOrganizationRepository{
				GetByCodeFunc: func(ctx context.Context, code string) (*models.Organization, error) { return nil, boom },
			},
		},
		{
			name: "claim fails",
			keys: &services.MockRegistrationKeyRepository{
				GetByHashFunc: func(ctx context.Context, keyHash string) (*models.RegistrationKey, error) { return key, nil },
				ClaimFunc:     func(ctx context.Context, id uuid.UUID, usedAt time.Time) error { return boom },
			},
			orgs: &services.MockOrganizationRepository{
				GetByCodeFunc: func(ctx context.Context, code string) (*models.Organization, error) { return org, nil },
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := services.NewKeyValidator(tt.keys, tt.orgs, staleAge, discardLogger())

			_, err := v.Validate(context.Background(), "egk_any", "ACME", businessTime)

			assert.ErrorIs(t, err, models.ErrStorageUnavailable)
			assert.False(t, models.IsKeyError(err))
		})
	}
}
