package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/google/uuid"
)

// RegistrationKeyRepository defines key lookup and the one-time claim.
// Claim must be a compare-and-set on the used flag returning
// models.ErrKeyAlreadyUsed when it loses.
type RegistrationKeyRepository interface {
	GetByHash(ctx context.Context, keyHash string) (*models.RegistrationKey, error)
	Claim(ctx context.Context, id uuid.UUID, usedAt time.Time) error
}

// OrganizationRepository resolves organization codes
type OrganizationRepository interface {
	GetByCode(ctx context.Context, code string) (*models.Organization, error)
}

// KeyValidation is a successfully claimed key.
type KeyValidation struct {
	Key          *models.RegistrationKey
	Organization *models.Organization
	// Stale is set for keys issued longer ago than the stale age. It is a
	// risk signal, not a rejection.
	Stale bool
}

// KeyValidator checks and claims one-time registration keys.
type KeyValidator struct {
	keys        RegistrationKeyRepository
	orgs        OrganizationRepository
	staleKeyAge time.Duration
	logger      *slog.Logger
}

// NewKeyValidator creates a new KeyValidator
func NewKeyValidator(keys RegistrationKeyRepository, orgs OrganizationRepository, staleKeyAge time.Duration, logger *slog.Logger) *KeyValidator {
	return &KeyValidator{
		keys:        keys,
		orgs:        orgs,
		staleKeyAge: staleKeyAge,
		logger:      resolveLogger(logger),
	}
}

// Validate checks the presented key against the organization and claims
// it. Rejections are models.ErrKeyNotFound, models.ErrCompanyMismatch,
// models.ErrKeyExpired and models.ErrKeyAlreadyUsed; any other error is a
// storage fault. Of N concurrent calls with the same valid key exactly one
// succeeds and the rest get models.ErrKeyAlreadyUsed.
func (v *KeyValidator) Validate(ctx context.Context, presentedKey, organizationCode string, now time.Time) (*KeyValidation, error) {
	key, err := v.keys.GetByHash(ctx, auth.HashRegistrationKey(presentedKey))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			v.logger.Debug("unknown registration key presented",
				slog.String("key_hint", auth.KeyHint(presentedKey)),
				slog.String("organization_code", organizationCode))
			return nil, models.ErrKeyNotFound
		}
		return nil, storageFault("failed to look up registration key", err)
	}

	org, err := v.orgs.GetByCode(ctx, organizationCode)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrCompanyMismatch
		}
		return nil, storageFault("failed to resolve organization", err)
	}
	if key.CompanyID != org.ID {
		v.logger.Warn("registration key presented for another organization",
			slog.String("key_id", key.ID.String()),
			slog.String("organization_code", organizationCode))
		return nil, models.ErrCompanyMismatch
	}

	if key.IsExpired(now) {
		return nil, models.ErrKeyExpired
	}
	if key.Used {
		return nil, models.ErrKeyAlreadyUsed
	}

	if err := v.keys.Claim(ctx, key.ID, now); err != nil {
		if errors.Is(err, models.ErrKeyAlreadyUsed) {
			return nil, models.ErrKeyAlreadyUsed
		}
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrKeyNotFound
		}
		return nil, storageFault("failed to claim registration key", err)
	}

	key.Used = true
	key.UsedAt = &now

	return &KeyValidation{
		Key:          key,
		Organization: org,
		Stale:        key.IssuedBefore(now, v.staleKeyAge),
	}, nil
}

// storageFault wraps err as models.ErrStorageUnavailable unless it already is.
func storageFault(msg string, err error) error {
	if errors.Is(err, models.ErrStorageUnavailable) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %v", msg, models.ErrStorageUnavailable, err)
}
