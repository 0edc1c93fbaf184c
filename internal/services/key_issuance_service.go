package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/clock"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/google/uuid"
)

const (
	defaultKeyTTL = 30 * 24 * time.Hour
	maxKeyTTL     = 365 * 24 * time.Hour
)

// RegistrationKeyWriter stores newly issued keys
type RegistrationKeyWriter interface {
	Create(ctx context.Context, key *models.RegistrationKey) error
}

// OrganizationWriter creates and resolves organizations
type OrganizationWriter interface {
	Create(ctx context.Context, org *models.Organization) error
	GetByCode(ctx context.Context, code string) (*models.Organization, error)
}

// IssuedKey is returned exactly once; the plaintext key is not recoverable.
type IssuedKey struct {
	ID               uuid.UUID `json:"id"`
	RegistrationKey  string    `json:"registration_key"`
	OrganizationCode string    `json:"organization_code"`
	Label            string    `json:"label,omitempty"`
	IssuedAt         time.Time `json:"issued_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	QRCodePNG        string    `json:"qr_code_png"`
}

// KeyIssuanceService issues one-time registration keys and manages the
// organizations they belong to.
type KeyIssuanceService struct {
	keys    RegistrationKeyWriter
	orgs    OrganizationWriter
	manager *auth.RegistrationKeyManager
	clock   clock.Clock
	logger  *slog.Logger
}

// NewKeyIssuanceService creates a new KeyIssuanceService
func NewKeyIssuanceService(keys RegistrationKeyWriter, orgs OrganizationWriter, manager *auth.RegistrationKeyManager, clk clock.Clock, logger *slog.Logger) *KeyIssuanceService {
	if clk == nil {
		clk = clock.Real()
	}
	return &KeyIssuanceService{
		keys:    keys,
		orgs:    orgs,
		manager: manager,
		clock:   clk,
		logger:  resolveLogger(logger),
	}
}

// IssueKey creates a key for the organization valid for ttl. A zero ttl
// uses the default of 30 days.
func (s *KeyIssuanceService) IssueKey(ctx context.Context, organizationCode, label string, ttl time.Duration) (*IssuedKey, error) {
	if ttl == 0 {
		ttl = defaultKeyTTL
	}
	if ttl < 0 || ttl > maxKeyTTL {
		return nil, fmt.Errorf("key ttl must be between 0 and %s: %w", maxKeyTTL, models.ErrBadRequest)
	}

	org, err := s.orgs.GetByCode(ctx, organizationCode)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, fmt.Errorf("unknown organization %q: %w", organizationCode, models.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to resolve organization: %w", err)
	}

	plainKey, hash, err := s.manager.GenerateKey()
	if err != nil {
		s.logger.Error("failed to generate registration key", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.clock.Now()
	key := &models.RegistrationKey{
		ID:        uuid.New(),
		KeyHash:   hash,
		CompanyID: org.ID,
		Label:     strings.TrimSpace(label),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if err := s.keys.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to store registration key: %w", err)
	}

	qr, err := s.manager.QRCode(org.Code, plainKey)
	if err != nil {
		// The key is stored and usable without the QR code
		s.logger.Warn("failed to render registration key QR code",
			slog.String("key_id", key.ID.String()),
			slog.Any("error", err))
	}

	s.logger.Info("registration key issued",
		slog.String("key_id", key.ID.String()),
		slog.String("organization_code", org.Code),
		slog.String("key_hint", auth.KeyHint(plainKey)),
		slog.Time("expires_at", key.ExpiresAt))

	return &IssuedKey{
		ID:               key.ID,
		RegistrationKey:  plainKey,
		OrganizationCode: org.Code,
		Label:            key.Label,
		IssuedAt:         key.IssuedAt,
		ExpiresAt:        key.ExpiresAt,
		QRCodePNG:        qr,
	}, nil
}

// CreateOrganization registers a new organization code
func (s *KeyIssuanceService) CreateOrganization(ctx context.Context, code, name string) (*models.Organization, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return nil, fmt.Errorf("organization code and name are required: %w", models.ErrBadRequest)
	}

	org := &models.Organization{
		ID:   uuid.New(),
		Code: code,
		Name: name,
	}
	if err := s.orgs.Create(ctx, org); err != nil {
		return nil, fmt.Errorf("failed to create organization: %w", err)
	}

	s.logger.Info("organization created",
		slog.String("organization_id", org.ID.String()),
		slog.String("organization_code", org.Code))

	return org, nil
}
