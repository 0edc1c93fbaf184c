package services

import (
	"context"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/google/uuid"
)

// MockIPProfileStore implements IPProfileStore for testing. Update and
// UpdateExisting run fn against Profile when no Func is set.
type MockIPProfileStore struct {
	Profile *models.IPProfile

	UpdateFunc         func(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error
	UpdateExistingFunc func(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error
	GetFunc            func(ctx context.Context, ip string) (*models.IPProfile, error)
	ListBlockedFunc    func(ctx context.Context, now time.Time) ([]*models.IPProfile, error)
	CountBlockedFunc   func(ctx context.Context, now time.Time) (int64, error)
	SweepIdleFunc      func(ctx context.Context, cutoff, now time.Time) (int64, error)
}

func (m *MockIPProfileStore) Update(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, ip, fn)
	}
	if m.Profile == nil {
		m.Profile = models.NewIPProfile(ip)
	}
	return fn(ctx, m.Profile)
}

func (m *MockIPProfileStore) UpdateExisting(ctx context.Context, ip string, fn func(ctx context.Context, p *models.IPProfile) error) error {
	if m.UpdateExistingFunc != nil {
		return m.UpdateExistingFunc(ctx, ip, fn)
	}
	if m.Profile == nil {
		return models.ErrNotFound
	}
	return fn(ctx, m.Profile)
}

func (m *MockIPProfileStore) Get(ctx context.Context, ip string) (*models.IPProfile, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, ip)
	}
	if m.Profile == nil {
		return nil, models.ErrNotFound
	}
	return m.Profile.Clone(), nil
}

func (m *MockIPProfileStore) ListBlocked(ctx context.Context, now time.Time) ([]*models.IPProfile, error) {
	if m.ListBlockedFunc != nil {
		return m.ListBlockedFunc(ctx, now)
	}
	return []*models.IPProfile{}, nil
}

func (m *MockIPProfileStore) CountBlocked(ctx context.Context, now time.Time) (int64, error) {
	if m.CountBlockedFunc != nil {
		return m.CountBlockedFunc(ctx, now)
	}
	return 0, nil
}

func (m *MockIPProfileStore) SweepIdle(ctx context.Context, cutoff, now time.Time) (int64, error) {
	if m.SweepIdleFunc != nil {
		return m.SweepIdleFunc(ctx, cutoff, now)
	}
	return 0, nil
}

// MockRegistrationKeyRepository implements RegistrationKeyRepository for testing
type MockRegistrationKeyRepository struct {
	GetByHashFunc func(ctx context.Context, keyHash string) (*models.RegistrationKey, error)
	ClaimFunc     func(ctx context.Context, id uuid.UUID, usedAt time.Time) error
}

func (m *MockRegistrationKeyRepository) GetByHash(ctx context.Context, keyHash string) (*models.RegistrationKey, error) {
	if m.GetByHashFunc != nil {
		return m.GetByHashFunc(ctx, keyHash)
	}
	return nil, models.ErrNotFound
}

func (m *MockRegistrationKeyRepository) Claim(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	if m.ClaimFunc != nil {
		return m.ClaimFunc(ctx, id, usedAt)
	}
	return nil
}

// MockOrganizationRepository implements OrganizationRepository for testing
type MockOrganizationRepository struct {
	GetByCodeFunc func(ctx context.Context, code string) (*models.Organization, error)
}

func (m *MockOrganizationRepository) GetByCode(ctx context.Context, code string) (*models.Organization, error) {
	if m.GetByCodeFunc != nil {
		return m.GetByCodeFunc(ctx, code)
	}
	return nil, models.ErrNotFound
}

// MockDeviceRepository implements DeviceRepository for testing
type MockDeviceRepository struct {
	CreateFunc func(ctx context.Context, d *models.Device) error
}

func (m *MockDeviceRepository) Create(ctx context.Context, d *models.Device) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, d)
	}
	return nil
}

// MockDeviceTokenIssuer implements DeviceTokenIssuer for testing
type MockDeviceTokenIssuer struct {
	GenerateDeviceTokenFunc func(device *models.Device) (string, error)
}

func (m *MockDeviceTokenIssuer) GenerateDeviceToken(device *models.Device) (string, error) {
	if m.GenerateDeviceTokenFunc != nil {
		return m.GenerateDeviceTokenFunc(device)
	}
	return "device-token-" + device.ID.String(), nil
}

// MockAttemptRepository implements AttemptRepository for testing
type MockAttemptRepository struct {
	AppendFunc func(ctx context.Context, rec *models.AttemptRecord) error
	ListFunc   func(ctx context.Context, q models.AttemptQuery) ([]*models.AttemptRecord, error)
	TotalsFunc func(ctx context.Context, q models.AttemptQuery) (models.AttemptTotals, error)
}

func (m *MockAttemptRepository) Append(ctx context.Context, rec *models.AttemptRecord) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, rec)
	}
	return nil
}

func (m *MockAttemptRepository) List(ctx context.Context, q models.AttemptQuery) ([]*models.AttemptRecord, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, q)
	}
	return []*models.AttemptRecord{}, nil
}

func (m *MockAttemptRepository) Totals(ctx context.Context, q models.AttemptQuery) (models.AttemptTotals, error) {
	if m.TotalsFunc != nil {
		return m.TotalsFunc(ctx, q)
	}
	return models.AttemptTotals{}, nil
}

// MockSecurityEventRepository implements SecurityEventRepository for testing
type MockSecurityEventRepository struct {
	AppendFunc func(ctx context.Context, ev *models.SecurityEvent) error
	ListFunc   func(ctx context.Context, q models.EventQuery) ([]*models.SecurityEvent, error)
}

func (m *MockSecurityEventRepository) Append(ctx context.Context, ev *models.SecurityEvent) error {
	if m.AppendFunc != nil {
		return m.AppendFunc(ctx, ev)
	}
	return nil
}

func (m *MockSecurityEventRepository) List(ctx context.Context, q models.EventQuery) ([]*models.SecurityEvent, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, q)
	}
	return []*models.SecurityEvent{}, nil
}

// MockAlertNotifier implements AlertNotifier for testing
type MockAlertNotifier struct {
	NotifySecurityEventFunc func(ctx context.Context, ev *models.SecurityEvent) error
}

func (m *MockAlertNotifier) NotifySecurityEvent(ctx context.Context, ev *models.SecurityEvent) error {
	if m.NotifySecurityEventFunc != nil {
		return m.NotifySecurityEventFunc(ctx, ev)
	}
	return nil
}

// MockSESClient implements SESClient for testing
type MockSESClient struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

func (m *MockSESClient) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{MessageId: aws.String("test-message-id")}, nil
}

// NewTestOrganization creates an organization with the given code
func NewTestOrganization(code string) *models.Organization {
	return &models.Organization{
		ID:   uuid.New(),
		Code: code,
		Name: code + " Inc",
	}
}

// NewTestRegistrationKey creates an unused key for org issued at issuedAt
// and valid for ttl.
func NewTestRegistrationKey(org *models.Organization, keyHash string, issuedAt time.Time, ttl time.Duration) *models.RegistrationKey {
	return &models.RegistrationKey{
		ID:        uuid.New(),
		KeyHash:   keyHash,
		CompanyID: org.ID,
		Label:     "lobby",
		IssuedAt:  issuedAt,
		ExpiresAt: issuedAt.Add(ttl),
	}
}

// NewTestFingerprint returns a complete fingerprint from a real device
func NewTestFingerprint() models.DeviceFingerprint {
	return models.DeviceFingerprint{
		HardwareIDs:  []string{"SN-48213-A"},
		MACAddresses: []string{"00:1a:2b:3c:4d:5e"},
		OSVersion:    "Android 13",
		UserAgent:    "SignagePlayer/4.2 (Linux; Android 13)",
		Locale:       "en-US",
		Timezone:     "America/Chicago",
		ScreenCaps:   "1920x1080",
	}
}
