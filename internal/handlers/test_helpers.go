package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/services"
	pkghttp "github.com/BradenHooton/enrollguard/pkg/http"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAdminContext adds admin claims to the request context
func WithAdminContext(req *http.Request, email string) *http.Request {
	claims := &models.TokenClaims{
		Type:             models.TokenTypeAdmin,
		RegisteredClaims: jwt.RegisteredClaims{Subject: email},
	}
	ctx := context.WithValue(req.Context(), auth.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	contentType := w.Header().Get("Content-Type")
	assert.Equal(t, "application/json", contentType, "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
}

// MockRegistrationGuard implements RegistrationGuardInterface for testing
type MockRegistrationGuard struct {
	RegisterFunc       func(ctx context.Context, req services.RegistrationRequest) (*services.RegistrationResult, error)
	RecordRejectedFunc func(ctx context.Context, req services.RegistrationRequest, reason string) uuid.UUID
}

func (m *MockRegistrationGuard) Register(ctx context.Context, req services.RegistrationRequest) (*services.RegistrationResult, error) {
	if m.RegisterFunc != nil {
		return m.RegisterFunc(ctx, req)
	}
	return nil, nil
}

func (m *MockRegistrationGuard) RecordRejected(ctx context.Context, req services.RegistrationRequest, reason string) uuid.UUID {
	if m.RecordRejectedFunc != nil {
		return m.RecordRejectedFunc(ctx, req, reason)
	}
	return uuid.New()
}

// MockBlocklistService implements BlocklistServiceInterface for testing
type MockBlocklistService struct {
	UnblockFunc     func(ctx context.Context, ip, actor string) (*services.UnblockResult, error)
	ListBlockedFunc func(ctx context.Context) ([]*models.IPProfile, error)
}

func (m *MockBlocklistService) Unblock(ctx context.Context, ip, actor string) (*services.UnblockResult, error) {
	if m.UnblockFunc != nil {
		return m.UnblockFunc(ctx, ip, actor)
	}
	return &services.UnblockResult{IP: ip}, nil
}

func (m *MockBlocklistService) ListBlocked(ctx context.Context) ([]*models.IPProfile, error) {
	if m.ListBlockedFunc != nil {
		return m.ListBlockedFunc(ctx)
	}
	return []*models.IPProfile{}, nil
}

// MockAuditService implements AuditServiceInterface for testing
type MockAuditService struct {
	ListAttemptsFunc func(ctx context.Context, q models.AttemptQuery) ([]*models.AttemptRecord, error)
	ListEventsFunc   func(ctx context.Context, q models.EventQuery) ([]*models.SecurityEvent, error)
}

func (m *MockAuditService) ListAttempts(ctx context.Context, q models.AttemptQuery) ([]*models.AttemptRecord, error) {
	if m.ListAttemptsFunc != nil {
		return m.ListAttemptsFunc(ctx, q)
	}
	return nil, nil
}

func (m *MockAuditService) ListEvents(ctx context.Context, q models.EventQuery) ([]*models.SecurityEvent, error) {
	if m.ListEventsFunc != nil {
		return m.ListEventsFunc(ctx, q)
	}
	return nil, nil
}

// MockStatsService implements StatsServiceInterface for testing
type MockStatsService struct {
	GetSecurityStatsFunc func(ctx context.Context) (*services.SecurityStats, error)
}

func (m *MockStatsService) GetSecurityStats(ctx context.Context) (*services.SecurityStats, error) {
	if m.GetSecurityStatsFunc != nil {
		return m.GetSecurityStatsFunc(ctx)
	}
	return &services.SecurityStats{SecurityLevel: services.SecurityLevelNormal, GeneratedAt: time.Now()}, nil
}

// MockKeyIssuanceService implements KeyIssuanceServiceInterface for testing
type MockKeyIssuanceService struct {
	IssueKeyFunc           func(ctx context.Context, organizationCode, label string, ttl time.Duration) (*services.IssuedKey, error)
	CreateOrganizationFunc func(ctx context.Context, code, name string) (*models.Organization, error)
}

func (m *MockKeyIssuanceService) IssueKey(ctx context.Context, organizationCode, label string, ttl time.Duration) (*services.IssuedKey, error) {
	if m.IssueKeyFunc != nil {
		return m.IssueKeyFunc(ctx, organizationCode, label, ttl)
	}
	return &services.IssuedKey{OrganizationCode: organizationCode, Label: label}, nil
}

func (m *MockKeyIssuanceService) CreateOrganization(ctx context.Context, code, name string) (*models.Organization, error) {
	if m.CreateOrganizationFunc != nil {
		return m.CreateOrganizationFunc(ctx, code, name)
	}
	return &models.Organization{Code: code, Name: name}, nil
}

// MockAdminAuthService implements AdminAuthServiceInterface for testing
type MockAdminAuthService struct {
	LoginFunc func(ctx context.Context, email, password, ipAddress string) (*services.AdminLoginResponse, error)
}

func (m *MockAdminAuthService) Login(ctx context.Context, email, password, ipAddress string) (*services.AdminLoginResponse, error) {
	if m.LoginFunc != nil {
		return m.LoginFunc(ctx, email, password, ipAddress)
	}
	return nil, models.ErrUnauthorized
}
