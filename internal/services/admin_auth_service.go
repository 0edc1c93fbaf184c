package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/enrollguard/internal/auth"
	"github.com/BradenHooton/enrollguard/internal/models"
	pkgauth "github.com/BradenHooton/enrollguard/pkg/auth"
	pkglogger "github.com/BradenHooton/enrollguard/pkg/logger"
)

// AdminTokenIssuer signs operator tokens
type AdminTokenIssuer interface {
	GenerateAdminToken(email string) (string, error)
}

// AdminCredentials is the bootstrap operator account. PasswordHash is a
// bcrypt hash computed at startup.
type AdminCredentials struct {
	Email        string
	PasswordHash string
}

// AdminLoginResponse is returned on a successful operator login
type AdminLoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AdminAuthService authenticates the operator who unblocks IPs and issues
// registration keys.
type AdminAuthService struct {
	creds       AdminCredentials
	tokens      AdminTokenIssuer
	tokenExpiry time.Duration
	timing      *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAdminAuthService creates a new AdminAuthService. timing may be nil.
func NewAdminAuthService(creds AdminCredentials, tokens AdminTokenIssuer, tokenExpiry time.Duration, timing *auth.TimingDelay, logger *slog.Logger) *AdminAuthService {
	logger = resolveLogger(logger)
	return &AdminAuthService{
		creds:       creds,
		tokens:      tokens,
		tokenExpiry: tokenExpiry,
		timing:      timing,
		logger:      logger,
		auditLogger: pkglogger.NewAuditLogger(logger),
	}
}

// NewAdminCredentials validates and hashes the bootstrap password.
func NewAdminCredentials(email, password string) (AdminCredentials, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return AdminCredentials{}, fmt.Errorf("admin email is required")
	}
	if err := pkgauth.ValidatePassword(password); err != nil {
		return AdminCredentials{}, fmt.Errorf("admin password does not meet requirements: %w", err)
	}
	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		return AdminCredentials{}, err
	}
	return AdminCredentials{Email: email, PasswordHash: hash}, nil
}

// Login checks the operator credentials and returns an admin token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *AdminAuthService) Login(ctx context.Context, email, password, ipAddress string) (*AdminLoginResponse, error) {
	start := time.Now()
	email = strings.ToLower(strings.TrimSpace(email))

	emailOK := pkgauth.EqualFold(email, s.creds.Email)
	// Always run bcrypt so both failure paths cost the same
	passwordOK := pkgauth.ComparePassword(s.creds.PasswordHash, password) == nil

	if !emailOK || !passwordOK {
		s.logger.InfoContext(ctx, "admin login failed: invalid credentials")
		s.auditLogger.Login(ctx, email, ipAddress, false, "invalid_credentials")
		if s.timing != nil {
			s.timing.WaitFrom(ctx, start, false)
		}
		return nil, models.ErrUnauthorized
	}

	token, err := s.tokens.GenerateAdminToken(s.creds.Email)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate admin token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.auditLogger.Login(ctx, s.creds.Email, ipAddress, true, "")

	return &AdminLoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenExpiry.Seconds()),
	}, nil
}
