package auth

import (
	"fmt"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret            string
	adminTokenExpiry  time.Duration
	deviceTokenExpiry time.Duration
	now               func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, adminExpiry, deviceExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:            secret,
		adminTokenExpiry:  adminExpiry,
		deviceTokenExpiry: deviceExpiry,
		now:               time.Now,
	}
}

// GenerateAdminToken creates a short-lived operator token
func (tm *TokenManager) GenerateAdminToken(email string) (string, error) {
	return tm.sign(models.TokenTypeAdmin, email, "", tm.adminTokenExpiry)
}

// GenerateDeviceToken creates the credential handed to an active device.
func (tm *TokenManager) GenerateDeviceToken(device *models.Device) (string, error) {
	if device.Status != models.DeviceStatusActive {
		return "", fmt.Errorf("device %s is %s: %w", device.ID, device.Status, models.ErrForbidden)
	}
	return tm.sign(models.TokenTypeDevice, device.ID.String(), device.CompanyID.String(), tm.deviceTokenExpiry)
}

func (tm *TokenManager) sign(tokenType, subject, companyID string, expiry time.Duration) (string, error) {
	now := tm.now()

	claims := &models.TokenClaims{
		Type:      tokenType,
		CompanyID: companyID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	tokenString, err := token.SignedString([]byte(tm.secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", tokenType, err)
	}

	return tokenString, nil
}

// ValidateToken verifies a token and returns its claims
func (tm *TokenManager) ValidateToken(tokenString string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(tm.secret), nil
	}, jwt.WithTimeFunc(tm.now))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return nil, models.ErrUnauthorized
	}

	// Validate token type
	if claims.Type != models.TokenTypeAdmin && claims.Type != models.TokenTypeDevice {
		return nil, fmt.Errorf("invalid token: unknown type %q", claims.Type)
	}

	return claims, nil
}
