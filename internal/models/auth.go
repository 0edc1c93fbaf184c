package models

import "github.com/golang-jwt/jwt/v5"

// Token types
const (
	TokenTypeAdmin  = "admin"
	TokenTypeDevice = "device"
)

// TokenClaims are the JWT claims for admin operators and registered devices.
// The registered "sub" claim carries the admin email or the device id.
type TokenClaims struct {
	Type      string `json:"type"`
	CompanyID string `json:"company_id,omitempty"`
	jwt.RegisteredClaims
}
