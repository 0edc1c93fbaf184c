package auth

import (
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const totpPeriod = 30

var totpOpts = totp.ValidateOpts{
	Period:    totpPeriod,
	Skew:      1, // ±1 time step = 90 seconds total window
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// TOTPVerifier checks step-up codes for the operator account against a
// single base32 secret. A code is accepted at most once.
type TOTPVerifier struct {
	secret string
	now    func() time.Time

	mu       sync.Mutex
	lastUsed string
	lastAt   time.Time
}

// NewTOTPVerifier creates a verifier for a base32 encoded secret
func NewTOTPVerifier(secret string) (*TOTPVerifier, error) {
	secret = strings.ToUpper(strings.TrimSpace(secret))
	if secret == "" {
		return nil, fmt.Errorf("totp secret is empty")
	}
	if _, err := totp.GenerateCodeCustom(secret, time.Now(), totpOpts); err != nil {
		return nil, fmt.Errorf("invalid totp secret: %w", err)
	}
	return &TOTPVerifier{secret: secret, now: time.Now}, nil
}

// Verify validates code and rejects a replay of the last accepted code
// within the validation window.
func (v *TOTPVerifier) Verify(code string) bool {
	now := v.now()

	valid, err := totp.ValidateCustom(code, v.secret, now, totpOpts)
	if err != nil || !valid {
		return false
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	// Check for replay: reject if same code used within 90 seconds
	if code == v.lastUsed && now.Sub(v.lastAt) < 3*totpPeriod*time.Second {
		return false
	}
	v.lastUsed = code
	v.lastAt = now
	return true
}

// GenerateTOTPSecret creates a new operator secret and a PNG data URL of
// its provisioning QR code for enrolling an authenticator app.
func GenerateTOTPSecret(issuer, accountName string) (secret, qrDataURL string, err error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: accountName,
		SecretSize:  20,
		Period:      totpPeriod,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to generate TOTP key: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, 200)
	if err != nil {
		return "", "", fmt.Errorf("failed to create QR code: %w", err)
	}

	return key.Secret(), "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
