package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

// RegistrationKeyPrefix marks plaintext registration keys
const RegistrationKeyPrefix = "egk_"

// RegistrationKeyManager handles registration key generation and hashing
type RegistrationKeyManager struct {
	prefix string
	qrSize int
}

// NewRegistrationKeyManager creates a new RegistrationKeyManager
func NewRegistrationKeyManager() *RegistrationKeyManager {
	return &RegistrationKeyManager{
		prefix: RegistrationKeyPrefix,
		qrSize: 256,
	}
}

// GenerateKey generates a new key in the format egk_<64 hex chars>.
// The plaintext is shown once; only the hash is stored.
func (m *RegistrationKeyManager) GenerateKey() (plainKey, hash string, err error) {
	// 32 random bytes = 256 bits of entropy
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	plainKey = m.prefix + hex.EncodeToString(randomBytes)
	return plainKey, HashRegistrationKey(plainKey), nil
}

// QRCode renders the enrollment payload as a base64 PNG for on-site setup.
func (m *RegistrationKeyManager) QRCode(organizationCode, plainKey string) (string, error) {
	payload := fmt.Sprintf("enrollguard://register?org=%s&key=%s", organizationCode, plainKey)
	png, err := qrcode.Encode(payload, qrcode.Medium, m.qrSize)
	if err != nil {
		return "", fmt.Errorf("failed to encode QR code: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}

// HashRegistrationKey returns the stored lookup hash of a plaintext key.
// Surrounding whitespace is ignored.
func HashRegistrationKey(plainKey string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(plainKey)))
	return hex.EncodeToString(sum[:])
}

// KeyHint returns the prefix and last four characters for display
func KeyHint(plainKey string) string {
	plainKey = strings.TrimSpace(plainKey)
	if len(plainKey) < len(RegistrationKeyPrefix)+8 {
		return "****"
	}
	return plainKey[:len(RegistrationKeyPrefix)] + "…" + plainKey[len(plainKey)-4:]
}
