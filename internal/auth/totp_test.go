package auth

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTOTPSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

func newTestVerifier(t *testing.T, now time.Time) *TOTPVerifier {
	t.Helper()
	v, err := NewTOTPVerifier(testTOTPSecret)
	require.NoError(t, err)
	v.now = func() time.Time { return now }
	return v
}

func codeAt(t *testing.T, at time.Time) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(testTOTPSecret, at, totpOpts)
	require.NoError(t, err)
	return code
}

func TestNewTOTPVerifier_InvalidSecret(t *testing.T) {
	_, err := NewTOTPVerifier("")
	assert.Error(t, err)

	_, err = NewTOTPVerifier("not base32 !!")
	assert.Error(t, err)
}

func TestTOTPVerifier_Verify_CurrentCode(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)

	assert.True(t, v.Verify(codeAt(t, now)))
}

func TestTOTPVerifier_Verify_Skew(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		offset time.Duration
		want   bool
	}{
		{"previous step", -30 * time.Second, true},
		{"next step", 30 * time.Second, true},
		{"two steps old", -60 * time.Second, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newTestVerifier(t, now)
			assert.Equal(t, tt.want, v.Verify(codeAt(t, now.Add(tt.offset))))
		})
	}
}

func TestTOTPVerifier_Verify_InvalidCode(t *testing.T) {
	v := newTestVerifier(t, time.Now())

	assert.False(t, v.Verify("000000x"))
	assert.False(t, v.Verify(""))
}

func TestTOTPVerifier_Verify_RejectsReplay(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	v := newTestVerifier(t, now)
	code := codeAt(t, now)

	require.True(t, v.Verify(code))
	assert.False(t, v.Verify(code))

	// The next step's code is still accepted
	v.now = func() time.Time { return now.Add(30 * time.Second) }
	assert.True(t, v.Verify(codeAt(t, now.Add(30*time.Second))))
}

func TestGenerateTOTPSecret(t *testing.T) {
	secret, qr, err := GenerateTOTPSecret("enrollguard", "ops@example.com")
	require.NoError(t, err)

	assert.Len(t, secret, 32)
	require.True(t, strings.HasPrefix(qr, "data:image/png;base64,"))
	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(qr, "data:image/png;base64,"))
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG"), png[:4])

	// The generated secret is usable by the verifier
	_, err = NewTOTPVerifier(secret)
	assert.NoError(t, err)
}
