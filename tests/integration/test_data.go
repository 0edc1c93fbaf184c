//go:build integration

package integration

import (
	"fmt"
	"time"

	"github.com/BradenHooton/enrollguard/internal/handlers"
	"github.com/google/uuid"
)

// businessHours is a Tuesday morning in UTC
var businessHours = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)

// TestKey generates a unique plaintext registration key
func TestKey(suffix string) string {
	return fmt.Sprintf("egk_%s_%s", suffix, uuid.NewString()[:8])
}

// RegisterBody builds a registration request with a strong fingerprint
func RegisterBody(orgCode, key, deviceName string) handlers.RegisterDeviceRequest {
	return handlers.RegisterDeviceRequest{
		DeviceName:       deviceName,
		OrganizationCode: orgCode,
		RegistrationKey:  key,
		Fingerprint: handlers.FingerprintRequest{
			HardwareIDs:  []string{"SN-" + deviceName},
			MACAddresses: []string{"00:1a:2b:3c:4d:5e"},
			OSVersion:    "Android 13",
			UserAgent:    "SignagePlayer/4.2",
		},
	}
}
