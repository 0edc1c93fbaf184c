package handlers

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest_ReportsJSONPath(t *testing.T) {
	req := RegisterDeviceRequest{
		DeviceName:       "lobby",
		OrganizationCode: "ACME",
		RegistrationKey:  "egk_abc",
		Fingerprint:      FingerprintRequest{MACAddresses: make([]string, 17)},
	}

	err := ValidateRequest(req)

	var fe *FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "fingerprint.mac_addresses", fe.Field)
	assert.Equal(t, "must have at most 16 entries", fe.Message)
}

func TestValidateRequest_Messages(t *testing.T) {
	tests := []struct {
		name    string
		req     interface{}
		wantMsg string
	}{
		{"required", UnblockIPRequest{}, "ip_address: this field is required"},
		{"ip", UnblockIPRequest{IPAddress: "not-an-ip"}, "ip_address: must be a valid IPv4 or IPv6 address"},
		{"string max", CreateOrganizationRequest{Code: "ACME", Name: strings.Repeat("n", 257)}, "name: must have at most 256 characters"},
		{"alphanum", CreateOrganizationRequest{Code: "AC-ME", Name: "Acme"}, "code: must contain only letters and digits"},
		{"lte", IssueKeyRequest{OrganizationCode: "ACME", TTLHours: 9000}, "ttl_hours: must be at most 8760"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRequest(tt.req)
			require.Error(t, err)
			assert.Equal(t, "validation failed: "+tt.wantMsg, err.Error())
		})
	}
}

func TestValidateRequest_Valid(t *testing.T) {
	assert.NoError(t, ValidateRequest(UnblockIPRequest{IPAddress: "2001:db8::1"}))
}
