package models

import (
	"database/sql/driver"
	"encoding/json"
)

// DeviceFingerprint is the attribute set a device reports at registration.
// It is transient: only a FingerprintSummary is persisted.
type DeviceFingerprint struct {
	HardwareIDs  []string `json:"hardware_ids"`
	MACAddresses []string `json:"mac_addresses"`
	OSVersion    string   `json:"os_version"`
	UserAgent    string   `json:"user_agent"`
	Locale       string   `json:"locale"`
	Timezone     string   `json:"timezone"`
	ScreenCaps   string   `json:"screen_caps"`
}

// Fingerprint deficiencies
const (
	DeficiencyMissingMACAddresses = "missing_mac_addresses"
	DeficiencyMissingUserAgent    = "missing_user_agent"
	DeficiencyMissingHardwareIDs  = "missing_hardware_ids"
	DeficiencyMissingOSVersion    = "missing_os_version"
	DeficiencyMissingLocale       = "missing_locale"
	DeficiencyMissingTimezone     = "missing_timezone"
	DeficiencyMissingScreenCaps   = "missing_screen_caps"
	DeficiencyBotSignature        = "bot_signature"
)

// QualityScore grades the completeness of a fingerprint. Value is the share
// of attribute groups present, in [0, 1].
type QualityScore struct {
	Value        float64  `json:"value"`
	Deficiencies []string `json:"deficiencies"`
}

// Has reports whether the named deficiency was found.
func (q QualityScore) Has(deficiency string) bool {
	for _, d := range q.Deficiencies {
		if d == deficiency {
			return true
		}
	}
	return false
}

// FingerprintSummary is the audit-safe projection of a DeviceFingerprint.
type FingerprintSummary struct {
	Hash         string   `json:"hash,omitempty"`
	Quality      float64  `json:"quality"`
	Deficiencies []string `json:"deficiencies,omitempty"`
	OSVersion    string   `json:"os_version,omitempty"`
	UserAgent    string   `json:"user_agent,omitempty"`
}

// Scan implements sql.Scanner for JSONB
func (fs *FingerprintSummary) Scan(value interface{}) error {
	if value == nil {
		*fs = FingerprintSummary{}
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return ErrBadRequest
	}

	return json.Unmarshal(data, fs)
}

// Value implements driver.Valuer for JSONB
func (fs FingerprintSummary) Value() (driver.Value, error) {
	return json.Marshal(fs)
}
