package services

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/BradenHooton/enrollguard/internal/models"
)

// attributeGroups is the number of fingerprint attribute groups that make
// up QualityScore.Value.
const attributeGroups = 7

var (
	automationUserAgents = []string{
		"headless", "selenium", "puppeteer", "phantomjs", "curl", "wget",
		"python-requests", "go-http-client", "bot", "crawler", "spider",
	}
	emulatorHardwareIDs = []string{
		"qemu", "virtualbox", "vmware", "goldfish", "generic_x86", "sdk_gphone", "emulator",
	}
)

// FingerprintEvaluator grades device fingerprints. It is stateless.
type FingerprintEvaluator struct {
	weakBelow float64
}

// NewFingerprintEvaluator creates an evaluator that treats fingerprints
// with Value below weakBelow as weak.
func NewFingerprintEvaluator(weakBelow float64) *FingerprintEvaluator {
	return &FingerprintEvaluator{weakBelow: weakBelow}
}

// ScoreQuality returns the share of attribute groups present and the named
// deficiencies. A bot signature is reported as a deficiency but does not
// lower Value.
func (e *FingerprintEvaluator) ScoreQuality(fp models.DeviceFingerprint) models.QualityScore {
	deficiencies := make([]string, 0)
	present := 0

	check := func(ok bool, deficiency string) {
		if ok {
			present++
			return
		}
		deficiencies = append(deficiencies, deficiency)
	}

	check(hasAny(fp.HardwareIDs), models.DeficiencyMissingHardwareIDs)
	check(hasAny(fp.MACAddresses), models.DeficiencyMissingMACAddresses)
	check(strings.TrimSpace(fp.OSVersion) != "", models.DeficiencyMissingOSVersion)
	check(strings.TrimSpace(fp.UserAgent) != "", models.DeficiencyMissingUserAgent)
	check(strings.TrimSpace(fp.Locale) != "", models.DeficiencyMissingLocale)
	check(strings.TrimSpace(fp.Timezone) != "", models.DeficiencyMissingTimezone)
	check(strings.TrimSpace(fp.ScreenCaps) != "", models.DeficiencyMissingScreenCaps)

	if HasBotSignature(fp) {
		deficiencies = append(deficiencies, models.DeficiencyBotSignature)
	}

	return models.QualityScore{
		Value:        float64(present) / attributeGroups,
		Deficiencies: deficiencies,
	}
}

// Weak reports whether q is too poor to trust. A fingerprint carrying a bot
// signature is always weak.
func (e *FingerprintEvaluator) Weak(q models.QualityScore) bool {
	return q.Value < e.weakBelow || q.Has(models.DeficiencyBotSignature)
}

// Summarize projects fp into the fields kept in the audit log.
func (e *FingerprintEvaluator) Summarize(fp models.DeviceFingerprint, q models.QualityScore) models.FingerprintSummary {
	return models.FingerprintSummary{
		Hash:         FingerprintHash(fp),
		Quality:      q.Value,
		Deficiencies: q.Deficiencies,
		OSVersion:    truncate(fp.OSVersion, 64),
		UserAgent:    truncate(fp.UserAgent, 256),
	}
}

// HasBotSignature matches automation user agents, emulator or VM hardware
// identifiers, and headless screen capabilities.
func HasBotSignature(fp models.DeviceFingerprint) bool {
	if containsAny(strings.ToLower(fp.UserAgent), automationUserAgents) {
		return true
	}
	for _, id := range fp.HardwareIDs {
		if containsAny(strings.ToLower(id), emulatorHardwareIDs) {
			return true
		}
	}
	caps := strings.ToLower(strings.TrimSpace(fp.ScreenCaps))
	return caps == "0x0" || strings.Contains(caps, "headless")
}

// FingerprintHash is a stable digest of the normalized fingerprint. List
// attributes are sorted so reordering does not change the hash.
func FingerprintHash(fp models.DeviceFingerprint) string {
	hw := normalizedList(fp.HardwareIDs)
	macs := normalizedList(fp.MACAddresses)

	parts := []string{
		strings.Join(hw, ","),
		strings.Join(macs, ","),
		strings.TrimSpace(fp.OSVersion),
		strings.TrimSpace(fp.UserAgent),
		strings.TrimSpace(fp.Locale),
		strings.TrimSpace(fp.Timezone),
		strings.TrimSpace(fp.ScreenCaps),
	}

	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func normalizedList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func hasAny(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

func containsAny(s string, needles []string) bool {
	if s == "" {
		return false
	}
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
