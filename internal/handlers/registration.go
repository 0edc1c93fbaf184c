package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/BradenHooton/enrollguard/internal/models"
	"github.com/BradenHooton/enrollguard/internal/services"
	pkghttp "github.com/BradenHooton/enrollguard/pkg/http"
	"github.com/google/uuid"
)

// storageRetryAfter is advertised on 503 responses
const storageRetryAfter = 5 * time.Second

// AttemptIDHeader echoes the audit record id of every registration attempt
const AttemptIDHeader = "X-Attempt-ID"

// RegistrationGuardInterface defines the admission pipeline contract
type RegistrationGuardInterface interface {
	Register(ctx context.Context, req services.RegistrationRequest) (*services.RegistrationResult, error)
	RecordRejected(ctx context.Context, req services.RegistrationRequest, reason string) uuid.UUID
}

// RegistrationHandler handles device self-registration
type RegistrationHandler struct {
	guard    RegistrationGuardInterface
	ipConfig *pkghttp.IPConfig
}

// NewRegistrationHandler creates a new RegistrationHandler
func NewRegistrationHandler(guard RegistrationGuardInterface, ipConfig *pkghttp.IPConfig) *RegistrationHandler {
	return &RegistrationHandler{
		guard:    guard,
		ipConfig: ipConfig,
	}
}

// FingerprintRequest is the device-reported attribute set
type FingerprintRequest struct {
	HardwareIDs  []string `json:"hardware_ids" validate:"max=16,dive,max=128"`
	MACAddresses []string `json:"mac_addresses" validate:"max=16,dive,max=64"`
	OSVersion    string   `json:"os_version" validate:"max=128"`
	UserAgent    string   `json:"user_agent" validate:"max=1024"`
	Locale       string   `json:"locale" validate:"max=35"`
	Timezone     string   `json:"timezone" validate:"max=64"`
	ScreenCaps   string   `json:"screen_caps" validate:"max=64"`
}

// RegisterDeviceRequest represents the request body for device registration
type RegisterDeviceRequest struct {
	DeviceName       string             `json:"device_name" validate:"required,max=128"`
	OrganizationCode string             `json:"organization_code" validate:"required,max=64"`
	RegistrationKey  string             `json:"registration_key" validate:"required,max=256"`
	Fingerprint      FingerprintRequest `json:"fingerprint"`
}

// RegisterDeviceResponse is returned for admitted devices. DeviceToken is
// only present for active devices.
type RegisterDeviceResponse struct {
	AttemptID   string              `json:"attempt_id"`
	DeviceID    string              `json:"device_id"`
	Status      models.DeviceStatus `json:"status"`
	DeviceToken string              `json:"device_token,omitempty"`
	RiskScore   float64             `json:"risk_score"`
	Message     string              `json:"message,omitempty"`
}

// Register handles POST /devices/register
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterDeviceRequest

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.reject(w, r, req, models.ReasonBadRequest)
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		h.reject(w, r, req, models.ReasonBadRequest)
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.guard.Register(r.Context(), services.RegistrationRequest{
		DeviceName:       strings.TrimSpace(req.DeviceName),
		OrganizationCode: strings.TrimSpace(req.OrganizationCode),
		RegistrationKey:  req.RegistrationKey,
		SourceIP:         pkghttp.ExtractClientIP(r, h.ipConfig),
		Fingerprint: models.DeviceFingerprint{
			HardwareIDs:  req.Fingerprint.HardwareIDs,
			MACAddresses: req.Fingerprint.MACAddresses,
			OSVersion:    req.Fingerprint.OSVersion,
			UserAgent:    req.Fingerprint.UserAgent,
			Locale:       req.Fingerprint.Locale,
			Timezone:     req.Fingerprint.Timezone,
			ScreenCaps:   req.Fingerprint.ScreenCaps,
		},
	})
	if result != nil {
		w.Header().Set(AttemptIDHeader, result.AttemptID.String())
	}
	if err != nil {
		writeRegistrationError(w, result, err)
		return
	}

	resp := RegisterDeviceResponse{
		AttemptID: result.AttemptID.String(),
		DeviceID:  result.Device.ID.String(),
		Status:    result.Device.Status,
		RiskScore: result.Risk.Score,
	}

	if result.Outcome == models.OutcomeFlagged {
		resp.Message = "Device registered and pending manual review"
		pkghttp.WriteJSON(w, http.StatusAccepted, resp)
		return
	}

	resp.DeviceToken = result.DeviceToken
	pkghttp.WriteJSON(w, http.StatusOK, resp)
}

// Throttled audits a registration request shed by the per-IP throttle.
// The 429 itself is written by the throttle middleware.
func (h *RegistrationHandler) Throttled(w http.ResponseWriter, r *http.Request) {
	h.reject(w, r, RegisterDeviceRequest{}, models.ReasonRateLimited)
}

// reject records a request that never reached the guard and echoes its
// attempt id.
func (h *RegistrationHandler) reject(w http.ResponseWriter, r *http.Request, req RegisterDeviceRequest, reason string) {
	id := h.guard.RecordRejected(r.Context(), services.RegistrationRequest{
		DeviceName:       strings.TrimSpace(req.DeviceName),
		OrganizationCode: strings.TrimSpace(req.OrganizationCode),
		SourceIP:         pkghttp.ExtractClientIP(r, h.ipConfig),
	}, reason)
	w.Header().Set(AttemptIDHeader, id.String())
}

func writeRegistrationError(w http.ResponseWriter, result *services.RegistrationResult, err error) {
	switch {
	case errors.Is(err, models.ErrIPBlocked):
		pkghttp.SetRetryAfter(w, retryAfterSeconds(result))
		pkghttp.WriteError(w, http.StatusForbidden, models.ReasonIPBlocked, "Too many failed attempts from this address")
	case errors.Is(err, models.ErrRateLimitExceeded):
		pkghttp.SetRetryAfter(w, retryAfterSeconds(result))
		pkghttp.WriteError(w, http.StatusTooManyRequests, models.ReasonRateLimited, "Registration rate limit exceeded")
	case models.IsKeyError(err):
		pkghttp.WriteError(w, http.StatusBadRequest, models.DenialReasonFor(err), "Registration key rejected")
	default:
		pkghttp.WriteServiceUnavailable(w, int(storageRetryAfter.Seconds()), "Registration is temporarily unavailable")
	}
}

func retryAfterSeconds(result *services.RegistrationResult) int {
	if result == nil || result.RetryAfter <= 0 {
		return 1
	}
	return int(math.Ceil(result.RetryAfter.Seconds()))
}
