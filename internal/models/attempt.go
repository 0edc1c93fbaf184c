package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// AttemptOutcome is the terminal result of a registration attempt.
type AttemptOutcome string

const (
	OutcomeAllowed AttemptOutcome = "allowed"
	OutcomeDenied  AttemptOutcome = "denied"
	// OutcomeFlagged is an admitted attempt whose device needs manual review.
	OutcomeFlagged AttemptOutcome = "flagged"
)

// Admitted reports whether the attempt produced a device record.
func (o AttemptOutcome) Admitted() bool {
	return o == OutcomeAllowed || o == OutcomeFlagged
}

// Denial reasons recorded on AttemptRecord.DenialReason
const (
	ReasonIPBlocked          = "ip_blocked"
	ReasonRateLimited        = "rate_limited"
	ReasonKeyNotFound        = "not_found"
	ReasonKeyExpired         = "expired"
	ReasonKeyAlreadyUsed     = "already_used"
	ReasonCompanyMismatch    = "company_mismatch"
	ReasonStorageUnavailable = "storage_unavailable"
	ReasonBadRequest         = "bad_request"
)

// DenialReasonFor maps an admission error to the reason string stored in
// the audit log. Unknown errors are reported as storage faults since the
// guard only fails on infrastructure problems.
func DenialReasonFor(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIPBlocked):
		return ReasonIPBlocked
	case errors.Is(err, ErrRateLimitExceeded):
		return ReasonRateLimited
	case errors.Is(err, ErrKeyNotFound):
		return ReasonKeyNotFound
	case errors.Is(err, ErrKeyExpired):
		return ReasonKeyExpired
	case errors.Is(err, ErrKeyAlreadyUsed):
		return ReasonKeyAlreadyUsed
	case errors.Is(err, ErrCompanyMismatch):
		return ReasonCompanyMismatch
	default:
		return ReasonStorageUnavailable
	}
}

// AttemptRecord is one immutable row of the registration audit trail.
type AttemptRecord struct {
	ID               uuid.UUID          `db:"id" json:"id"`
	Timestamp        time.Time          `db:"attempted_at" json:"timestamp"`
	SourceIP         string             `db:"source_ip" json:"source_ip"`
	DeviceName       string             `db:"device_name" json:"device_name"`
	OrganizationCode string             `db:"organization_code" json:"organization_code"`
	KeyID            *uuid.UUID         `db:"key_id" json:"key_id,omitempty"`
	DeviceID         *uuid.UUID         `db:"device_id" json:"device_id,omitempty"`
	Fingerprint      FingerprintSummary `db:"fingerprint" json:"fingerprint"`
	Outcome          AttemptOutcome     `db:"outcome" json:"outcome"`
	DenialReason     *string            `db:"denial_reason" json:"denial_reason,omitempty"`
	RiskScore        float64            `db:"risk_score" json:"risk_score"`
}

// AttemptTotals aggregates attempt counts over a time range.
type AttemptTotals struct {
	Total   int64
	Allowed int64
	Flagged int64
	Denied  int64
}

// Admitted returns the number of attempts that created a device.
func (t AttemptTotals) Admitted() int64 {
	return t.Allowed + t.Flagged
}

// AttemptQuery selects attempts with From <= Timestamp < To, newest first.
// An empty SourceIP matches every IP.
type AttemptQuery struct {
	From     time.Time
	To       time.Time
	SourceIP string
	Limit    int
}
