package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")
)

// Admission outcomes. These are expected, user-facing results of a
// registration attempt and are always written to the audit log.
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrIPBlocked         = errors.New("ip address is temporarily blocked")

	ErrKeyNotFound     = errors.New("registration key not found")
	ErrKeyExpired      = errors.New("registration key expired")
	ErrKeyAlreadyUsed  = errors.New("registration key already used")
	ErrCompanyMismatch = errors.New("registration key does not belong to organization")
)

// ErrStorageUnavailable is an infrastructure fault, not an attempt outcome.
// The guard fails closed when it sees it and callers may retry.
var ErrStorageUnavailable = errors.New("storage unavailable")

// IsKeyError reports whether err is one of the registration key rejections.
func IsKeyError(err error) bool {
	return errors.Is(err, ErrKeyNotFound) ||
		errors.Is(err, ErrKeyExpired) ||
		errors.Is(err, ErrKeyAlreadyUsed) ||
		errors.Is(err, ErrCompanyMismatch)
}
