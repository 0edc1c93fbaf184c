package models

import (
	"time"

	"github.com/google/uuid"
)

// RegistrationKey is a one-time credential issued to an organization.
// The plaintext key is never stored; lookups go through KeyHash.
type RegistrationKey struct {
	ID        uuid.UUID  `db:"id"`
	KeyHash   string     `db:"key_hash"`
	CompanyID uuid.UUID  `db:"company_id"`
	Label     string     `db:"label"`
	IssuedAt  time.Time  `db:"issued_at"`
	ExpiresAt time.Time  `db:"expires_at"`
	Used      bool       `db:"used"`
	UsedAt    *time.Time `db:"used_at"`
}

// IsExpired reports whether the key is expired at now. Expiry is derived,
// never stored.
func (k *RegistrationKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// IssuedBefore reports whether the key was issued more than age ago.
func (k *RegistrationKey) IssuedBefore(now time.Time, age time.Duration) bool {
	return now.Sub(k.IssuedAt) > age
}
