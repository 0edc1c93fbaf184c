package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceStatus is the activation state of a registered device.
type DeviceStatus string

const (
	// DeviceStatusActive devices receive a device token and content.
	DeviceStatusActive DeviceStatus = "active"
	// DeviceStatusPending devices are registered but inactive until an
	// operator approves them. They receive no token and no content.
	DeviceStatusPending DeviceStatus = "pending"
)

// Device is a registered piece of signage hardware.
type Device struct {
	ID                uuid.UUID    `db:"id" json:"id"`
	Name              string       `db:"name" json:"name"`
	CompanyID         uuid.UUID    `db:"company_id" json:"company_id"`
	Status            DeviceStatus `db:"status" json:"status"`
	RegistrationKeyID uuid.UUID    `db:"registration_key_id" json:"registration_key_id"`
	FingerprintHash   string       `db:"fingerprint_hash" json:"fingerprint_hash"`
	HardwareIDs       []string     `db:"hardware_ids" json:"hardware_ids"`
	RiskScore         float64      `db:"risk_score" json:"risk_score"`
	RegisteredIP      string       `db:"registered_ip" json:"registered_ip"`
	CreatedAt         time.Time    `db:"created_at" json:"created_at"`
}
