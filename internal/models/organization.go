package models

import "github.com/google/uuid"

// Organization owns devices and registration keys. Devices identify their
// organization by Code.
type Organization struct {
	ID   uuid.UUID `db:"id" json:"id"`
	Code string    `db:"code" json:"code"`
	Name string    `db:"name" json:"name"`
}
