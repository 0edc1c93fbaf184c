package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// SecurityEventType enumerates admission-control state transitions.
type SecurityEventType string

const (
	SecurityEventBlocked         SecurityEventType = "blocked"
	SecurityEventUnblocked       SecurityEventType = "unblocked"
	SecurityEventHighRiskFlagged SecurityEventType = "high_risk_flagged"
)

// SecurityEvent is an append-only record of a block, unblock or high-risk
// flag. Subject is an IP address or a device id.
type SecurityEvent struct {
	ID        uuid.UUID         `db:"id" json:"id"`
	Type      SecurityEventType `db:"event_type" json:"type"`
	Subject   string            `db:"subject" json:"subject"`
	Timestamp time.Time         `db:"occurred_at" json:"timestamp"`
	Detail    EventDetail       `db:"detail" json:"detail,omitempty"`
}

// EventDetail holds additional context for security events
type EventDetail map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (ed *EventDetail) Scan(value interface{}) error {
	if value == nil {
		*ed = make(EventDetail)
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

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*ed = EventDetail(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (ed EventDetail) Value() (driver.Value, error) {
	if ed == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(ed))
}

// EventQuery selects events with From <= Timestamp < To, newest first.
// An empty Type matches every type.
type EventQuery struct {
	From  time.Time
	To    time.Time
	Type  SecurityEventType
	Limit int
}
