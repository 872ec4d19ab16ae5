package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reasons carried by a ChangeMessage
const (
	ReasonEntry       = "entry"
	ReasonStructure   = "structure"
	ReasonOrder       = "order"
	ReasonStatus      = "status"
	ReasonRollover    = "rollover"
	ReasonSeed        = "seed"
	WholeYear         = 0
	changeMessageKind = "entries.changed"
)

// ChangeMessage announces that persisted data of a company year changed.
// It carries no payload: consumers reload from the store.
type ChangeMessage struct {
	Kind      string    `json:"kind"`
	CompanyID uuid.UUID `json:"company_id"`
	Year      int       `json:"year"`
	// Month is WholeYear when the change is not bound to a month.
	Month     int       `json:"month"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewChangeMessage creates a change message stamped with the current time
func NewChangeMessage(companyID uuid.UUID, year, month int, reason string) *ChangeMessage {
	return &ChangeMessage{
		Kind:      changeMessageKind,
		CompanyID: companyID,
		Year:      year,
		Month:     month,
		Reason:    reason,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ChangeMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ChangeMessageFromJSON creates a message from JSON bytes
func ChangeMessageFromJSON(data []byte) (*ChangeMessage, error) {
	var msg ChangeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Kind != changeMessageKind {
		return nil, fmt.Errorf("unexpected message kind %q", msg.Kind)
	}
	if msg.Year == 0 {
		return nil, fmt.Errorf("change message without year")
	}
	return &msg, nil
}
