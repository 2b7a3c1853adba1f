package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/claim-workflow/internal/domain/entity"
)

// Payload keys
const (
	KeyStatus         = "status"
	KeyPreviousStatus = "previous_status"
	KeyRole           = "role"
	KeyActorID        = "actor_id"
	KeyLecturerID     = "lecturer_id"
	KeyAmount         = "amount"
	KeyMessage        = "message"
)

// Event is a notification about a committed claim change
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	ClaimID       int64                  `json:"claim_id"`
	Sequence      int64                  `json:"sequence"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates an event for a claim at the given sequence number
func NewEvent(eventType Type, claimID, sequence int64, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, claimID, sequence, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain,
// typically the audit record that produced it.
func NewEventWithCorrelation(eventType Type, claimID, sequence int64, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		ClaimID:       claimID,
		Sequence:      sequence,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
	}
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	cp := *e
	cp.Payload = newPayload
	return &cp
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	switch v := e.Payload[key].(type) {
	case string:
		return v
	case interface{ String() string }:
		return v.String()
	}
	return ""
}

// GetPayloadInt retrieves an int64 value from the payload
func (e *Event) GetPayloadInt(key string) int64 {
	switch v := e.Payload[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

// GetPayloadFloat retrieves a float64 value from the payload
func (e *Event) GetPayloadFloat(key string) float64 {
	switch v := e.Payload[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

// Envelope addresses an event to one topic
type Envelope struct {
	Topic entity.Topic `json:"topic"`
	Event *Event       `json:"event"`
}
