package event

import (
	"testing"

	"github.com/google/uuid"

	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

func TestType_IsValid(t *testing.T) {
	tests := []struct {
		name      string
		eventType Type
		want      bool
	}{
		{"new claim", TypeNewClaimSubmitted, true},
		{"coordinator approved", TypeCoordinatorApproved, true},
		{"manager approved", TypeManagerApproved, true},
		{"status changed", TypeStatusChanged, true},
		{"broadcast", TypeClaimStatusBroadcast, true},
		{"unknown", Type("ClaimDeleted"), false},
		{"empty", Type(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.eventType.IsValid(); got != tt.want {
				t.Errorf("Type.IsValid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewEvent(t *testing.T) {
	evt := NewEvent(TypeStatusChanged, 12, 3, map[string]interface{}{
		KeyStatus: workflow.StatusWithManager,
	})

	if _, err := uuid.Parse(evt.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", evt.ID, err)
	}
	if evt.ClaimID != 12 || evt.Sequence != 3 {
		t.Errorf("ClaimID/Sequence = %d/%d, want 12/3", evt.ClaimID, evt.Sequence)
	}
	if evt.CorrelationID == "" {
		t.Error("CorrelationID should be generated")
	}
	if evt.Timestamp.IsZero() {
		t.Error("Timestamp should be set")
	}
	if got := evt.GetPayloadString(KeyStatus); got != "With Manager" {
		t.Errorf("GetPayloadString(status) = %q, want %q", got, "With Manager")
	}
}

func TestNewEvent_NilPayload(t *testing.T) {
	evt := NewEventWithCorrelation(TypeNewClaimSubmitted, 1, 1, nil, "rec-9")
	if evt.Payload == nil {
		t.Fatal("Payload should never be nil")
	}
	if evt.CorrelationID != "rec-9" {
		t.Errorf("CorrelationID = %q, want rec-9", evt.CorrelationID)
	}
}

func TestEvent_WithPayload(t *testing.T) {
	original := NewEvent(TypeManagerApproved, 5, 4, map[string]interface{}{KeyActorID: int64(2)})
	updated := original.WithPayload(KeyAmount, 9625.0)

	if _, ok := original.Payload[KeyAmount]; ok {
		t.Error("WithPayload mutated the original event")
	}
	if updated.GetPayloadFloat(KeyAmount) != 9625.0 {
		t.Errorf("GetPayloadFloat(amount) = %v", updated.GetPayloadFloat(KeyAmount))
	}
	if updated.GetPayloadInt(KeyActorID) != 2 {
		t.Errorf("GetPayloadInt(actor_id) = %v", updated.GetPayloadInt(KeyActorID))
	}
	if updated.ID != original.ID || updated.Sequence != original.Sequence {
		t.Error("WithPayload should keep identity fields")
	}
}

func TestEvent_GetPayloadMissing(t *testing.T) {
	evt := NewEvent(TypeStatusChanged, 1, 1, nil)
	if evt.GetPayloadString("missing") != "" {
		t.Error("expected empty string")
	}
	if evt.GetPayloadInt("missing") != 0 {
		t.Error("expected zero int")
	}
	if evt.GetPayloadFloat("missing") != 0 {
		t.Error("expected zero float")
	}
}
