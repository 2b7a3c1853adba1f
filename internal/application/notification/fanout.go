package notification

import (
	"github.com/garyjia/claim-workflow/internal/domain/entity"
	"github.com/garyjia/claim-workflow/internal/domain/event"
	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// Change is a committed status change worth announcing
type Change struct {
	Claim         *entity.Claim
	Previous      workflow.Status
	Action        workflow.Action
	ActorID       int64
	ActorRole     workflow.Role
	Message       string
	CorrelationID string
}

// Fanout returns the envelopes announcing change, in publish order:
// the next approver group first, then the owner, then the broadcast topic.
func Fanout(change Change) []event.Envelope {
	claim := change.Claim
	seq := claim.Version

	payload := func() map[string]interface{} {
		return map[string]interface{}{
			event.KeyStatus:         claim.Status.String(),
			event.KeyPreviousStatus: change.Previous.String(),
			event.KeyRole:           change.ActorRole.String(),
			event.KeyActorID:        change.ActorID,
			event.KeyLecturerID:     claim.LecturerID,
			event.KeyAmount:         claim.Amount,
			event.KeyMessage:        change.Message,
		}
	}
	newEvent := func(t event.Type) *event.Event {
		return event.NewEventWithCorrelation(t, claim.ID, seq, payload(), change.CorrelationID)
	}

	envelopes := make([]event.Envelope, 0, 3)

	switch {
	case claim.Status == workflow.StatusSubmitted:
		envelopes = append(envelopes, event.Envelope{Topic: entity.TopicCoordinators, Event: newEvent(event.TypeNewClaimSubmitted)})
	case claim.Status == workflow.StatusWithManager && change.Action == workflow.ActionApprove:
		envelopes = append(envelopes, event.Envelope{Topic: entity.TopicManagers, Event: newEvent(event.TypeCoordinatorApproved)})
	case claim.Status == workflow.StatusApproved:
		envelopes = append(envelopes, event.Envelope{Topic: entity.TopicHR, Event: newEvent(event.TypeManagerApproved)})
	}

	envelopes = append(envelopes,
		event.Envelope{Topic: entity.LecturerTopic(claim.LecturerID), Event: newEvent(event.TypeStatusChanged)},
		event.Envelope{Topic: entity.TopicAll, Event: newEvent(event.TypeClaimStatusBroadcast)},
	)

	return envelopes
}
