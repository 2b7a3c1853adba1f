package entity

import (
	"time"

	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// Outcome is the recorded result of an approval step
type Outcome string

const (
	OutcomeSubmitted Outcome = "Submitted"
	OutcomeApproved  Outcome = "Approved"
	OutcomeRejected  Outcome = "Rejected"
)

// OutcomeFor maps a workflow action to the outcome recorded in the trail
func OutcomeFor(action workflow.Action) Outcome {
	switch action {
	case workflow.ActionSubmit:
		return OutcomeSubmitted
	case workflow.ActionReject:
		return OutcomeRejected
	default:
		return OutcomeApproved
	}
}

// ApprovalRecord is one immutable entry of a claim's audit trail
type ApprovalRecord struct {
	ID             int64           `json:"id"`
	ClaimID        int64           `json:"claim_id"`
	ApproverID     int64           `json:"approver_id"`
	ApproverRole   workflow.Role   `json:"approver_role"`
	Action         workflow.Action `json:"action"`
	Outcome        Outcome         `json:"outcome"`
	PreviousStatus workflow.Status `json:"previous_status"`
	NewStatus      workflow.Status `json:"new_status"`
	Notes          string          `json:"notes"`
	Timestamp      time.Time       `json:"timestamp"`
}
