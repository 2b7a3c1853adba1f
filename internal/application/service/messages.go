package service

import (
	"fmt"

	"github.com/garyjia/claim-workflow/internal/domain/workflow"
)

// outcomeMessage is the human readable result shown to the actor
func outcomeMessage(claimID int64, action workflow.Action, next workflow.Status) string {
	switch {
	case action == workflow.ActionSubmit:
		return fmt.Sprintf("Claim #%d submitted successfully! It will now be reviewed by the Coordinator.", claimID)
	case action == workflow.ActionReject:
		return fmt.Sprintf("Claim #%d has been rejected.", claimID)
	case next == workflow.StatusWithManager:
		return fmt.Sprintf("Claim #%d approved and sent to Manager for final approval.", claimID)
	case next == workflow.StatusApproved:
		return fmt.Sprintf("Claim #%d fully approved and sent to HR for processing.", claimID)
	case next == workflow.StatusPaid:
		return fmt.Sprintf("Payment processed for claim #%d.", claimID)
	default:
		return fmt.Sprintf("Claim #%d is now %s.", claimID, next)
	}
}
