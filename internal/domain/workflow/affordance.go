package workflow

// AvailableActions returns the action labels a UI should offer for a claim in
// status. Some labels ("Request Changes", "Escalate", "Reopen", "Archive") are
// advisory and have no edge in the transition table.
func AvailableActions(status Status) []string {
	switch status {
	case StatusDraft:
		return []string{"Submit"}
	case StatusSubmitted, StatusWithCoordinator:
		return []string{"Approve", "Reject", "Request Changes"}
	case StatusWithManager:
		return []string{"Approve", "Reject", "Escalate"}
	case StatusApproved:
		return []string{"Process Payment"}
	case StatusRejected:
		return []string{"Reopen", "Archive"}
	default:
		return []string{}
	}
}
