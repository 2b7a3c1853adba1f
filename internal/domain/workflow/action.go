package workflow

import "fmt"

// Action is a request to move a claim along the workflow
type Action string

const (
	ActionSubmit         Action = "Submit"
	ActionApprove        Action = "Approve"
	ActionReject         Action = "Reject"
	ActionProcessPayment Action = "ProcessPayment"
)

var validActions = map[Action]bool{
	ActionSubmit:         true,
	ActionApprove:        true,
	ActionReject:         true,
	ActionProcessPayment: true,
}

// IsValid returns true if the action is known
func (a Action) IsValid() bool {
	return validActions[a]
}

// String returns the string representation of the action
func (a Action) String() string {
	return string(a)
}

// ParseAction resolves an action name; "Process Payment" and "process_payment"
// both map to ActionProcessPayment.
func ParseAction(s string) (Action, error) {
	want := normalize(s)
	for a := range validActions {
		if normalize(string(a)) == want {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: unknown action %q", ErrInvalidArgument, s)
}
