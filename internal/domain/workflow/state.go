package workflow

import (
	"fmt"
	"strings"
)

// Status is a claim's position in the approval workflow
type Status string

const (
	StatusDraft           Status = "Draft"
	StatusSubmitted       Status = "Submitted"
	StatusWithCoordinator Status = "With Coordinator"
	StatusWithManager     Status = "With Manager"
	StatusApproved        Status = "Approved"
	StatusPaid            Status = "Paid"
	StatusRejected        Status = "Rejected"
)

var allStatuses = []Status{
	StatusDraft,
	StatusSubmitted,
	StatusWithCoordinator,
	StatusWithManager,
	StatusApproved,
	StatusPaid,
	StatusRejected,
}

var validStatuses = map[Status]bool{
	StatusDraft:           true,
	StatusSubmitted:       true,
	StatusWithCoordinator: true,
	StatusWithManager:     true,
	StatusApproved:        true,
	StatusPaid:            true,
	StatusRejected:        true,
}

var terminalStatuses = map[Status]bool{
	StatusPaid:     true,
	StatusRejected: true,
}

// pendingStatuses are the statuses still waiting on an approver
var pendingStatuses = map[Status]bool{
	StatusSubmitted:       true,
	StatusWithCoordinator: true,
	StatusWithManager:     true,
}

// AllStatuses returns every status in workflow order
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// IsTerminal returns true if no normal workflow action leaves the status
func (s Status) IsTerminal() bool {
	return terminalStatuses[s]
}

// IsPending returns true if the claim is waiting on a coordinator or manager
func (s Status) IsPending() bool {
	return pendingStatuses[s]
}

// String returns the string representation of the status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a known workflow status
func (s Status) IsValid() bool {
	return validStatuses[s]
}

// ParseStatus resolves user input such as "With Manager", "with_manager" or
// "WithManager" to a Status.
func ParseStatus(s string) (Status, error) {
	if st := Status(s); st.IsValid() {
		return st, nil
	}
	want := normalize(s)
	for _, st := range allStatuses {
		if normalize(string(st)) == want {
			return st, nil
		}
	}
	return "", fmt.Errorf("%w: unknown status %q", ErrInvalidState, s)
}

func normalize(s string) string {
	r := strings.NewReplacer(" ", "", "_", "", "-", "")
	return strings.ToLower(r.Replace(strings.TrimSpace(s)))
}
