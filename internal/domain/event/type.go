package event

// Type identifies the kind of notification
type Type string

const (
	TypeNewClaimSubmitted    Type = "NewClaimSubmitted"
	TypeCoordinatorApproved  Type = "CoordinatorApproved"
	TypeManagerApproved      Type = "ManagerApproved"
	TypeStatusChanged        Type = "StatusChanged"
	TypeClaimStatusBroadcast Type = "ClaimStatusBroadcast"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeNewClaimSubmitted,
		TypeCoordinatorApproved,
		TypeManagerApproved,
		TypeStatusChanged,
		TypeClaimStatusBroadcast:
		return true
	default:
		return false
	}
}
