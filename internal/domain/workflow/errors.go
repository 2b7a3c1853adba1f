package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when the (status, role, action) combination is not in the table
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConflict is returned when the caller's expected status is stale
	ErrConflict = errors.New("claim status conflict")

	// ErrNotFound is returned when the claim does not exist
	ErrNotFound = errors.New("claim not found")

	// ErrStorage is returned when the claim store fails; the transition was not applied
	ErrStorage = errors.New("claim store failure")

	// ErrNotificationDelivery is returned by transports when an event could not be delivered
	ErrNotificationDelivery = errors.New("notification delivery failure")

	// ErrInvalidState is returned when a state is not valid
	ErrInvalidState = errors.New("invalid state")

	// ErrInvalidArgument is returned for malformed requests
	ErrInvalidArgument = errors.New("invalid argument")
)

// Kind classifies an error for callers outside the engine
type Kind string

const (
	KindInvalidTransition   Kind = "InvalidTransition"
	KindConflict            Kind = "Conflict"
	KindNotFound            Kind = "NotFound"
	KindStorage             Kind = "StorageError"
	KindNotificationFailure Kind = "NotificationDeliveryFailure"
	KindInvalidArgument     Kind = "InvalidArgument"
	KindInternal            Kind = "Internal"
)

// KindOf maps an error chain to its Kind. Nil maps to the empty Kind.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidTransition):
		return KindInvalidTransition
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrStorage):
		return KindStorage
	case errors.Is(err, ErrNotificationDelivery):
		return KindNotificationFailure
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrInvalidState):
		return KindInvalidArgument
	default:
		return KindInternal
	}
}

// Retryable reports whether the caller may retry after re-reading the claim
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindStorage:
		return true
	default:
		return false
	}
}
