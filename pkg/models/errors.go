package models

// ErrorKind is the language-neutral error taxonomy surfaced on the wire.
type ErrorKind string

// Error kinds, mapped to HTTP status codes at the API edge.
const (
	ErrKindBadRequest      ErrorKind = "BAD_REQUEST"
	ErrKindRequestTooLarge ErrorKind = "REQUEST_TOO_LARGE"
	ErrKindBusy            ErrorKind = "BUSY"
	ErrKindNotFound        ErrorKind = "NOT_FOUND"
	ErrKindNotReady        ErrorKind = "NOT_READY"
	ErrKindTimeout         ErrorKind = "TIMEOUT"
	ErrKindUpstream        ErrorKind = "UPSTREAM"
	ErrKindCancelled       ErrorKind = "CANCELLED"
	ErrKindInternal        ErrorKind = "INTERNAL"
)

// IsValid checks if the error kind is one of the enumerated values.
func (k ErrorKind) IsValid() bool {
	switch k {
	case ErrKindBadRequest, ErrKindRequestTooLarge, ErrKindBusy, ErrKindNotFound,
		ErrKindNotReady, ErrKindTimeout, ErrKindUpstream, ErrKindCancelled, ErrKindInternal:
		return true
	default:
		return false
	}
}
