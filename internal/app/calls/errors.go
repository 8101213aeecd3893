package calls

import (
	"errors"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

var (
	ErrInvalidRequest = errors.New("invalid call request")
	ErrRateLimited    = errors.New("invite rate limited")
	ErrNotAllowed     = errors.New("call not allowed")
	ErrDuplicate      = errors.New("duplicate call id")
	ErrUnknownCall    = errors.New("unknown call")
	ErrNotParticipant = errors.New("not a call participant")
	ErrInvalidState   = errors.New("invalid call state")
	ErrUnsupported    = errors.New("unsupported call event")
)

type rejection struct {
	message string
	reason  string
}

// rejections holds the client-facing text and metric label of each sentinel.
var rejections = map[error]rejection{
	ErrRateLimited:    {"Too many call invites", "rate_limited"},
	ErrNotAllowed:     {"Not allowed to call this user", "not_allowed"},
	ErrDuplicate:      {"Call already exists", "duplicate"},
	ErrUnknownCall:    {"Unknown call", "unknown_call"},
	ErrNotParticipant: {"Not authorized for this call", "not_participant"},
	ErrInvalidState:   {"Invalid call state", "invalid_state"},
	ErrUnsupported:    {"Unsupported call event", "unsupported"},
}

// Error is a rejected call request, answered to the requester only.
type Error struct {
	Err          error
	Message      string
	ContextEvent string
	CallID       string
}

func newError(cause error, event, callID string) *Error {
	return &Error{Err: cause, Message: rejections[cause].message, ContextEvent: event, CallID: callID}
}

// Reject wraps a malformed call event; message is sent as is.
func Reject(event, message string) *Error {
	return &Error{Err: ErrInvalidRequest, Message: message, ContextEvent: event}
}

func (e *Error) Error() string { return e.ContextEvent + ": " + e.Err.Error() }

func (e *Error) Unwrap() error { return e.Err }

// Envelope renders e as call.error addressed to uid.
func (e *Error) Envelope(uid domain.UserID) (core.Envelope, error) {
	return core.NewEnvelope(core.EventCallError, core.CallErrorPayload{
		Message:      e.Message,
		ContextEvent: e.ContextEvent,
		CallID:       e.CallID,
	}, uid)
}
