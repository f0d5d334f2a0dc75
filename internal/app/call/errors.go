package call

import (
	"errors"
	"fmt"
)

var (
	// ErrCallFailed is the only failure the user sees, whatever the cause.
	ErrCallFailed = errors.New("call failed, please try again")
	// ErrNegotiation wraps peer connection and SDP errors.
	ErrNegotiation = errors.New("negotiation failed")
	// ErrAborted is returned by StartCall when a hangup or shutdown wins the
	// race against negotiation.
	ErrAborted = errors.New("call aborted")
	ErrStopped = errors.New("call controller stopped")
)

type Kind int

const (
	KindAcquisition Kind = iota + 1
	KindNegotiation
)

func (k Kind) String() string {
	switch k {
	case KindAcquisition:
		return "acquisition"
	case KindNegotiation:
		return "negotiation"
	default:
		return "unknown"
	}
}

// CallError keeps the cause for logs and errors.Is while printing the
// generic user message.
type CallError struct {
	Kind Kind
	Err  error
}

func (e *CallError) Error() string { return ErrCallFailed.Error() }

func (e *CallError) Unwrap() []error { return []error{ErrCallFailed, e.Err} }

func acquisitionError(err error) error {
	return &CallError{Kind: KindAcquisition, Err: err}
}

func negotiationError(step string, err error) error {
	return &CallError{Kind: KindNegotiation, Err: fmt.Errorf("%w: %s: %v", ErrNegotiation, step, err)}
}
