package scheme

import (
	"errors"
	"fmt"
)

// State of the exchange with the destination.
type State int

const (
	Init State = iota
	Connecting
	SendingRequest
	AwaitingResponse
	ReceivingBody
	Complete
	Failed
)

// ErrInvalidTransition is returned when a state change would go
// backwards or leave a terminal state.
var ErrInvalidTransition = errors.New("invalid state transition")

func (s State) String() string {
	switch s {
	case Init:
		return "INIT"
	case Connecting:
		return "CONNECTING"
	case SendingRequest:
		return "SENDING_REQUEST"
	case AwaitingResponse:
		return "AWAITING_RESPONSE"
	case ReceivingBody:
		return "RECEIVING_BODY"
	case Complete:
		return "COMPLETE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Terminal tells whether s is COMPLETE or FAILED.
func (s State) Terminal() bool { return s == Complete || s == Failed }

func checkTransition(from, to State) error {
	switch {
	case from.Terminal():
		return fmt.Errorf("%w: %v is terminal", ErrInvalidTransition, from)
	case to == Failed:
		return nil
	case to <= from:
		return fmt.Errorf("%w: %v to %v", ErrInvalidTransition, from, to)
	default:
		return nil
	}
}
