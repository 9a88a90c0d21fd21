package recorder

import "errors"

// ErrInvalidState is returned when the logger is asked to act from a state
// that does not allow it. It is fatal to the polling loop.
var ErrInvalidState = errors.New("recorder: invalid state")

// State is the session logger's lifecycle position.
type State int

const (
	StateInitialized State = iota
	StateReady
	StateLogging
	StateDone
)

func (s State) String() string {
	switch s {
	case StateInitialized:
		return "initialized"
	case StateReady:
		return "ready"
	case StateLogging:
		return "logging"
	case StateDone:
		return "done"
	}
	return "unknown"
}
