package relay

import "time"

// State is the connector's connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Direction identifies which relay moved a payload.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// StateEvent describes one connector state transition.
type StateEvent struct {
	State     State
	Endpoint  string
	Attempt   int
	SessionID string
	// Err is the failure that caused a transition to StateDisconnected.
	Err error
	// RetryIn is set when the connector will dial again after a delay.
	RetryIn time.Duration
}

// Observer receives connection-state transitions and relay activity.
type Observer interface {
	StateChanged(ev StateEvent)
	PayloadRelayed(dir Direction, size int)
}

type nopObserver struct{}

func (nopObserver) StateChanged(StateEvent) {}
func (nopObserver) PayloadRelayed(Direction, int) {}

// Status is a point-in-time view of the connector for diagnostics.
type Status struct {
	State          State
	Endpoint       string
	SessionID      string
	ConnectedSince time.Time
	Attempts       int
}
