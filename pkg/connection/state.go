package connection

import "time"

// State represents the connection state machine position.
type State int

const (
	// StateDisconnected indicates no active connection. This is also the
	// terminal state after reconnect exhaustion.
	StateDisconnected State = iota
	// StateConnecting indicates the transport dial is in flight.
	StateConnecting
	// StateConnected indicates an active connection.
	StateConnected
	// StateReconnecting indicates a reconnect timer is pending.
	StateReconnecting
	// StateClosedManually indicates Disconnect was called. Automatic
	// reconnection is suppressed until the next Connect.
	StateClosedManually
)

// String returns a human-readable connection state.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateClosedManually:
		return "closed"
	default:
		return "unknown"
	}
}

// Status is a snapshot of the manager's state, safe to hand to other
// goroutines. Attempt and NextDelay are meaningful while reconnecting.
type Status struct {
	State     State         `json:"state"`
	Attempt   uint          `json:"attempt,omitempty"`
	NextDelay time.Duration `json:"next_delay,omitempty"`
	Exhausted bool          `json:"exhausted,omitempty"`
}

// Stats contains connection counters for telemetry.
type Stats struct {
	MessagesSent     int64 `json:"messages_sent"`
	MessagesReceived int64 `json:"messages_received"`
	BytesSent        int64 `json:"bytes_sent"`
	BytesReceived    int64 `json:"bytes_received"`
	Reconnects       int64 `json:"reconnects"`
}
