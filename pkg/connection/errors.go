package connection

import (
	"errors"
	"fmt"
)

// Sentinel errors for the connection package.
var (
	// ErrNotConnected indicates a send was attempted while not connected.
	ErrNotConnected = errors.New("connection: not connected")

	// ErrConnectionClosed indicates the connection went away before the
	// payload could be written.
	ErrConnectionClosed = errors.New("connection: connection closed")

	// ErrSendQueueFull indicates the outbound queue is saturated. The
	// payload is dropped rather than blocking the producer.
	ErrSendQueueFull = errors.New("connection: send queue full")

	// ErrReconnectExhausted indicates the configured reconnection attempts
	// were used up without a successful connect.
	ErrReconnectExhausted = errors.New("connection: reconnect attempts exhausted")
)

// DialError reports a failed transport dial.
type DialError struct {
	// Endpoint is the URL that was dialed.
	Endpoint string

	// Cause is the underlying error.
	Cause error

	// StatusCode is the HTTP status of a rejected upgrade, if any.
	StatusCode int
}

// Error implements the error interface.
func (e *DialError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("connection: dial %s failed with status %d: %v", e.Endpoint, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("connection: dial %s failed: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *DialError) Unwrap() error {
	return e.Cause
}

// IsNotConnected returns true if the error indicates no usable connection.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConnected) || errors.Is(err, ErrConnectionClosed)
}
