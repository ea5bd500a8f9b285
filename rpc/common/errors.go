package common

import (
	"errors"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Sentinel Errors
// --------------------------------------------------------------------------

var (
	// ErrConnectionReset is matched (errors.Is) by every error used to fail pending
	// requests during a teardown of the connection.
	ErrConnectionReset = errors.New("connection reset")

	// ErrNotConnected is returned when a frame is sent on a connection that is not connected.
	ErrNotConnected = errors.New("not connected")
)

// --------------------------------------------------------------------------
// Error Types
// --------------------------------------------------------------------------

// ProtocolError reports a malformed or oversized frame header.
// It is fatal to the connection that produced it.
type ProtocolError struct {
	Length int64
	Max    uint32
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error: %s (length=%d, max=%d)", e.Reason, e.Length, e.Max)
}

// ConnectionError reports a transport level failure, a reset or an orderly close.
type ConnectionError struct {
	Op       string // dial, read, write, shutdown, request, ...
	Endpoint string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Endpoint == "" {
		return fmt.Sprintf("connection error (%s): %v", e.Op, e.Err)
	}
	return fmt.Sprintf("connection error (%s %s): %v", e.Op, e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// TimeoutError is returned to a single request that did not receive a response in time.
// The connection stays alive.
type TimeoutError struct {
	Key   any
	After time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %v timed out after %s", e.Key, e.After)
}

// Timeout lets TimeoutError satisfy the net.Error style timeout check
func (e *TimeoutError) Timeout() bool {
	return true
}

// DispatchError wraps a failure of the dispatcher while handling an unsolicited frame.
// It is only logged and never affects the connection or pending requests.
type DispatchError struct {
	Type int32
	Err  error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch of frame type %d failed: %v", e.Type, e.Err)
}

func (e *DispatchError) Unwrap() error {
	return e.Err
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// ResetError builds the error used to fail pending requests during a teardown.
// The result always matches ErrConnectionReset and, if cause is set, also the cause.
func ResetError(cause error) error {
	if cause == nil {
		return ErrConnectionReset
	}
	return fmt.Errorf("%w: %w", ErrConnectionReset, cause)
}
