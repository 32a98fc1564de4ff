package client

import (
	"errors"
	"fmt"
	"time"

	"github.com/relink-dev/relink/pkg/protocol"
)

var (
	// ErrClientClosed is returned by every operation after Close.
	ErrClientClosed = errors.New("relink: client closed")

	// ErrConnectionClosed resolves in-flight work when the connection is
	// torn down deliberately, by either side.
	ErrConnectionClosed = errors.New("relink: connection closed")

	// ErrSendQueueFull is returned when the outbound queue cannot accept
	// another frame. Send paths never block; they refuse instead.
	ErrSendQueueFull = errors.New("relink: send queue full")
)

// TransportError wraps a connection-level failure: dialing, the handshake
// exchange, or a read/write on an established transport. Transport errors
// trigger automatic reconnection when it is enabled.
type TransportError struct {
	// Op names the failing operation: "dial", "handshake", "read",
	// "write" or "close".
	Op string

	// Err is the underlying cause.
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("relink: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HandshakeError reports a server that answered the handshake with a
// non-OK status. Statuses the server marks permanent (rejected credential,
// protocol mismatch) are never retried automatically; the application must
// call Connect again, typically with a fresh credential.
type HandshakeError struct {
	Status  protocol.HandshakeStatus
	Message string
}

func (e *HandshakeError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("relink: handshake rejected: %s: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("relink: handshake rejected: %s", e.Status)
}

// Temporary reports whether the rejection is transient and worth retrying
// through the normal reconnection schedule.
func (e *HandshakeError) Temporary() bool { return e.Status.Retryable() }

// AckTimeoutError rejects a tracked call after the full retry schedule ran
// without an acknowledgement: the initial transmission plus MaxAckRetries
// identical retransmissions, each given AckTimeout to complete.
type AckTimeoutError struct {
	// Channel and Name identify the unacknowledged event.
	Channel string
	Name    string

	// Attempts is the total number of transmissions, initial send
	// included.
	Attempts int

	// Elapsed is the time from the first transmission to rejection.
	Elapsed time.Duration
}

func (e *AckTimeoutError) Error() string {
	return fmt.Sprintf("relink: no ack for %s/%s after %d attempts in %s",
		e.Channel, e.Name, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// ReconnectionExhaustedError is the terminal error carried into StateFailed
// when every scheduled reconnection attempt failed.
type ReconnectionExhaustedError struct {
	// Attempts is the number of reconnection attempts made.
	Attempts int

	// LastErr is the failure from the final attempt.
	LastErr error
}

func (e *ReconnectionExhaustedError) Error() string {
	return fmt.Sprintf("relink: reconnection exhausted after %d attempts: %v", e.Attempts, e.LastErr)
}

func (e *ReconnectionExhaustedError) Unwrap() error { return e.LastErr }
