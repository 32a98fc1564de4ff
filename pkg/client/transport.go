package client

import (
	"context"
	"time"
)

// Transport is one established duplex connection carrying whole frames.
// Implementations adapt a message-oriented stream (WebSocket, QUIC stream)
// so the client never deals in partial reads.
//
// A Transport is owned by exactly one connection instance: the client's
// reader goroutine calls ReadMessage, its writer goroutine calls
// WriteMessage, and Close may be called concurrently with both to force
// them to return.
type Transport interface {
	// ReadMessage blocks until the next complete frame arrives.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one complete frame. Implementations must
	// serialize concurrent writers; the client's teardown path may write
	// a final frame while the writer goroutine is active.
	WriteMessage(data []byte) error

	// Close tears the connection down, unblocking pending reads and writes.
	Close() error

	// SetReadDeadline bounds subsequent reads.
	SetReadDeadline(t time.Time) error

	// SetWriteDeadline bounds subsequent writes.
	SetWriteDeadline(t time.Time) error
}

// Dialer opens a Transport to the given URL. The context carries the dial
// timeout; implementations must respect its cancellation.
//
// The client holds a Dialer, not a Transport: every connection attempt
// (including reconnects) dials a fresh instance.
type Dialer func(ctx context.Context, url string) (Transport, error)
