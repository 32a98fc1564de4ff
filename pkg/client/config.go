package client

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config configures a Client. Start from DefaultConfig and override what
// you need; New fills any zero field with its default.
type Config struct {
	// URL is the endpoint to dial, in whatever scheme the Dialer
	// understands. Required.
	URL string

	// Dial opens the transport for each connection attempt. Required;
	// see pkg/transport/ws and pkg/transport/quicstream for
	// implementations.
	Dial Dialer

	// Credential is presented to the server during the handshake.
	// Default: empty (anonymous).
	Credential string

	// AutoConnect starts connecting from New instead of waiting for an
	// explicit Connect call. Default: false.
	AutoConnect bool

	// DialTimeout bounds each dial attempt. Default: 10 seconds.
	DialTimeout time.Duration

	// HandshakeTimeout bounds the handshake exchange after the dial
	// succeeds. Default: 10 seconds.
	HandshakeTimeout time.Duration

	// WriteTimeout bounds each frame write. Default: 10 seconds.
	WriteTimeout time.Duration

	// AckTimeout is how long each transmission of an acknowledged event
	// waits for the server's reply before retransmitting.
	// Default: 5 seconds.
	AckTimeout time.Duration

	// MaxAckRetries is the number of retransmissions after the initial
	// send before a tracked call is rejected with AckTimeoutError.
	// Negative disables retransmission entirely. Default: 3.
	MaxAckRetries int

	// DisableReconnection turns off automatic reconnection: any transport
	// loss moves the client straight to StateFailed. Default: false.
	DisableReconnection bool

	// ReconnectBaseDelay is the delay before the first reconnection
	// attempt; each further attempt doubles it, up to ReconnectMaxDelay.
	// Default: 500 milliseconds.
	ReconnectBaseDelay time.Duration

	// ReconnectMaxDelay caps the reconnection delay. Default: 30 seconds.
	ReconnectMaxDelay time.Duration

	// MaxReconnectAttempts bounds consecutive failed reconnection
	// attempts before the client gives up and enters StateFailed.
	// Default: 0, meaning unlimited.
	MaxReconnectAttempts int

	// PingInterval is how often the client pings an idle connection. The
	// server may shorten or lengthen it during the handshake.
	// Default: 25 seconds.
	PingInterval time.Duration

	// PingTimeout is the grace period past PingInterval with no inbound
	// traffic before the connection is declared dead.
	// Default: 20 seconds.
	PingTimeout time.Duration

	// SendQueueSize is the capacity of the outbound queue, both while
	// connected and for frames buffered across a reconnect. Sends beyond
	// it fail with ErrSendQueueFull rather than block. Default: 128.
	SendQueueSize int

	// RetainPendingOnReconnect carries unacknowledged tracked calls
	// across one reconnect and retransmits them on the new connection.
	// When false, a connection loss rejects them immediately.
	// Default: false.
	RetainPendingOnReconnect bool

	// Logger receives connection lifecycle and protocol logs.
	// Default: slog.Default().
	Logger *slog.Logger

	// Registerer, when set, enables client metrics and registers them
	// against it. Default: nil, metrics disabled.
	Registerer prometheus.Registerer

	// EnableTracing wraps Connect and CallContext in OpenTelemetry spans
	// from the global tracer provider. Default: false.
	EnableTracing bool

	// rng seeds the reconnection jitter; tests inject a fixed source.
	rng randSource
}

// DefaultConfig returns a Config with every default filled in. URL and
// Dial still have to be set by the caller.
func DefaultConfig() *Config {
	return &Config{
		DialTimeout:        10 * time.Second,
		HandshakeTimeout:   10 * time.Second,
		WriteTimeout:       10 * time.Second,
		AckTimeout:         5 * time.Second,
		MaxAckRetries:      3,
		ReconnectBaseDelay: 500 * time.Millisecond,
		ReconnectMaxDelay:  30 * time.Second,
		PingInterval:       25 * time.Second,
		PingTimeout:        20 * time.Second,
		SendQueueSize:      128,
		Logger:             slog.Default(),
	}
}

// Clone returns a copy of the config.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// withDefaults returns a copy with zero fields replaced by their defaults.
func (c *Config) withDefaults() *Config {
	out := c.Clone()
	def := DefaultConfig()
	if out.DialTimeout == 0 {
		out.DialTimeout = def.DialTimeout
	}
	if out.HandshakeTimeout == 0 {
		out.HandshakeTimeout = def.HandshakeTimeout
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = def.WriteTimeout
	}
	if out.AckTimeout == 0 {
		out.AckTimeout = def.AckTimeout
	}
	if out.MaxAckRetries == 0 {
		out.MaxAckRetries = def.MaxAckRetries
	} else if out.MaxAckRetries < 0 {
		out.MaxAckRetries = 0
	}
	if out.ReconnectBaseDelay == 0 {
		out.ReconnectBaseDelay = def.ReconnectBaseDelay
	}
	if out.ReconnectMaxDelay == 0 {
		out.ReconnectMaxDelay = def.ReconnectMaxDelay
	}
	if out.MaxReconnectAttempts < 0 {
		out.MaxReconnectAttempts = 0
	}
	if out.PingInterval == 0 {
		out.PingInterval = def.PingInterval
	}
	if out.PingTimeout == 0 {
		out.PingTimeout = def.PingTimeout
	}
	if out.SendQueueSize <= 0 {
		out.SendQueueSize = def.SendQueueSize
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// validate reports configuration errors that New refuses to start with.
func (c *Config) validate() error {
	if c.URL == "" {
		return errors.New("relink: config: URL is required")
	}
	if c.Dial == nil {
		return errors.New("relink: config: Dial is required")
	}
	return nil
}
