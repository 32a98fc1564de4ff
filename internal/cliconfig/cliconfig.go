// Package cliconfig loads the relink.toml file shared by the relink
// commands. Keys left out of the file keep their zero value, which the
// client and relay libraries replace with their own defaults; command
// line flags override both.
package cliconfig

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultPath is the file commands look for when --config is not given.
const DefaultPath = "relink.toml"

// DefaultListenAddr is where the relay server binds by default.
const DefaultListenAddr = ":8420"

// Config holds the settings shared by the relink commands. Duration and
// size fields left at zero defer to the library defaults.
type Config struct {
	// URL is the server endpoint (ws://, wss://, or quic://).
	URL string

	// Credential is presented during the handshake; the relay requires
	// it from clients when set on the serve side.
	Credential string

	// Transport selects the dialer: "ws", "quic", or empty to infer it
	// from the URL scheme.
	Transport string

	// Insecure skips TLS certificate verification.
	Insecure bool

	// DialTimeout bounds each dial attempt.
	DialTimeout time.Duration

	// AckTimeout is how long each transmission of an acknowledged event
	// waits before retransmitting.
	AckTimeout time.Duration

	// MaxAckRetries is the retransmission budget for acknowledged
	// events. Negative disables retransmission.
	MaxAckRetries int

	// ReconnectBaseDelay seeds the reconnection backoff.
	ReconnectBaseDelay time.Duration

	// ReconnectMaxDelay caps the reconnection backoff.
	ReconnectMaxDelay time.Duration

	// MaxReconnectAttempts bounds consecutive failed reconnection
	// attempts; zero means unlimited.
	MaxReconnectAttempts int

	// RetainPending carries unacknowledged calls across one reconnect.
	RetainPending bool

	// ListenAddr is the relay server bind address.
	ListenAddr string

	// HistorySize is how many events the relay retains per session for
	// recovery replay.
	HistorySize int

	// ResumeWindow is how long the relay keeps a detached session
	// recoverable.
	ResumeWindow time.Duration

	// Verbose enables debug logging.
	Verbose bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		ListenAddr: DefaultListenAddr,
	}
}

// duration wraps time.Duration so TOML strings like "750ms" decode
// directly.
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(strings.TrimSpace(string(text)))
	return err
}

// fileConfig maps the relink.toml keys.
type fileConfig struct {
	URL        string `toml:"url"`
	Credential string `toml:"credential"`
	Transport  string `toml:"transport"`
	Insecure   bool   `toml:"insecure"`

	DialTimeout          duration `toml:"dial_timeout"`
	AckTimeout           duration `toml:"ack_timeout"`
	MaxAckRetries        int      `toml:"max_ack_retries"`
	ReconnectBaseDelay   duration `toml:"reconnect_base_delay"`
	ReconnectMaxDelay    duration `toml:"reconnect_max_delay"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
	RetainPending        bool     `toml:"retain_pending"`

	ListenAddr   string   `toml:"listen_addr"`
	HistorySize  int      `toml:"history_size"`
	ResumeWindow duration `toml:"resume_window"`

	Verbose bool `toml:"verbose"`
}

// Load reads path and overlays the keys it defines onto the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load relink config: %w", err)
	}

	if meta.IsDefined("url") {
		cfg.URL = strings.TrimSpace(raw.URL)
	}
	if meta.IsDefined("credential") {
		cfg.Credential = raw.Credential
	}
	if meta.IsDefined("transport") {
		cfg.Transport = strings.ToLower(strings.TrimSpace(raw.Transport))
	}
	if meta.IsDefined("insecure") {
		cfg.Insecure = raw.Insecure
	}
	if meta.IsDefined("dial_timeout") {
		cfg.DialTimeout = raw.DialTimeout.Duration
	}
	if meta.IsDefined("ack_timeout") {
		cfg.AckTimeout = raw.AckTimeout.Duration
	}
	if meta.IsDefined("max_ack_retries") {
		// The client encodes "no retransmissions" as negative, so an
		// explicit zero in the file maps to that rather than to the
		// library default.
		cfg.MaxAckRetries = raw.MaxAckRetries
		if raw.MaxAckRetries == 0 {
			cfg.MaxAckRetries = -1
		}
	}
	if meta.IsDefined("reconnect_base_delay") {
		cfg.ReconnectBaseDelay = raw.ReconnectBaseDelay.Duration
	}
	if meta.IsDefined("reconnect_max_delay") {
		cfg.ReconnectMaxDelay = raw.ReconnectMaxDelay.Duration
	}
	if meta.IsDefined("max_reconnect_attempts") {
		cfg.MaxReconnectAttempts = raw.MaxReconnectAttempts
	}
	if meta.IsDefined("retain_pending") {
		cfg.RetainPending = raw.RetainPending
	}
	if meta.IsDefined("listen_addr") {
		cfg.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("history_size") {
		cfg.HistorySize = raw.HistorySize
	}
	if meta.IsDefined("resume_window") {
		cfg.ResumeWindow = raw.ResumeWindow.Duration
	}
	if meta.IsDefined("verbose") {
		cfg.Verbose = raw.Verbose
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadOptional behaves like Load but returns the defaults when path does
// not exist.
func LoadOptional(path string) (Config, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return Config{}, fmt.Errorf("load relink config: %w", err)
	}
	return Load(path)
}

// Validate reports settings no command can run with. It is called again
// after flag overrides, which can reintroduce bad values.
func (c Config) Validate() error {
	switch c.Transport {
	case "", "ws", "quic":
	default:
		return fmt.Errorf("relink config: unsupported transport %q (expected ws or quic)", c.Transport)
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("relink config: history_size must not be negative")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("relink config: max_reconnect_attempts must not be negative")
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"dial_timeout", c.DialTimeout},
		{"ack_timeout", c.AckTimeout},
		{"reconnect_base_delay", c.ReconnectBaseDelay},
		{"reconnect_max_delay", c.ReconnectMaxDelay},
		{"resume_window", c.ResumeWindow},
	} {
		if d.value < 0 {
			return fmt.Errorf("relink config: %s must not be negative", d.key)
		}
	}
	return nil
}
