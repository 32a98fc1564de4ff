package client

import (
	"context"
	"testing"
	"time"
)

func nopDialer(context.Context, string) (Transport, error) { return nil, nil }

func TestConfigValidate(t *testing.T) {
	if err := (&Config{Dial: nopDialer}).validate(); err == nil {
		t.Error("validate() accepted a config without URL")
	}
	if err := (&Config{URL: "test://x"}).validate(); err == nil {
		t.Error("validate() accepted a config without Dial")
	}
	if err := (&Config{URL: "test://x", Dial: nopDialer}).validate(); err != nil {
		t.Errorf("validate() rejected a minimal config: %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := (&Config{URL: "test://x", Dial: nopDialer}).withDefaults()

	if cfg.DialTimeout != 10*time.Second {
		t.Errorf("DialTimeout = %v, want 10s", cfg.DialTimeout)
	}
	if cfg.AckTimeout != 5*time.Second {
		t.Errorf("AckTimeout = %v, want 5s", cfg.AckTimeout)
	}
	if cfg.MaxAckRetries != 3 {
		t.Errorf("MaxAckRetries = %d, want 3", cfg.MaxAckRetries)
	}
	if cfg.ReconnectBaseDelay != 500*time.Millisecond {
		t.Errorf("ReconnectBaseDelay = %v, want 500ms", cfg.ReconnectBaseDelay)
	}
	if cfg.ReconnectMaxDelay != 30*time.Second {
		t.Errorf("ReconnectMaxDelay = %v, want 30s", cfg.ReconnectMaxDelay)
	}
	if cfg.MaxReconnectAttempts != 0 {
		t.Errorf("MaxReconnectAttempts = %d, want 0 (unlimited)", cfg.MaxReconnectAttempts)
	}
	if cfg.SendQueueSize != 128 {
		t.Errorf("SendQueueSize = %d, want 128", cfg.SendQueueSize)
	}
	if cfg.DisableReconnection {
		t.Error("DisableReconnection defaulted to true")
	}
	if cfg.Logger == nil {
		t.Error("Logger not defaulted")
	}
}

func TestConfigNegativeRetriesDisableRetransmission(t *testing.T) {
	cfg := (&Config{URL: "test://x", Dial: nopDialer, MaxAckRetries: -1}).withDefaults()
	if cfg.MaxAckRetries != 0 {
		t.Errorf("MaxAckRetries = %d, want 0", cfg.MaxAckRetries)
	}
}

func TestConfigCloneIsIndependent(t *testing.T) {
	orig := DefaultConfig()
	orig.URL = "test://a"

	clone := orig.Clone()
	clone.URL = "test://b"
	clone.AckTimeout = time.Minute

	if orig.URL != "test://a" {
		t.Errorf("clone mutation leaked into original URL: %q", orig.URL)
	}
	if orig.AckTimeout != 5*time.Second {
		t.Errorf("clone mutation leaked into original AckTimeout: %v", orig.AckTimeout)
	}
}

func TestConfigExplicitValuesSurviveDefaults(t *testing.T) {
	cfg := (&Config{
		URL:                  "test://x",
		Dial:                 nopDialer,
		AckTimeout:           250 * time.Millisecond,
		MaxAckRetries:        1,
		MaxReconnectAttempts: 7,
		SendQueueSize:        4,
	}).withDefaults()

	if cfg.AckTimeout != 250*time.Millisecond {
		t.Errorf("AckTimeout = %v, want 250ms", cfg.AckTimeout)
	}
	if cfg.MaxAckRetries != 1 {
		t.Errorf("MaxAckRetries = %d, want 1", cfg.MaxAckRetries)
	}
	if cfg.MaxReconnectAttempts != 7 {
		t.Errorf("MaxReconnectAttempts = %d, want 7", cfg.MaxReconnectAttempts)
	}
	if cfg.SendQueueSize != 4 {
		t.Errorf("SendQueueSize = %d, want 4", cfg.SendQueueSize)
	}
}
