package main

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/relink-dev/relink/internal/cliconfig"
	"github.com/relink-dev/relink/internal/logging"
	"github.com/relink-dev/relink/pkg/client"
	"github.com/relink-dev/relink/pkg/transport/quicstream"
	"github.com/relink-dev/relink/pkg/transport/ws"
)

// clientOptions collects the connection flags shared by listen and send.
type clientOptions struct {
	configPath string
	url        string
	credential string
	transport  string
	insecure   bool
	verbose    bool
}

func (o *clientOptions) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.configPath, "config", "", "Path to a config file (default ./"+cliconfig.DefaultPath+" if present)")
	cmd.Flags().StringVarP(&o.url, "url", "u", "", "Server URL (ws://, wss://, or quic://)")
	cmd.Flags().StringVar(&o.credential, "credential", "", "Credential presented during the handshake")
	cmd.Flags().StringVarP(&o.transport, "transport", "t", "", "Transport to dial: ws or quic (default from the URL scheme)")
	cmd.Flags().BoolVar(&o.insecure, "insecure", false, "Skip TLS certificate verification")
	cmd.Flags().BoolVarP(&o.verbose, "verbose", "v", false, "Enable debug logging")
}

// resolve loads the file config and applies the flag overrides on top.
func (o *clientOptions) resolve() (cliconfig.Config, error) {
	var (
		cfg cliconfig.Config
		err error
	)
	if o.configPath != "" {
		cfg, err = cliconfig.Load(o.configPath)
	} else {
		cfg, err = cliconfig.LoadOptional(cliconfig.DefaultPath)
	}
	if err != nil {
		return cliconfig.Config{}, err
	}

	if o.url != "" {
		cfg.URL = o.url
	}
	if o.credential != "" {
		cfg.Credential = o.credential
	}
	if o.transport != "" {
		cfg.Transport = strings.ToLower(o.transport)
	}
	if o.insecure {
		cfg.Insecure = true
	}
	if o.verbose {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return cliconfig.Config{}, err
	}
	if cfg.URL == "" {
		return cliconfig.Config{}, fmt.Errorf("no server URL: pass --url or set url in %s", cliconfig.DefaultPath)
	}
	return cfg, nil
}

// newClient builds a client from the resolved config. Tuning fields left
// at zero fall through to the client library defaults.
func newClient(cfg cliconfig.Config) (*client.Client, error) {
	dial, err := dialerFor(cfg)
	if err != nil {
		return nil, err
	}

	ccfg := client.DefaultConfig()
	ccfg.URL = cfg.URL
	ccfg.Dial = dial
	ccfg.Credential = cfg.Credential
	if cfg.DialTimeout > 0 {
		ccfg.DialTimeout = cfg.DialTimeout
	}
	if cfg.AckTimeout > 0 {
		ccfg.AckTimeout = cfg.AckTimeout
	}
	if cfg.MaxAckRetries != 0 {
		ccfg.MaxAckRetries = cfg.MaxAckRetries
	}
	if cfg.ReconnectBaseDelay > 0 {
		ccfg.ReconnectBaseDelay = cfg.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay > 0 {
		ccfg.ReconnectMaxDelay = cfg.ReconnectMaxDelay
	}
	ccfg.MaxReconnectAttempts = cfg.MaxReconnectAttempts
	ccfg.RetainPendingOnReconnect = cfg.RetainPending
	ccfg.Logger = logging.New(os.Stderr, cfg.Verbose)

	return client.New(ccfg)
}

// dialerFor picks the transport named by the config, falling back to the
// URL scheme.
func dialerFor(cfg cliconfig.Config) (client.Dialer, error) {
	transport := cfg.Transport
	if transport == "" {
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse url: %w", err)
		}
		switch u.Scheme {
		case "ws", "wss":
			transport = "ws"
		case "quic":
			transport = "quic"
		default:
			return nil, fmt.Errorf("cannot infer transport from scheme %q: pass --transport", u.Scheme)
		}
	}

	switch transport {
	case "ws":
		if cfg.Insecure {
			d := *websocket.DefaultDialer
			d.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
			return ws.Dialer(&d), nil
		}
		return ws.Dialer(nil), nil
	case "quic":
		return quicstream.Dialer(&tls.Config{InsecureSkipVerify: cfg.Insecure}, nil), nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", transport)
	}
}
