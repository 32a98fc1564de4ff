package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/relink-dev/relink/internal/cliconfig"
	"github.com/relink-dev/relink/internal/logging"
	"github.com/relink-dev/relink/pkg/protocol"
	"github.com/relink-dev/relink/pkg/relaytest"
)

func serveCmd() *cobra.Command {
	var (
		configPath   string
		addr         string
		credential   string
		historySize  int
		resumeWindow time.Duration
		verbose      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local relay server",
		Long: `Run a relay server for local development and testing.

Routes:
  /relink/ws   websocket endpoint
  /healthz     liveness probe
  /metrics     prometheus metrics

Events sent on the echo channel come straight back: pushed to the
sender as a sequenced event and returned as the acknowledgement
reply.

Examples:
  relink serve
  relink serve --addr :9000 --credential secret`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, addr, credential, historySize, resumeWindow, verbose)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to a config file (default ./"+cliconfig.DefaultPath+" if present)")
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default "+cliconfig.DefaultListenAddr+")")
	cmd.Flags().StringVar(&credential, "credential", "", "Require this credential from connecting clients")
	cmd.Flags().IntVar(&historySize, "history", 0, "Events retained per session for recovery replay")
	cmd.Flags().DurationVar(&resumeWindow, "resume-window", 0, "How long a detached session stays recoverable")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	return cmd
}

func runServe(configPath, addr, credential string, historySize int, resumeWindow time.Duration, verbose bool) error {
	var (
		cfg cliconfig.Config
		err error
	)
	if configPath != "" {
		cfg, err = cliconfig.Load(configPath)
	} else {
		cfg, err = cliconfig.LoadOptional(cliconfig.DefaultPath)
	}
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.ListenAddr = addr
	}
	if credential != "" {
		cfg.Credential = credential
	}
	if historySize > 0 {
		cfg.HistorySize = historySize
	}
	if resumeWindow > 0 {
		cfg.ResumeWindow = resumeWindow
	}
	if verbose {
		cfg.Verbose = true
	}

	logger := logging.New(os.Stderr, cfg.Verbose)

	rcfg := relaytest.Config{
		HistorySize:  cfg.HistorySize,
		ResumeWindow: cfg.ResumeWindow,
		Logger:       logger,
	}
	if cfg.Credential != "" {
		want := cfg.Credential
		rcfg.Authorize = func(credential string) bool { return credential == want }
	}
	relay := relaytest.New(rcfg)
	defer relay.Close()

	// Anything sent on the echo channel comes straight back.
	relay.Handle("echo", "", func(sessionID string, args []protocol.Value) []protocol.Value {
		_ = relay.Push(sessionID, "echo", "echo", args...)
		return args
	})

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Handle("/relink/ws", relay)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner()
	fmt.Println("  serve")
	fmt.Println()
	success("relay listening on %s", cfg.ListenAddr)
	info("endpoint ws://%s/relink/ws", displayAddr(cfg.ListenAddr))
	if cfg.Credential != "" {
		info("clients must present the configured credential")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		fmt.Println("\n\n  Shutting down...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// displayAddr renders a bind address as something dialable.
func displayAddr(addr string) string {
	if strings.HasPrefix(addr, ":") {
		return "localhost" + addr
	}
	return addr
}
