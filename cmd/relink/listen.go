package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/relink-dev/relink/pkg/client"
	"github.com/relink-dev/relink/pkg/protocol"
)

func listenCmd() *cobra.Command {
	var (
		opts    clientOptions
		channel string
		names   []string
	)

	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Connect and print incoming events",
		Long: `Connect to a relink server and print events as they arrive.

Stays connected until interrupted, reconnecting and recovering the
session after connection loss. Events missed while offline are
replayed by the server when the session resumes.

Examples:
  relink listen --url ws://localhost:8420/relink/ws
  relink listen --url quic://localhost:8421 --insecure --channel chat --name message --name joined`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(opts, channel, names)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&channel, "channel", "echo", "Channel to subscribe on")
	cmd.Flags().StringSliceVar(&names, "name", []string{"echo"}, "Event names to print (repeatable)")

	return cmd
}

func runListen(opts clientOptions, channel string, names []string) error {
	cfg, err := opts.resolve()
	if err != nil {
		return err
	}

	cli, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer cli.Close()

	// State handlers run in order on one goroutine, so attached needs no
	// locking.
	var attached bool
	failed := make(chan error, 1)
	cli.OnStateChange(func(change client.StateChange) {
		switch change.To {
		case client.StateReconnecting:
			warn("connection lost, reconnecting")
		case client.StateConnected:
			if !attached {
				attached = true // the first attach is reported after Connect returns
				return
			}
			if change.Recovered {
				success("session recovered")
			} else {
				warn("session not recovered, starting fresh (session %s)", cli.Session().ID)
			}
		case client.StateFailed:
			select {
			case failed <- fmt.Errorf("connection failed: %w", change.Err):
			default:
			}
		}
	})

	for _, name := range names {
		eventName := name
		cli.On(channel, eventName, func(args []protocol.Value) {
			fmt.Printf("%s  %s/%s  %s\n",
				time.Now().Format("15:04:05.000"), channel, eventName, formatArgs(args))
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		fmt.Println("\n\n  Shutting down...")
		cancel()
	}()

	if err := cli.Connect(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	sess := cli.Session()
	success("connected (session %s)", sess.ID)
	info("listening on %s for %s", channel, strings.Join(names, ", "))

	select {
	case <-ctx.Done():
		return cli.Disconnect()
	case err := <-failed:
		return err
	}
}
