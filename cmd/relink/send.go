package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

func sendCmd() *cobra.Command {
	var (
		opts     clientOptions
		channel  string
		name     string
		ack      bool
		jsonArgs bool
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "send [flags] [args...]",
		Short: "Send one event and exit",
		Long: `Connect to a relink server, send one event, and exit.

With --ack the event is tracked until the server acknowledges it, and
the reply is printed. Arguments are sent as strings unless --json is
given, in which case each argument is parsed as a JSON value.

Examples:
  relink send --url ws://localhost:8420/relink/ws hello world
  relink send --channel kv --name put --ack --json '{"key":"a","value":1}'`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSend(opts, channel, name, ack, jsonArgs, timeout, args)
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&channel, "channel", "echo", "Channel to send on")
	cmd.Flags().StringVar(&name, "name", "echo", "Event name")
	cmd.Flags().BoolVar(&ack, "ack", false, "Wait for the server's acknowledgement")
	cmd.Flags().BoolVar(&jsonArgs, "json", false, "Parse arguments as JSON values")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Time budget for connecting and sending")

	return cmd
}

func runSend(opts clientOptions, channel, name string, ack, jsonArgs bool, timeout time.Duration, rawArgs []string) error {
	cfg, err := opts.resolve()
	if err != nil {
		return err
	}
	args, err := parseArgs(rawArgs, jsonArgs)
	if err != nil {
		return err
	}

	cli, err := newClient(cfg)
	if err != nil {
		return err
	}
	defer cli.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := cli.Connect(ctx); err != nil {
		return err
	}

	if ack {
		start := time.Now()
		reply, err := cli.CallContext(ctx, channel, name, args...)
		if err != nil {
			return err
		}
		success("acknowledged in %s", time.Since(start).Round(time.Millisecond))
		if len(reply) > 0 {
			info("%s", formatArgs(reply))
		}
		return cli.Disconnect()
	}

	if err := cli.Emit(channel, name, args...); err != nil {
		return err
	}
	// Emit hands the frame to the connection writer; give it a beat to
	// reach the wire before the goodbye frame follows. Use --ack for a
	// delivery guarantee.
	time.Sleep(100 * time.Millisecond)
	success("sent %s/%s", channel, name)
	return cli.Disconnect()
}
