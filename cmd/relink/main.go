package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const banner = `
  ╦═╗┌─┐┬  ┬┌┐┌┬┌─
  ╠╦╝├┤ │  ││││├┴┐
  ╩╚═└─┘┴─┘┴┘└┘┴ ┴
`

func main() {
	rootCmd := &cobra.Command{
		Use:   "relink",
		Short: "Real-time event sessions over WebSocket and QUIC",
		Long: `Relink keeps a bidirectional event session alive over unreliable links.

Connect to a relink server, exchange acknowledged events, and pick the
session back up after a connection drop. Features include:

  • Automatic reconnection with exponential backoff
  • Session recovery with server-side event replay
  • Acknowledged delivery with retransmission
  • Binary payloads carried without re-encoding
  • Built-in relay server for local testing`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Add commands
	rootCmd.AddCommand(
		listenCmd(),
		sendCmd(),
		serveCmd(),
		versionCmd(),
	)

	// Execute
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}

// printBanner prints the relink ASCII art banner.
func printBanner() {
	fmt.Print(banner)
}

// success prints a success message.
func success(format string, args ...any) {
	fmt.Printf("\033[32m✓\033[0m %s\n", fmt.Sprintf(format, args...))
}

// info prints an info message.
func info(format string, args ...any) {
	fmt.Printf("  %s\n", fmt.Sprintf(format, args...))
}

// warn prints a warning message.
func warn(format string, args ...any) {
	fmt.Printf("\033[33m⚠\033[0m %s\n", fmt.Sprintf(format, args...))
}
