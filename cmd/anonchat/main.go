package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/whisper/anonchat/internal/config"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cfg := config.FromEnv()

	rootCmd := &cobra.Command{
		Use:   "anonchat",
		Short: "Anonymous one-on-one chat from the terminal",
		Long: `anonchat connects to a pairing server, waits for a random partner and
lets the two of you chat until either side leaves.

Every flag can also be set through the environment (ANONCHAT_HOST,
ANONCHAT_PORT, ANONCHAT_SCHEME, NATS_URL, ...); flags win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.Host, "host", cfg.Host, "pairing server host")
	flags.IntVarP(&cfg.Port, "port", "p", cfg.Port, "pairing server port")
	flags.StringVar(&cfg.Scheme, "scheme", cfg.Scheme, "transport: tcp or ws")
	flags.StringVar(&cfg.WSPath, "ws-path", cfg.WSPath, "request path for the ws transport")
	flags.DurationVar(&cfg.ConnectTimeout, "connect-timeout", cfg.ConnectTimeout, "bound on one connect attempt")
	flags.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "deadline for writing one frame")
	flags.StringVar(&cfg.StatusAddr, "status-addr", cfg.StatusAddr, "serve /health, /state and /metrics on this address")
	flags.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "mirror state changes to this NATS server")
	flags.StringVar(&cfg.NATSSubject, "nats-subject", cfg.NATSSubject, "subject for mirrored state")
	flags.StringVar(&cfg.TraceOutput, "trace", cfg.TraceOutput, "write connect spans to stderr or this file")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flags.BoolVar(&cfg.LogDevelopment, "log-dev", cfg.LogDevelopment, "human-readable logs")

	rootCmd.AddCommand(
		chatCmd(&cfg),
		probeCmd(&cfg),
		watchCmd(&cfg),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
