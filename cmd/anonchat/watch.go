package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/whisper/anonchat/internal/config"
	"github.com/whisper/anonchat/internal/logging"
	"github.com/whisper/anonchat/internal/messaging"
	"github.com/whisper/anonchat/internal/session"
)

func watchCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Follow another anonchat's state over NATS",
		Long: `Subscribe to the state mirror published by a chat started with --nats-url
and print every state change.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.NATSURL == "" {
				return errors.New("watch needs --nats-url or NATS_URL")
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			defer log.Sync()

			natsCfg := messaging.DefaultNATSConfig()
			natsCfg.URL = cfg.NATSURL
			nc, err := messaging.NewNATSClient(natsCfg, log)
			if err != nil {
				return err
			}
			defer nc.Close()

			out := cmd.OutOrStdout()
			err = nc.Watch(cfg.NATSSubject, func(snap session.Snapshot) {
				fmt.Fprintln(out, formatSnapshot(snap))
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			<-ctx.Done()
			return nil
		},
	}
}

func formatSnapshot(snap session.Snapshot) string {
	s := snap.At.Format("15:04:05") + " " + snap.State
	if snap.Error != "" {
		s += " (" + snap.Error + ")"
	}
	if n := len(snap.Messages); n > 0 {
		last := snap.Messages[n-1]
		s += fmt.Sprintf(" [%d messages, last %s: %q]", n, last.Direction, last.Text)
	}
	return s
}
