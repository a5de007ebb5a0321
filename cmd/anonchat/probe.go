package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/whisper/anonchat/internal/config"
	"github.com/whisper/anonchat/internal/session"
)

func probeCmd(cfg *config.Config) *cobra.Command {
	var wait time.Duration

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check that the pairing server answers",
		Long: `Connect, ask for a partner, wait for a match, then leave and disconnect.

The command fails only if the connection can't be established; not finding a
partner within --wait is reported but is not an error.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return runProbe(cmd.Context(), a.client, cmd.OutOrStdout(), cfg.ConnectTimeout, wait)
		},
	}

	cmd.Flags().DurationVar(&wait, "wait", 30*time.Second, "how long to wait for a partner")

	return cmd
}

// probeClient is what the probe needs from client.Client.
type probeClient interface {
	Connect()
	Disconnect()
	RequestPartner()
	LeaveSession()
	State() session.State
	Subscribe() (<-chan session.State, func())
}

var errProbeTimeout = errors.New("timed out")

func runProbe(ctx context.Context, c probeClient, out io.Writer, connectTimeout, wait time.Duration) error {
	states, unsubscribe := c.Subscribe()
	defer unsubscribe()

	start := time.Now()
	c.Connect()
	// The adapter gives up after connectTimeout; allow a little slack on top.
	st, err := awaitState(ctx, c, states, connectTimeout+time.Second, func(st session.State) bool {
		return st.Kind == session.Idle || (st.Kind == session.Disconnected && st.Err != nil)
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	if st.Kind == session.Disconnected {
		return fmt.Errorf("connect: %w", st.Err)
	}
	fmt.Fprintf(out, "connected in %v\n", time.Since(start).Round(time.Millisecond))

	start = time.Now()
	c.RequestPartner()
	st, err = awaitState(ctx, c, states, wait, func(st session.State) bool {
		return st.Kind == session.InSession || st.Kind == session.Disconnected
	})
	switch {
	case err != nil:
		fmt.Fprintf(out, "no partner within %v\n", wait)
	case st.Kind == session.Disconnected:
		return fmt.Errorf("lost connection while waiting: %v", st)
	default:
		fmt.Fprintf(out, "matched in %v\n", time.Since(start).Round(time.Millisecond))
	}

	c.LeaveSession()
	c.Disconnect()
	fmt.Fprintln(out, "ok")
	return nil
}

// awaitState returns the first state accepted by cond, checking the current
// state first.
func awaitState(ctx context.Context, c probeClient, states <-chan session.State, timeout time.Duration, cond func(session.State) bool) (session.State, error) {
	if st := c.State(); cond(st) {
		return st, nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case st, ok := <-states:
			if !ok {
				return session.State{}, errors.New("state stream closed")
			}
			if cond(st) {
				return st, nil
			}
		case <-timer.C:
			// A burst may have overflowed the subscription buffer.
			if st := c.State(); cond(st) {
				return st, nil
			}
			return session.State{}, errProbeTimeout
		case <-ctx.Done():
			return session.State{}, ctx.Err()
		}
	}
}
