package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/whisper/anonchat/internal/chat"
	"github.com/whisper/anonchat/internal/config"
	"github.com/whisper/anonchat/internal/session"
)

func chatCmd(cfg *config.Config) *cobra.Command {
	var manual bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a random stranger",
		Long: `Open an interactive chat session.

Commands:
  /connect     connect (or reconnect) to the server
  /disconnect  close the connection
  /start       look for a partner
  /leave       end the current chat or stop waiting
  /quit        leave and exit

Anything else is sent to your partner. End of input leaves the chat.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runChat(ctx, a.client, cmd.InOrStdin(), cmd.OutOrStdout(), !manual)
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "don't connect until /connect")

	return cmd
}

// chatClient is what the terminal needs from client.Client.
type chatClient interface {
	Connect()
	Disconnect()
	RequestPartner()
	SendText(text string)
	LeaveSession()
	State() session.State
	Subscribe() (<-chan session.State, func())
}

// runChat renders state changes and turns input lines into intents until
// input ends, /quit, or ctx is cancelled.
func runChat(ctx context.Context, c chatClient, in io.Reader, out io.Writer, autoConnect bool) error {
	states, unsubscribe := c.Subscribe()
	defer unsubscribe()

	r := newRenderer(out)
	r.Render(c.State())

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	if autoConnect {
		c.Connect()
	}

	for {
		select {
		case <-ctx.Done():
			leaveIfChatting(c)
			return nil

		case st := <-states:
			r.Render(st)

		case line, ok := <-lines:
			if !ok {
				leaveIfChatting(c)
				return nil
			}
			if quit := handleLine(c, out, line); quit {
				leaveIfChatting(c)
				return nil
			}
		}
	}
}

// handleLine applies one line of input. It reports whether the user asked
// to quit.
func handleLine(c chatClient, out io.Writer, line string) (quit bool) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return false
	}

	if strings.HasPrefix(line, "/") {
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "/connect":
			c.Connect()
		case "/disconnect":
			c.Disconnect()
		case "/start":
			c.RequestPartner()
		case "/leave":
			c.LeaveSession()
		case "/quit", "/exit":
			return true
		case "/help":
			fmt.Fprintln(out, "  /connect /disconnect /start /leave /quit")
		default:
			fmt.Fprintf(out, "  unknown command %q (try /help)\n", line)
		}
		return false
	}

	if c.State().Kind != session.InSession {
		fmt.Fprintln(out, "  not in a chat (/start to find someone)")
		return false
	}
	if err := chat.ValidateText(line); err != nil {
		fmt.Fprintf(out, "  not sent: %v\n", err)
		return false
	}
	c.SendText(line)
	return false
}

// leaveIfChatting mirrors closing the chat view: an open session or pending
// request is ended before the program exits.
func leaveIfChatting(c chatClient) {
	switch c.State().Kind {
	case session.Waiting, session.InSession:
		c.LeaveSession()
	}
}

// renderer prints each view once and transcript lines as they arrive.
type renderer struct {
	w     io.Writer
	last  session.State
	shown int // transcript lines already printed
	began bool
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

// Render prints whatever changed between the previous state and st.
func (r *renderer) Render(st session.State) {
	changed := !r.began || st.Kind != r.last.Kind || !sameError(st.Err, r.last.Err)
	r.began = true
	r.last = st

	if changed {
		r.shown = 0
		fmt.Fprintln(r.w, view(st))
	}
	if st.Kind != session.InSession {
		return
	}
	if r.shown > len(st.Messages) {
		// A whole session went by between two renders.
		r.shown = 0
	}
	for _, m := range st.Messages[r.shown:] {
		fmt.Fprintln(r.w, line(m))
	}
	r.shown = len(st.Messages)
}

// view is the heading for each state.
func view(st session.State) string {
	switch st.Kind {
	case session.Disconnected:
		if st.Err != nil {
			return "Something went wrong: " + st.Err.Error() + "\n[Try Again: /connect]"
		}
		return "[Connect: /connect]"
	case session.Connecting:
		return "Connecting..."
	case session.Idle:
		return "[Start Chatting: /start]"
	case session.Waiting:
		return "Waiting for someone... (/leave to stop)"
	case session.InSession:
		return "You're chatting with a stranger. Say hi! (/leave to end)"
	default:
		return st.String()
	}
}

func line(m chat.Message) string {
	if m.Direction == chat.Sent {
		return "> " + m.Text
	}
	return "< " + m.Text
}

func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Error() == b.Error()
}
