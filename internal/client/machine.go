package client

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/whisper/anonchat/internal/chat"
	"github.com/whisper/anonchat/internal/metrics"
	"github.com/whisper/anonchat/internal/protocol"
	"github.com/whisper/anonchat/internal/session"
	"github.com/whisper/anonchat/internal/transport"
)

// Everything in this file runs on the loop goroutine.

// messageHandler reacts to one kind of inbound message.
type messageHandler func(m protocol.Message)

// messageHandlers returns the routing table for inbound messages.
func (c *Client) messageHandlers() map[protocol.Kind]messageHandler {
	return map[protocol.Kind]messageHandler{
		protocol.KindConnectionEnd:  c.onConnectionEnd,
		protocol.KindSessionEnd:     c.onSessionEnd,
		protocol.KindSessionRequest: c.onSessionRequest,
		protocol.KindSessionSuccess: c.onSessionSuccess,
		protocol.KindSessionValue:   c.onSessionValue,
	}
}

// ---------------------------------------------------------------------------
// Intent handlers
// ---------------------------------------------------------------------------

func (c *Client) connect() {
	c.endConnectSpan(errors.New("superseded"))
	_, c.connectSpan = c.tracer.Start(context.Background(), "anonchat.connect",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("server.address", c.host),
			attribute.Int("server.port", c.port),
		),
	)

	c.transport.Connect(c.host, c.port)
	c.setState(session.NewConnecting())
}

func (c *Client) disconnect() {
	c.endConnectSpan(errors.New("cancelled"))
	c.transport.Disconnect()
	c.setState(session.NewDisconnected(nil))
}

func (c *Client) requestPartner() {
	if cur := c.store.Get(); cur.Kind != session.Idle {
		c.ignore("request_partner", cur)
		return
	}
	c.send(protocol.SessionRequest)
	c.setState(session.NewWaiting())
}

func (c *Client) sendText(text string) {
	cur := c.store.Get()
	if cur.Kind != session.InSession {
		c.ignore("send_text", cur)
		return
	}
	c.setState(cur.WithMessage(chat.NewSent(text)))
	c.send(protocol.SessionValue(text))
}

func (c *Client) leaveSession() {
	cur := c.store.Get()
	if cur.Kind != session.Waiting && cur.Kind != session.InSession {
		c.ignore("leave_session", cur)
		return
	}
	c.send(protocol.SessionEnd)
	c.setState(session.NewIdle())
}

// ---------------------------------------------------------------------------
// Transport events
// ---------------------------------------------------------------------------

// handleTransportEvent is the transport's Sink. It runs on transport
// goroutines and only hands the event to the loop.
func (c *Client) handleTransportEvent(ev transport.Event) {
	c.enqueue(func() { c.onTransportEvent(ev) })
}

func (c *Client) onTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventConnected:
		c.endConnectSpan(ev.Err)
		if ev.Err != nil {
			c.setState(session.NewDisconnected(ev.Err))
			return
		}
		c.setState(session.NewIdle())

	case transport.EventDisconnected:
		c.endConnectSpan(ev.Err)
		c.setState(session.NewDisconnected(ev.Err))

	case transport.EventReceived:
		if ev.Err != nil {
			c.log.Warn("client: inbound stream failed", zap.Error(ev.Err))
			c.transport.Disconnect()
			c.setState(session.NewDisconnected(ev.Err))
			return
		}
		handler, ok := c.handlers[ev.Message.Kind]
		if !ok {
			c.log.Warn("client: no handler for message", zap.Stringer("kind", ev.Message.Kind))
			return
		}
		handler(ev.Message)
	}
}

// ---------------------------------------------------------------------------
// Message handlers
// ---------------------------------------------------------------------------

func (c *Client) onConnectionEnd(protocol.Message) {
	c.log.Info("client: server ended the connection")
	c.transport.Disconnect()
	c.setState(session.NewDisconnected(nil))
}

func (c *Client) onSessionEnd(protocol.Message) {
	if c.store.Get().Kind != session.InSession {
		c.log.Debug("client: session end outside a session")
		return
	}
	c.setState(session.NewIdle())
}

func (c *Client) onSessionRequest(protocol.Message) {
	c.log.Debug("client: ignoring session request from server")
}

func (c *Client) onSessionSuccess(protocol.Message) {
	if c.store.Get().Kind != session.Waiting {
		c.log.Debug("client: session success while not waiting")
		return
	}
	c.setState(session.NewInSession(nil))
}

func (c *Client) onSessionValue(m protocol.Message) {
	cur := c.store.Get()
	if cur.Kind != session.InSession {
		metrics.FramesDropped.WithLabelValues("inbound", metrics.ReasonNoSession).Inc()
		c.log.Warn("client: dropped message outside a session",
			zap.Stringer("state", cur.Kind),
			zap.Int("bytes", len(m.Text)),
		)
		return
	}
	c.setState(cur.WithMessage(chat.NewReceived(m.Text)))
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// setState publishes next to every observer.
func (c *Client) setState(next session.State) {
	prev := c.store.Get()
	c.store.Set(next)
	metrics.Transitions.WithLabelValues(next.Kind.String()).Inc()
	if prev.Kind != next.Kind || next.Err != nil {
		c.log.Debug("client: state changed",
			zap.Stringer("from", prev.Kind),
			zap.Stringer("to", next.Kind),
			zap.Error(next.Err),
		)
	}
}

// send writes m. Frames that can't be written are dropped; a write failure
// also closes the connection, which arrives later as a disconnected event.
func (c *Client) send(m protocol.Message) {
	err := c.transport.Send(m)
	if err == nil {
		return
	}

	reason := metrics.ReasonWriteFailed
	switch {
	case errors.Is(err, protocol.ErrFrameTooLarge):
		reason = metrics.ReasonTooLarge
	case errors.Is(err, transport.ErrNotConnected):
		reason = metrics.ReasonNotConnected
	}
	metrics.FramesDropped.WithLabelValues("outbound", reason).Inc()
	c.log.Warn("client: dropped outbound frame",
		zap.Stringer("kind", m.Kind),
		zap.String("reason", reason),
		zap.Error(err),
	)
}

func (c *Client) ignore(intent string, cur session.State) {
	c.log.Debug("client: intent ignored", zap.String("intent", intent), zap.Stringer("state", cur.Kind))
}

// endConnectSpan closes the pending connect span, if any.
func (c *Client) endConnectSpan(err error) {
	if c.connectSpan == nil {
		return
	}
	if err != nil {
		c.connectSpan.RecordError(err)
		c.connectSpan.SetStatus(codes.Error, err.Error())
	} else {
		c.connectSpan.SetStatus(codes.Ok, "")
	}
	c.connectSpan.End()
	c.connectSpan = nil
}
