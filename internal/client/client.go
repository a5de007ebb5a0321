// Package client implements the connection state machine. A Client turns user
// intents (connect, request a partner, send text, leave, disconnect) and
// transport events into transitions of a single session.State, which the
// presentation layer observes.
//
// All intents and events are serialized onto one goroutine, so the state is
// only ever written there and intents never block the caller.
package client

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/whisper/anonchat/internal/protocol"
	"github.com/whisper/anonchat/internal/session"
	"github.com/whisper/anonchat/internal/transport"
)

// TracerName is the instrumentation name of the connect spans.
const TracerName = "github.com/whisper/anonchat/internal/client"

// ErrClosed is returned by Sync once Close has begun.
var ErrClosed = errors.New("client: closed")

// Transport is the connection the Client drives. *transport.Adapter is the
// production implementation.
type Transport interface {
	Connect(host string, port int)
	Disconnect()
	Send(m protocol.Message) error
}

// TransportFactory builds the Client's Transport, wiring its events back to
// sink.
type TransportFactory func(sink transport.Sink) Transport

// Config holds the server endpoint and the settings for the default
// transport.
type Config struct {
	Host      string
	Port      int
	Transport transport.Config
	Dialer    transport.Dialer // nil dials plain TCP
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithTracer sets the tracer used for connect spans. The default comes from
// the global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Client) { c.tracer = tracer }
}

// WithTransport replaces the default transport.Adapter.
func WithTransport(factory TransportFactory) Option {
	return func(c *Client) { c.factory = factory }
}

// Client is the connection state machine. It exclusively owns its Transport
// and its state store. All methods are safe for concurrent use.
type Client struct {
	host    string
	port    int
	log     *zap.Logger
	tracer  trace.Tracer
	factory TransportFactory

	transport Transport
	store     *session.Store
	handlers  map[protocol.Kind]messageHandler

	// Accessed only from the loop goroutine.
	connectSpan trace.Span

	mu      sync.Mutex
	pending []func()
	closing bool // set by Close; later enqueues are dropped
	wake    chan struct{}
	quit    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// New creates a Client in the Disconnected state and starts its loop. Call
// Close to release it.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		host:    cfg.Host,
		port:    cfg.Port,
		log:     zap.NewNop(),
		store:   session.NewStore(session.NewDisconnected(nil)),
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracer == nil {
		c.tracer = otel.Tracer(TracerName)
	}
	if c.factory == nil {
		tcfg, dialer, log := cfg.Transport, cfg.Dialer, c.log
		c.factory = func(sink transport.Sink) Transport {
			return transport.NewAdapter(tcfg, dialer, sink, log)
		}
	}
	c.transport = c.factory(transport.SinkFunc(c.handleTransportEvent))
	c.handlers = c.messageHandlers()

	go c.run()
	return c
}

// ---------------------------------------------------------------------------
// Intents
// ---------------------------------------------------------------------------

// Connect opens a connection to the configured server, replacing any current
// one. Valid in every state.
func (c *Client) Connect() { c.enqueue(c.connect) }

// Disconnect closes the connection. Valid in every state.
func (c *Client) Disconnect() { c.enqueue(c.disconnect) }

// RequestPartner asks the server for a chat partner. Only valid while Idle.
func (c *Client) RequestPartner() { c.enqueue(c.requestPartner) }

// SendText appends text to the transcript and sends it to the partner. Only
// valid while InSession.
func (c *Client) SendText(text string) {
	c.enqueue(func() { c.sendText(text) })
}

// LeaveSession ends the current session or cancels a pending partner request.
// Only valid while Waiting or InSession.
func (c *Client) LeaveSession() { c.enqueue(c.leaveSession) }

// ---------------------------------------------------------------------------
// Observation
// ---------------------------------------------------------------------------

// State returns the current state.
func (c *Client) State() session.State { return c.store.Get() }

// Observe registers fn to be called with every new state. fn runs on the
// Client's loop goroutine and must not block or call Close.
func (c *Client) Observe(fn func(session.State)) (cancel func()) {
	return c.store.Observe(fn)
}

// Subscribe returns a buffered channel of new states. States are skipped when
// the buffer is full; State always reports the latest one.
func (c *Client) Subscribe() (<-chan session.State, func()) {
	return c.store.Subscribe()
}

// Close handles every intent and event already queued, then stops the loop and
// closes the connection. Intents issued afterwards are ignored. Close must
// not be called from an observer.
func (c *Client) Close() {
	c.once.Do(func() {
		c.mu.Lock()
		c.closing = true
		c.pending = append(c.pending, func() { close(c.quit) })
		c.mu.Unlock()
		c.signal()

		<-c.stopped
		c.transport.Disconnect()
		if c.connectSpan != nil {
			c.connectSpan.End()
			c.connectSpan = nil
		}
		c.log.Debug("client: closed")
	})
}

// ---------------------------------------------------------------------------
// Loop
// ---------------------------------------------------------------------------

// enqueue schedules fn on the loop goroutine. It never blocks, and reports
// false once Close has begun.
func (c *Client) enqueue(fn func()) bool {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return false
	}
	c.pending = append(c.pending, fn)
	c.mu.Unlock()

	c.signal()
	return true
}

func (c *Client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// run executes queued functions in order. The last one Close queues closes
// quit, so nothing queued before Close is skipped.
func (c *Client) run() {
	defer close(c.stopped)
	for range c.wake {
		for {
			c.mu.Lock()
			batch := c.pending
			c.pending = nil
			c.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, fn := range batch {
				fn()
				select {
				case <-c.quit:
					return
				default:
				}
			}
		}
	}
}

// Sync waits until every intent and event queued before the call has been
// handled. It returns early if ctx ends, and ErrClosed once Close has begun.
func (c *Client) Sync(ctx context.Context) error {
	done := make(chan struct{})
	if !c.enqueue(func() { close(done) }) {
		return ErrClosed
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
