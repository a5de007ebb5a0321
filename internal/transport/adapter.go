package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/anonchat/internal/metrics"
	"github.com/whisper/anonchat/internal/protocol"
)

// Config holds tunable parameters for the Adapter.
type Config struct {
	ConnectTimeout time.Duration // bound on one connect attempt
	WriteTimeout   time.Duration // deadline for writing one frame; 0 disables
	ReadBufferSize int           // size of each socket read
}

// DefaultConfig returns the Adapter defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout: 8 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadBufferSize: 4096,
	}
}

// link is one connection attempt and, once dialed, its socket. Fields other
// than writeMu are guarded by Adapter.mu.
type link struct {
	cancel   context.CancelFunc // aborts a pending dial
	conn     net.Conn           // nil until the dial succeeds
	closed   bool               // closed locally
	closeErr error              // reported with the disconnect; nil is graceful
	gen      uint64             // Adapter.gen at creation
	writeMu  sync.Mutex
}

// Adapter owns at most one outbound connection. Connect, Disconnect and Send
// never block on the network beyond a single frame write; results arrive as
// events on the Sink. All methods are safe for concurrent use.
type Adapter struct {
	cfg    Config
	dialer Dialer
	sink   Sink
	log    *zap.Logger

	mu   sync.Mutex
	link *link
	gen  uint64 // bumped by Connect; events of older links are discarded
}

// NewAdapter creates an Adapter reporting to sink. A nil dialer uses
// TCPDialer and a nil logger discards logs.
func NewAdapter(cfg Config, dialer Dialer, sink Sink, log *zap.Logger) *Adapter {
	if dialer == nil {
		dialer = TCPDialer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = DefaultConfig().ReadBufferSize
	}
	return &Adapter{cfg: cfg, dialer: dialer, sink: sink, log: log}
}

// Connect starts a connect attempt to host:port and returns immediately. The
// outcome is reported as EventConnected. Any previous connection or pending
// attempt is closed, and events still pending from it (including those of a
// link already closed by Disconnect) are discarded. No retry is made.
func (a *Adapter) Connect(host string, port int) {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	a.mu.Lock()
	if old := a.link; old != nil {
		a.closeLocked(old, nil)
	}
	a.gen++
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ConnectTimeout)
	l := &link{cancel: cancel, gen: a.gen}
	a.link = l
	a.mu.Unlock()

	a.log.Debug("transport: connecting", zap.String("addr", addr), zap.Duration("timeout", a.cfg.ConnectTimeout))
	go a.dial(ctx, l, addr)
}

// Disconnect closes the current connection or aborts a pending attempt. The
// close is reported as a graceful EventDisconnected. Calling it with nothing
// open does nothing.
func (a *Adapter) Disconnect() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.link == nil {
		return
	}
	a.closeLocked(a.link, nil)
	a.link = nil
}

// Send encodes m and writes the frame. Encoding failures are returned as an
// Error with OpEncode and nothing is written. With no open connection it
// returns ErrNotConnected. A write failure closes the connection and is
// reported through EventDisconnected as well as returned.
func (a *Adapter) Send(m protocol.Message) error {
	frame, err := protocol.Encode(m)
	if err != nil {
		return &Error{Op: OpEncode, Err: err}
	}

	a.mu.Lock()
	l := a.link
	var conn net.Conn
	if l != nil && !l.closed {
		conn = l.conn
	}
	a.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	l.writeMu.Lock()
	if a.cfg.WriteTimeout > 0 {
		_ = conn.SetWriteDeadline(time.Now().Add(a.cfg.WriteTimeout))
	}
	_, err = conn.Write(frame)
	_ = conn.SetWriteDeadline(time.Time{})
	l.writeMu.Unlock()

	if err != nil {
		werr := &Error{Op: OpDisconnect, Err: err}
		a.log.Warn("transport: write failed", zap.Stringer("message", m), zap.Error(err))
		a.mu.Lock()
		a.closeLocked(l, werr)
		a.mu.Unlock()
		return werr
	}

	metrics.FramesTotal.WithLabelValues("sent", m.Kind.String()).Inc()
	return nil
}

// ---------------------------------------------------------------------------
// internal
// ---------------------------------------------------------------------------

// dial runs one connect attempt and, on success, the read loop.
func (a *Adapter) dial(ctx context.Context, l *link, addr string) {
	start := time.Now()
	conn, err := a.dialer.Dial(ctx, addr)
	metrics.ConnectDuration.Observe(time.Since(start).Seconds())

	a.mu.Lock()
	switch {
	case l.gen != a.gen:
		a.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return

	case l.closed:
		// Disconnect arrived while dialing.
		a.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		a.log.Debug("transport: connect aborted", zap.String("addr", addr))
		a.emit(l, Event{Kind: EventDisconnected})
		return

	case err != nil:
		l.closed = true
		if a.link == l {
			a.link = nil
		}
		a.mu.Unlock()
		l.cancel()
		a.log.Warn("transport: connect failed", zap.String("addr", addr), zap.Error(err))
		a.emit(l, Event{Kind: EventConnected, Err: &Error{Op: OpConnect, Err: err}})
		return
	}
	l.conn = conn
	a.mu.Unlock()
	l.cancel()

	metrics.Connected.Set(1)
	a.log.Info("transport: connected", zap.String("addr", addr), zap.Duration("took", time.Since(start)))
	a.emit(l, Event{Kind: EventConnected})

	a.readLoop(l, conn)
}

// readLoop feeds inbound bytes to a fresh decoder and reports every complete
// frame in arrival order. It ends with exactly one EventDisconnected.
func (a *Adapter) readLoop(l *link, conn net.Conn) {
	buf := make([]byte, a.cfg.ReadBufferSize)
	dec := protocol.NewDecoder()

	for {
		n, err := conn.Read(buf)
		if n > 0 {
			dec.Append(buf[:n])
			for {
				msg, ok, derr := dec.Decode()
				if derr != nil {
					// The stream can't be resynchronized; close before reporting so
					// the disconnect carries the decode error.
					metrics.DecodeErrors.Inc()
					decErr := &Error{Op: OpDecode, Err: derr}
					a.log.Warn("transport: decode failed", zap.Error(derr))
					a.mu.Lock()
					a.closeLocked(l, decErr)
					a.mu.Unlock()
					a.emit(l, Event{Kind: EventReceived, Err: decErr})
					a.finish(l, nil)
					return
				}
				if !ok {
					break
				}
				metrics.FramesTotal.WithLabelValues("received", msg.Kind.String()).Inc()
				a.emit(l, Event{Kind: EventReceived, Message: msg})
			}
		}
		if err != nil {
			a.finish(l, err)
			return
		}
	}
}

// finish tears down l after its read loop ends and reports the disconnect.
func (a *Adapter) finish(l *link, readErr error) {
	a.mu.Lock()
	var result error
	switch {
	case l.closed:
		result = l.closeErr
	case readErr == nil, errors.Is(readErr, io.EOF):
		result = nil
	default:
		result = &Error{Op: OpDisconnect, Err: readErr}
	}
	a.closeLocked(l, result)
	if a.link == l {
		a.link = nil
	}
	superseded := l.gen != a.gen
	a.mu.Unlock()

	if superseded {
		return
	}
	metrics.Connected.Set(0)
	if result != nil {
		a.log.Warn("transport: connection lost", zap.Error(result))
	} else {
		a.log.Info("transport: disconnected")
	}
	a.emit(l, Event{Kind: EventDisconnected, Err: result})
}

// closeLocked closes l once, remembering why. Callers hold a.mu.
func (a *Adapter) closeLocked(l *link, reason error) {
	if l.closed {
		return
	}
	l.closed = true
	l.closeErr = reason
	l.cancel()
	if l.conn != nil {
		l.conn.Close()
	}
}

// emit delivers ev unless a newer Connect has started since l was created.
// The sink is called without holding a.mu.
func (a *Adapter) emit(l *link, ev Event) {
	a.mu.Lock()
	superseded := l.gen != a.gen
	a.mu.Unlock()
	if superseded || a.sink == nil {
		return
	}
	a.sink.HandleTransportEvent(ev)
}
