package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Dialer opens the byte stream to addr ("host:port"). The context carries
// the connect timeout.
type Dialer interface {
	Dial(ctx context.Context, addr string) (net.Conn, error)
}

// TCPDialer dials a plain TCP connection.
type TCPDialer struct {
	KeepAlive time.Duration // zero uses the net package default
}

// Dial implements Dialer.
func (d TCPDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	nd := net.Dialer{KeepAlive: d.KeepAlive}
	return nd.DialContext(ctx, "tcp", addr)
}

// WSDialer tunnels the frame stream through a WebSocket connection. Each
// write goes out as one binary message and inbound message payloads are
// concatenated back into a byte stream, so framing is unchanged.
type WSDialer struct {
	Path   string // request path, e.g. "/"
	Secure bool   // use wss://
}

// Dial implements Dialer.
func (d WSDialer) Dial(ctx context.Context, addr string) (net.Conn, error) {
	u := url.URL{Scheme: "ws", Host: addr, Path: d.Path}
	if d.Secure {
		u.Scheme = "wss"
	}
	if u.Path == "" {
		u.Path = "/"
	}

	conn, br, _, err := ws.Dial(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("ws dial %s: %w", u.String(), err)
	}

	// br holds any frames the server sent right after the handshake.
	var r io.Reader = conn
	if br != nil {
		r = io.MultiReader(br, conn)
	}
	return &wsConn{Conn: conn, r: r}, nil
}

// readWriter joins a reader and writer for wsutil, which answers control
// frames on the same stream it reads from.
type readWriter struct {
	io.Reader
	io.Writer
}

// wsConn presents a client-side WebSocket as a plain byte stream.
type wsConn struct {
	net.Conn
	r       io.Reader
	pending []byte
	readMu  sync.Mutex
	writeMu sync.Mutex
}

// Read returns bytes from the current message, reading the next data
// message when the previous one is exhausted. A close frame from the server
// is reported as io.EOF.
func (c *wsConn) Read(p []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		data, _, err := wsutil.ReadServerData(readWriter{Reader: c.r, Writer: &lockedWriter{mu: &c.writeMu, w: c.Conn}})
		if err != nil {
			var closed wsutil.ClosedError
			if errors.As(err, &closed) {
				return 0, io.EOF
			}
			return 0, err
		}
		c.pending = data
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

// Write sends p as one masked binary message.
func (c *wsConn) Write(p []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsutil.WriteClientBinary(c.Conn, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a best-effort close frame before closing the socket. The frame
// is skipped when a write is in flight so Close never waits on a stalled peer.
func (c *wsConn) Close() error {
	if c.writeMu.TryLock() {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteClientMessage(c.Conn, ws.OpClose, nil)
		c.writeMu.Unlock()
	}
	return c.Conn.Close()
}

// lockedWriter serializes control-frame replies with application writes.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
