// Package messaging mirrors the client's connection state onto NATS so other
// processes (dashboards, test harnesses) can follow a session without
// touching the pairing server connection.
package messaging

import (
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// DefaultSubject is the subject state snapshots are published to.
const DefaultSubject = "anonchat.state"

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn *nats.Conn
	log  *zap.Logger
	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
	Timeout       time.Duration // initial connect timeout
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "anonchat",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1,
		Timeout:       2 * time.Second,
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready client.
// It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, log *zap.Logger) (*NATSClient, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("nats")

	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.Timeout(config.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("disconnected", zap.Error(err))
			} else {
				log.Info("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Debug("connection closed")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	log.Info("connected", zap.String("url", nc.ConnectedUrl()))

	return &NATSClient{
		conn: nc,
		log:  log,
		subs: make(map[string]*nats.Subscription),
	}, nil
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// Subscribe registers a handler for the given subject and stores the
// subscription internally for later cleanup.
func (c *NATSClient) Subscribe(subject string, handler func(data []byte)) error {
	sub, err := c.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// Unsubscribe removes the subscription for subject.
func (c *NATSClient) Unsubscribe(subject string) error {
	c.mu.Lock()
	sub, ok := c.subs[subject]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("nats: no subscription for subject %s", subject)
	}
	delete(c.subs, subject)
	c.mu.Unlock()

	if err := sub.Unsubscribe(); err != nil {
		return fmt.Errorf("nats unsubscribe %s: %w", subject, err)
	}
	return nil
}

// Flush waits until the server has processed everything published so far.
func (c *NATSClient) Flush() error {
	return c.conn.Flush()
}

// Close drains all active subscriptions and closes the NATS connection.
func (c *NATSClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for subject, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.log.Warn("drain subscription", zap.String("subject", subject), zap.Error(err))
		}
	}
	c.subs = make(map[string]*nats.Subscription)

	if err := c.conn.Drain(); err != nil {
		c.log.Warn("connection drain", zap.Error(err))
	}

	c.log.Debug("client closed")
}
