package main

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/whisper/anonchat/internal/client"
	"github.com/whisper/anonchat/internal/config"
	"github.com/whisper/anonchat/internal/logging"
	"github.com/whisper/anonchat/internal/messaging"
	"github.com/whisper/anonchat/internal/status"
	"github.com/whisper/anonchat/internal/tracing"
	"github.com/whisper/anonchat/internal/transport"
)

// app bundles the client with its optional side channels.
type app struct {
	log    *zap.Logger
	client *client.Client
	status *status.Server
	nats   *messaging.NATSClient
	traces *tracing.Provider

	stopMirror func()
}

// newApp validates cfg and starts everything it enables.
func newApp(cfg config.Config) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
	if err != nil {
		return nil, err
	}

	tcfg := transport.DefaultConfig()
	tcfg.ConnectTimeout = cfg.ConnectTimeout
	tcfg.WriteTimeout = cfg.WriteTimeout

	var dialer transport.Dialer = transport.TCPDialer{}
	if cfg.Scheme == config.SchemeWS {
		dialer = transport.WSDialer{Path: cfg.WSPath}
	}

	a := &app{log: log}
	opts := []client.Option{client.WithLogger(log)}
	if cfg.TraceOutput != "" {
		tp, err := tracing.Open(cfg.TraceOutput, version)
		if err != nil {
			_ = log.Sync()
			return nil, err
		}
		a.traces = tp
		otel.SetTracerProvider(tp.TracerProvider())
		opts = append(opts, client.WithTracer(tp.Tracer(client.TracerName)))
	}
	a.client = client.New(client.Config{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Transport: tcfg,
		Dialer:    dialer,
	}, opts...)

	if cfg.NATSURL != "" {
		natsCfg := messaging.DefaultNATSConfig()
		natsCfg.URL = cfg.NATSURL
		nc, err := messaging.NewNATSClient(natsCfg, log)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.nats = nc
		mirror := messaging.NewStateMirror(nc, cfg.NATSSubject, log)
		a.stopMirror = a.client.Observe(mirror.Publish)
	}

	if cfg.StatusAddr != "" {
		a.status = status.NewServer(cfg.StatusAddr, a.client, log)
		if err := a.status.Start(); err != nil {
			a.status = nil
			a.Close()
			return nil, fmt.Errorf("status server: %w", err)
		}
	}

	log.Debug("anonchat: started",
		zap.String("addr", cfg.Addr()),
		zap.String("scheme", cfg.Scheme),
		zap.Bool("tracing", a.traces != nil),
		zap.String("version", version),
	)
	return a, nil
}

// Close tears everything down in reverse order of creation.
func (a *app) Close() {
	if a.status != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.status.Shutdown(ctx); err != nil {
			a.log.Warn("anonchat: status shutdown", zap.Error(err))
		}
		cancel()
	}
	if a.stopMirror != nil {
		a.stopMirror()
	}
	a.client.Close()
	if a.nats != nil {
		a.nats.Close()
	}
	if a.traces != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := a.traces.Shutdown(ctx); err != nil {
			a.log.Warn("anonchat: trace shutdown", zap.Error(err))
		}
		cancel()
	}
	_ = a.log.Sync()
}
