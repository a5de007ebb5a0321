// Package tracing sets up the OpenTelemetry tracer provider. Spans are
// batched and written as JSON by the stdout exporter, either to stderr or to
// a file.
package tracing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// Stderr is the output value that selects standard error.
const Stderr = "stderr"

// Provider owns the tracer provider and the file spans are written to.
type Provider struct {
	tp   *sdktrace.TracerProvider
	file *os.File
}

// Open creates a Provider writing to output, which is Stderr or a file path.
// The file is created or appended to.
func Open(output, version string) (*Provider, error) {
	if output == Stderr {
		return New(os.Stderr, version)
	}
	f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("tracing: %w", err)
	}
	p, err := New(f, version)
	if err != nil {
		f.Close()
		return nil, err
	}
	p.file = f
	return p, nil
}

// New creates a Provider writing spans to w.
func New(w io.Writer, version string) (*Provider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("tracing: exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", "anonchat"),
		attribute.String("service.version", version),
	)
	return &Provider{
		tp: sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		),
	}, nil
}

// TracerProvider returns the underlying provider, for otel.SetTracerProvider.
func (p *Provider) TracerProvider() trace.TracerProvider { return p.tp }

// Tracer returns a named tracer from the provider.
func (p *Provider) Tracer(name string) trace.Tracer { return p.tp.Tracer(name) }

// Shutdown flushes buffered spans and closes the output file.
func (p *Provider) Shutdown(ctx context.Context) error {
	err := p.tp.Shutdown(ctx)
	if p.file != nil {
		err = errors.Join(err, p.file.Close())
	}
	return err
}
