// Package telemetry wires OpenTelemetry tracing and metrics for the service.
//
// Both signals share one gRPC connection to an OTLP collector when an
// endpoint is configured. Without one, spans can be printed to stdout for
// local debugging and metrics stay on the global no-op provider.
//
//	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
//	    OTLPEndpoint: "localhost:4317",
//	})
//	defer shutdown(ctx)
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ShutdownFunc flushes and stops whatever Setup installed.
type ShutdownFunc func(context.Context) error

func noopShutdown(context.Context) error { return nil }

// Config holds telemetry configuration shared by traces and metrics.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string

	// OTLPEndpoint is the collector's gRPC address, e.g. "localhost:4317".
	OTLPEndpoint string

	// TraceStdout prints spans to stdout when no OTLP endpoint is set.
	TraceStdout bool

	// SampleRate is the head sampling ratio. Zero means sample everything.
	SampleRate float64

	// MetricInterval is the export interval for metrics.
	MetricInterval time.Duration
}

// ConfigDefaults returns default configuration.
func ConfigDefaults() Config {
	return Config{
		ServiceName:    "fraud-scoring",
		ServiceVersion: "dev",
		Environment:    "development",
		SampleRate:     1.0,
		MetricInterval: 15 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := ConfigDefaults()
	if c.ServiceName == "" {
		c.ServiceName = d.ServiceName
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = d.ServiceVersion
	}
	if c.Environment == "" {
		c.Environment = d.Environment
	}
	if c.SampleRate == 0 {
		c.SampleRate = d.SampleRate
	}
	if c.MetricInterval == 0 {
		c.MetricInterval = d.MetricInterval
	}
	return c
}

func newResource(c Config) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(c.ServiceName),
			semconv.ServiceVersion(c.ServiceVersion),
			semconv.DeploymentEnvironmentName(c.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("building telemetry resource: %w", err)
	}
	return res, nil
}

// Setup installs the global tracer provider, meter provider and W3C
// propagators. The returned ShutdownFunc flushes both providers and closes
// the collector connection; it is safe to call when nothing was installed.
func Setup(ctx context.Context, config Config) (ShutdownFunc, error) {
	config = config.withDefaults()
	if config.OTLPEndpoint == "" && !config.TraceStdout {
		return noopShutdown, nil
	}

	res, err := newResource(config)
	if err != nil {
		return nil, err
	}

	var conn *grpc.ClientConn
	if config.OTLPEndpoint != "" {
		conn, err = grpc.NewClient(config.OTLPEndpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, fmt.Errorf("connecting to collector %s: %w", config.OTLPEndpoint, err)
		}
	}

	var shutdowns []ShutdownFunc
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			errs = append(errs, shutdowns[i](ctx))
		}
		if conn != nil {
			errs = append(errs, conn.Close())
		}
		return errors.Join(errs...)
	}

	tp, err := newTracerProvider(ctx, config, res, conn)
	if err != nil {
		_ = shutdown(ctx)
		return nil, err
	}
	shutdowns = append(shutdowns, tp.Shutdown)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if conn != nil {
		mp, err := newMeterProvider(ctx, config, res, conn)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		shutdowns = append(shutdowns, mp.Shutdown)
		otel.SetMeterProvider(mp)
	}

	return shutdown, nil
}
