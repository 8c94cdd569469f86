package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"churchrank/lib/configutil"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	ConfigFileName = "telemetry.json5"
	// EnvConfigPath points at a telemetry config outside of the working directory tree.
	EnvConfigPath = "CHURCHRANK_TELEMETRY_CONFIG"
)

// Telemetry holds the providers created by Setup, a zero Telemetry means export is disabled
// and Shutdown does nothing.
type Telemetry struct {
	TracerProvider *trace.TracerProvider
	MeterProvider  *metric.MeterProvider
}

func (t Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.TracerProvider != nil {
		errs = append(errs, t.TracerProvider.Shutdown(ctx))
	}
	if t.MeterProvider != nil {
		errs = append(errs, t.MeterProvider.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

// Endpoint configures one otlp signal, the grpc endpoint wins when both are set.
type Endpoint struct {
	GrpcEndpoint string            `json:"grpc_endpoint"`
	HttpEndpoint string            `json:"http_endpoint"`
	Headers      map[string]string `json:"headers"`
}

func (e Endpoint) enabled() bool {
	return e.GrpcEndpoint != "" || e.HttpEndpoint != ""
}

func (e Endpoint) protocol() (string, string) {
	if e.GrpcEndpoint != "" {
		return "grpc", e.GrpcEndpoint
	}
	return "http", e.HttpEndpoint
}

type OtlpConfig struct {
	Traces  Endpoint `json:"traces"`
	Metrics Endpoint `json:"metrics"`
}

type Config struct {
	Otlp OtlpConfig `json:"otlp"`
	// SampleRatio is the fraction of traces kept, 0 keeps every trace.
	SampleRatio float64 `json:"sample_ratio"`
	// MetricIntervalSeconds is how often metrics are pushed, 0 means every 15 seconds.
	MetricIntervalSeconds int `json:"metric_interval_seconds"`
}

func (c Config) metricInterval() time.Duration {
	if c.MetricIntervalSeconds <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.MetricIntervalSeconds) * time.Second
}

func (c Config) sampler() trace.Sampler {
	if c.SampleRatio <= 0 || c.SampleRatio >= 1 {
		return trace.AlwaysSample()
	}
	return trace.ParentBased(trace.TraceIDRatioBased(c.SampleRatio))
}

// SetupFromEnv reads the file named by CHURCHRANK_TELEMETRY_CONFIG, or the first
// telemetry.json5 found walking up from the working directory, and sets up export with it.
// Without a config file export stays disabled.
func SetupFromEnv(ctx context.Context, serviceName string) (Telemetry, error) {
	var config Config
	var err error
	if path := os.Getenv(EnvConfigPath); path != "" {
		config, err = configutil.ReadConfig[Config](path)
	} else {
		config, err = configutil.ReadRecursively[Config](ConfigFileName)
	}
	if errors.Is(err, os.ErrNotExist) {
		slog.Debug("no telemetry config found, export disabled")
		return Telemetry{}, nil
	}
	if err != nil {
		return Telemetry{}, fmt.Errorf("read telemetry config: %w", err)
	}
	return Setup(ctx, serviceName, config)
}

// Setup installs global tracer and meter providers for every signal with an endpoint.
func Setup(ctx context.Context, serviceName string, config Config) (Telemetry, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	r, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return Telemetry{}, err
	}

	var t Telemetry
	if config.Otlp.Traces.enabled() {
		exporter, err := newSpanExporter(ctx, config.Otlp.Traces)
		if err != nil {
			return Telemetry{}, fmt.Errorf("trace exporter: %w", err)
		}
		t.TracerProvider = trace.NewTracerProvider(
			trace.WithBatcher(exporter),
			trace.WithResource(r),
			trace.WithSampler(config.sampler()),
		)
		otel.SetTracerProvider(t.TracerProvider)
	}
	if config.Otlp.Metrics.enabled() {
		exporter, err := newMetricExporter(ctx, config.Otlp.Metrics)
		if err != nil {
			return Telemetry{}, errors.Join(fmt.Errorf("metric exporter: %w", err), t.Shutdown(ctx))
		}
		t.MeterProvider = metric.NewMeterProvider(
			metric.WithReader(metric.NewPeriodicReader(exporter, metric.WithInterval(config.metricInterval()))),
			metric.WithResource(r),
		)
		otel.SetMeterProvider(t.MeterProvider)
	}
	return t, nil
}

func newSpanExporter(ctx context.Context, e Endpoint) (trace.SpanExporter, error) {
	protocol, endpoint := e.protocol()
	slog.Info("trace export enabled", "protocol", protocol, "endpoint", endpoint, "headers", len(e.Headers) > 0)
	if protocol == "grpc" {
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpointURL(endpoint), otlptracegrpc.WithHeaders(e.Headers))
	}
	return otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint), otlptracehttp.WithHeaders(e.Headers))
}

func newMetricExporter(ctx context.Context, e Endpoint) (metric.Exporter, error) {
	protocol, endpoint := e.protocol()
	slog.Info("metric export enabled", "protocol", protocol, "endpoint", endpoint, "headers", len(e.Headers) > 0)
	if protocol == "grpc" {
		return otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpointURL(endpoint), otlpmetricgrpc.WithHeaders(e.Headers))
	}
	return otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(endpoint), otlpmetrichttp.WithHeaders(e.Headers))
}
