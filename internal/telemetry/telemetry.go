// Package telemetry wires OpenTelemetry traces and metrics, exported over
// OTLP and optionally scraped through a Prometheus handler.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "github.com/straja-ai/threatkit"

// Config controls telemetry setup.
type Config struct {
	// Enabled turns on OTLP export of traces and metrics.
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
	Service  string `yaml:"service"`
	Version  string `yaml:"-"`
	// Prometheus exposes metrics through Handler.
	Prometheus bool `yaml:"prometheus"`
}

// Provider wires tracer and meter providers and exposes helpers.
type Provider struct {
	Enabled bool
	tracer  trace.Tracer
	meter   metric.Meter
	handler http.Handler

	analysesCounter  metric.Int64Counter
	analysisDuration metric.Float64Histogram
	shutdownFuncs    []func(context.Context) error
}

// NewProvider configures exporters and providers. With neither OTLP nor
// Prometheus enabled it returns no-op providers.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !cfg.Enabled && !cfg.Prometheus {
		return noopProvider(), nil
	}
	if cfg.Service == "" {
		cfg.Service = "threatkit"
	}

	res, err := resource.New(ctx,
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.Service),
			attribute.String("service.version", cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	p := &Provider{Enabled: true, tracer: tracenoop.NewTracerProvider().Tracer("")}
	metricOpts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	var tp *sdktrace.TracerProvider

	if cfg.Enabled {
		protocol := strings.ToLower(cfg.Protocol)
		slog.Info("telemetry enabled; upload warnings are expected when no collector is listening",
			"protocol", protocol, "endpoint", cfg.Endpoint)

		traceExp, err := newTraceExporter(ctx, protocol, cfg.Endpoint)
		if err != nil {
			return nil, err
		}
		tp = sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(traceExp),
			sdktrace.WithResource(res),
		)
		p.tracer = tp.Tracer(instrumentationName)
		p.shutdownFuncs = append(p.shutdownFuncs, tp.Shutdown)

		reader, err := metricReader(ctx, protocol, cfg.Endpoint)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("telemetry metric reader: %w", err), p.Shutdown(ctx))
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(reader))
	}

	if cfg.Prometheus {
		reg := prometheus.NewRegistry()
		exp, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return nil, errors.Join(fmt.Errorf("prometheus exporter: %w", err), p.Shutdown(ctx))
		}
		metricOpts = append(metricOpts, sdkmetric.WithReader(exp))
		p.handler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	mp := sdkmetric.NewMeterProvider(metricOpts...)
	if tp != nil {
		otel.SetTracerProvider(tp)
	}
	otel.SetMeterProvider(mp)
	p.meter = mp.Meter(instrumentationName)
	p.shutdownFuncs = append(p.shutdownFuncs, mp.Shutdown)
	p.initInstruments()
	return p, nil
}

func noopProvider() *Provider {
	p := &Provider{
		tracer: tracenoop.NewTracerProvider().Tracer(""),
		meter:  metricnoop.NewMeterProvider().Meter(""),
	}
	p.initInstruments()
	return p
}

func newTraceExporter(ctx context.Context, protocol, endpoint string) (sdktrace.SpanExporter, error) {
	switch protocol {
	case "", "grpc":
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithInsecure())
	case "http":
		return otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithInsecure())
	default:
		return nil, fmt.Errorf("unsupported telemetry protocol %q", protocol)
	}
}

// metricReader is replaced in tests to exercise the failure path.
var metricReader = newMetricReader

func newMetricReader(ctx context.Context, protocol, endpoint string) (sdkmetric.Reader, error) {
	switch protocol {
	case "", "grpc":
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint), otlpmetricgrpc.WithInsecure())
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case "http":
		exp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(endpoint), otlpmetrichttp.WithInsecure())
		if err != nil {
			return nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	default:
		return nil, fmt.Errorf("unsupported telemetry protocol %q", protocol)
	}
}

func (p *Provider) initInstruments() {
	// Instrument errors are ignored; telemetry is best-effort.
	p.analysesCounter, _ = p.meter.Int64Counter("threatkit_analyses_total",
		metric.WithDescription("Completed analyses by kind, calibration path and verdict."))
	p.analysisDuration, _ = p.meter.Float64Histogram("threatkit_analysis_duration",
		metric.WithUnit("ms"))
}

// Tracer returns the tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return tracenoop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Meter returns the meter.
func (p *Provider) Meter() metric.Meter {
	if p == nil {
		return metricnoop.NewMeterProvider().Meter("")
	}
	return p.meter
}

// Handler serves the Prometheus exposition, or nil when it is disabled.
func (p *Provider) Handler() http.Handler {
	if p == nil {
		return nil
	}
	return p.handler
}

// Shutdown flushes providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range p.shutdownFuncs {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}

// RecordAnalysis counts one finished analysis and records its latency.
func (p *Provider) RecordAnalysis(ctx context.Context, kind, path, verdict string, elapsed time.Duration) {
	if p == nil || p.analysesCounter == nil {
		return
	}
	attrs := metric.WithAttributes(SafeAttributes(map[string]any{
		"threatkit.kind":        kind,
		"threatkit.calibration": path,
		"threatkit.verdict":     verdict,
	})...)
	p.analysesCounter.Add(ctx, 1, attrs)
	p.analysisDuration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
}

// ObserveQueue reports recorder queue counters on every collection.
func (p *Provider) ObserveQueue(snapshot func() (enqueued, dropped uint64)) error {
	if p == nil || snapshot == nil {
		return nil
	}
	enq, err := p.meter.Int64ObservableCounter("threatkit_records_enqueued_total")
	if err != nil {
		return err
	}
	drop, err := p.meter.Int64ObservableCounter("threatkit_records_dropped_total")
	if err != nil {
		return err
	}
	_, err = p.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		e, d := snapshot()
		o.ObserveInt64(enq, int64(e))
		o.ObserveInt64(drop, int64(d))
		return nil
	}, enq, drop)
	return err
}
