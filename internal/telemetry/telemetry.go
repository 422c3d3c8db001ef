package telemetry

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"

	"github.com/BaSui01/streambridge/config"
)

// Identity 描述上报遥测的 bridge 进程
type Identity struct {
	// Role 是 "host" 或 "gateway"
	Role    string
	Version string
}

// serviceName host 与 gateway 作为两个服务上报，便于按方向查看流
func (id Identity) serviceName(base string) string {
	if base == "" {
		base = "streambridge"
	}
	if id.Role == "" {
		return base
	}
	return base + "-" + id.Role
}

// Providers holds the SDK providers installed by Init.
// Both are nil when telemetry is disabled; Shutdown is then a no-op.
type Providers struct {
	tp *sdktrace.TracerProvider
	mp *sdkmetric.MeterProvider
}

// Resource 构造进程资源：service.name 按角色区分，并带上 streambridge.role
func Resource(cfg config.TelemetryConfig, id Identity) (*resource.Resource, error) {
	version := id.Version
	if version == "" {
		version = "dev"
	}
	return resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(id.serviceName(cfg.ServiceName)),
			semconv.ServiceNamespaceKey.String("streambridge"),
			semconv.ServiceVersionKey.String(version),
			AttrRole.String(id.Role),
		),
	)
}

// Sampler 跟随父 span 的采样决定；本进程内的根流 span 按 rate 采样
func Sampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

// Init installs OTLP/gRPC trace and metric pipelines as the global providers.
// When cfg.Enabled is false nothing is installed and no connection is made.
func Init(cfg config.TelemetryConfig, id Identity, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "telemetry"), zap.String("role", id.Role))
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}

	res, err := Resource(cfg, id)
	if err != nil {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}

	ctx := context.Background()
	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	p := install(res, Sampler(cfg.SampleRate),
		sdktrace.WithBatcher(traceExporter),
		sdkmetric.NewPeriodicReader(metricExporter),
	)
	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", id.serviceName(cfg.ServiceName)),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return p, nil
}

// install 注册全局 provider 与 W3C 传播器
func install(res *resource.Resource, sampler sdktrace.Sampler, spans sdktrace.TracerProviderOption, reader sdkmetric.Reader) *Providers {
	tp := sdktrace.NewTracerProvider(spans,
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	)
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Providers{tp: tp, mp: mp}
}

// Shutdown flushes pending spans and metrics. Safe on nil or noop Providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	if p.tp != nil {
		if err := p.tp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracer provider: %w", err))
		}
	}
	if p.mp != nil {
		if err := p.mp.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown meter provider: %w", err))
		}
	}
	return errors.Join(errs...)
}
