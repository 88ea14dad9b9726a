package tracing

import (
	"context"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type Config struct {
	Enable   bool   `yaml:"enableTrace" envconfig:"TRACE_ENABLE"`
	Endpoint string `yaml:"traceEndpoint" envconfig:"TRACE_ENDPOINT" default:"localhost:4318"`
}

type ShutdownFunc func(ctx context.Context) error

// Setup installs a global OTLP/HTTP tracer provider. With tracing disabled the
// global no-op provider stays in place and the returned func does nothing.
func Setup(ctx context.Context, cfg Config, service string) (ShutdownFunc, error) {
	if !cfg.Enable {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.Endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, errors.Wrap(err, "otlptracehttp.New")
	}
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", service)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "resource.Merge")
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	return tp.Shutdown, nil
}
