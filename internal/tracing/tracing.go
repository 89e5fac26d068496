// Package tracing はOpenTelemetryのトレーサープロバイダーを初期化する。
package tracing

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

// ShutdownFunc はトレーサープロバイダーを停止し、未送信のスパンを送出する。
type ShutdownFunc func(context.Context) error

// Options はトレース初期化の設定。
type Options struct {
	// Endpoint はOTLP/HTTPの送信先URL。空の場合はエクスポーターを作成しない。
	Endpoint    string
	ServiceName string
}

// Init はOTLP/HTTPエクスポーターを使うトレーサープロバイダーをグローバルに設定する。
// Endpointが空の場合は伝搬設定のみ行い、何もしないShutdownFuncを返す。
func Init(ctx context.Context, opts Options) (ShutdownFunc, error) {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	if opts.Endpoint == "" {
		slog.Info("tracing disabled", slog.String("reason", "no OTLP endpoint"))
		return func(context.Context) error { return nil }, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(opts.ServiceName)),
		resource.WithFromEnv(),
		resource.WithTelemetrySDK(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(opts.Endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)
	otel.SetTracerProvider(tp)

	slog.Info("tracing configured",
		slog.String("endpoint", opts.Endpoint),
		slog.String("service", opts.ServiceName),
	)
	return tp.Shutdown, nil
}
