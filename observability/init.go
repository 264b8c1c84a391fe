// Package observability wires this process's own OpenTelemetry
// self-instrumentation: resource detection, tracer/meter/logger provider
// construction, and the log/slog bridge. It is the ambient stack the ingress
// core runs inside of — not part of the OTLP wire contract the core
// terminates.
package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/runtime"
	"go.opentelemetry.io/otel"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/conduktor/kafka-connect-opentelemetry/concurrent"
	cfgpkg "github.com/conduktor/kafka-connect-opentelemetry/config"
	"github.com/conduktor/kafka-connect-opentelemetry/internal/detector"
)

// Shutdown releases every provider Initialize constructed.
type Shutdown func(context.Context) error

// Initialize builds and installs the global tracer, meter and logger
// providers for cfg, and returns a *slog.Logger bridged to the OTel Logs SDK
// via otelslog (falling back to a plain JSON stdout handler when a signal's
// Endpoint is empty). The returned Shutdown flushes and closes every
// provider; callers should invoke it during their own drain sequence.
func Initialize(ctx context.Context, cfg cfgpkg.ObservabilityConfig) (*slog.Logger, Shutdown, error) {
	r, err := detectResource(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: detect resource: %w", err)
	}

	grpcConns := concurrent.NewCache[string, *grpc.ClientConn]()

	tp, traceShutdown, err := initTraceProvider(ctx, cfg.Trace, r, grpcConns)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: trace provider: %w", err)
	}
	otel.SetTracerProvider(tp)

	mp, metricShutdown, err := initMeterProvider(ctx, cfg.Metric, r, grpcConns)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: meter provider: %w", err)
	}
	otel.SetMeterProvider(mp)

	if err := runtime.Start(runtime.WithMinimumReadMemStatsInterval(time.Second)); err != nil {
		return nil, nil, fmt.Errorf("observability: start runtime instrumentation: %w", err)
	}

	lp, logShutdown, err := initLoggerProvider(ctx, cfg.Log, cfg.LogLevels, r, grpcConns)
	if err != nil {
		return nil, nil, fmt.Errorf("observability: logger provider: %w", err)
	}

	logger := otelslog.NewLogger(cfg.ServiceName, otelslog.WithLoggerProvider(lp))

	shutdown := func(ctx context.Context) error {
		return errors.Join(
			traceShutdown(ctx),
			metricShutdown(ctx),
			logShutdown(ctx),
		)
	}

	return logger, shutdown, nil
}

func detectResource(ctx context.Context, cfg cfgpkg.ObservabilityConfig) (*resource.Resource, error) {
	return resource.Detect(
		ctx,
		detector.TelemetrySDK(),
		detector.Host(),
		detector.ServiceName(cfg.ServiceName),
		detector.ServiceVersion(cfg.ServiceVersion),
	)
}

func getOrNewClientConn(endpoint string, cache *concurrent.Cache[string, *grpc.ClientConn]) (*grpc.ClientConn, error) {
	return cache.GetOr(endpoint, func() (*grpc.ClientConn, error) {
		// TODO: wire TLS transport credentials once otlp.tls is fully implemented.
		return grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	})
}

func initTraceProvider(ctx context.Context, cfg cfgpkg.SignalExport, r *resource.Resource, grpcConns *concurrent.Cache[string, *grpc.ClientConn]) (*trace.TracerProvider, Shutdown, error) {
	var exp trace.SpanExporter
	if cfg.Endpoint == "" {
		exp = noopSpanExporter{}
	} else {
		var err error
		switch cfg.Protocol {
		case "http":
			exp, err = otlptracehttp.New(ctx, otlptracehttp.WithEndpoint(cfg.Endpoint))
		default:
			cc, cerr := getOrNewClientConn(cfg.Endpoint, grpcConns)
			if cerr != nil {
				return nil, nil, cerr
			}
			exp, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(cc))
		}
		if err != nil {
			return nil, nil, err
		}
	}

	ratio := cfg.SamplingRatio
	if ratio <= 0 {
		ratio = 1
	}

	sp := trace.NewBatchSpanProcessor(
		exp,
		trace.WithBatchTimeout(nonZero(cfg.BatchTimeout, 5*time.Second)),
		trace.WithMaxExportBatchSize(nonZeroInt(cfg.MaxBatchSize, 512)),
	)

	tp := trace.NewTracerProvider(
		trace.WithSpanProcessor(sp),
		trace.WithSampler(trace.TraceIDRatioBased(ratio)),
		trace.WithResource(r),
	)

	return tp, func(ctx context.Context) error { return tp.Shutdown(ctx) }, nil
}

func initMeterProvider(ctx context.Context, cfg cfgpkg.SignalExport, r *resource.Resource, grpcConns *concurrent.Cache[string, *grpc.ClientConn]) (*metric.MeterProvider, Shutdown, error) {
	var exp metric.Exporter
	if cfg.Endpoint == "" {
		exp = noopMetricExporter{}
	} else {
		var err error
		switch cfg.Protocol {
		case "http":
			exp, err = otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		default:
			cc, cerr := getOrNewClientConn(cfg.Endpoint, grpcConns)
			if cerr != nil {
				return nil, nil, cerr
			}
			exp, err = otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithGRPCConn(cc))
		}
		if err != nil {
			return nil, nil, err
		}
	}

	reader := metric.NewPeriodicReader(
		exp,
		metric.WithInterval(nonZero(cfg.BatchTimeout, 15*time.Second)),
		metric.WithProducer(runtime.NewProducer()),
	)

	mp := metric.NewMeterProvider(
		metric.WithReader(reader),
		metric.WithResource(r),
	)

	return mp, func(ctx context.Context) error { return mp.Shutdown(ctx) }, nil
}

func initLoggerProvider(ctx context.Context, cfg cfgpkg.SignalExport, logLevels map[string]string, r *resource.Resource, grpcConns *concurrent.Cache[string, *grpc.ClientConn]) (*sdklog.LoggerProvider, Shutdown, error) {
	var exp sdklog.Exporter
	if cfg.Endpoint == "" {
		exp = &slogExporter{handler: slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{})}
	} else {
		var err error
		switch cfg.Protocol {
		case "http":
			exp, err = otlploghttp.New(ctx, otlploghttp.WithEndpoint(cfg.Endpoint))
		default:
			cc, cerr := getOrNewClientConn(cfg.Endpoint, grpcConns)
			if cerr != nil {
				return nil, nil, cerr
			}
			exp, err = otlploggrpc.New(ctx, otlploggrpc.WithGRPCConn(cc))
		}
		if err != nil {
			return nil, nil, err
		}
	}

	processor := sdklog.Processor(sdklog.NewBatchProcessor(
		exp,
		sdklog.WithExportInterval(nonZero(cfg.BatchTimeout, 5*time.Second)),
		sdklog.WithExportMaxBatchSize(nonZeroInt(cfg.MaxBatchSize, 512)),
	))

	if len(logLevels) > 0 {
		processor = newFilteringProcessor(processor, logLevels)
	}

	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(processor),
		sdklog.WithResource(r),
	)

	return lp, func(ctx context.Context) error { return lp.Shutdown(ctx) }, nil
}

func nonZero(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func nonZeroInt(n, fallback int) int {
	if n <= 0 {
		return fallback
	}
	return n
}
