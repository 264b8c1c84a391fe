// Command otlp-ingress is the reference composition root and standalone
// driver loop for the OTLP ingress bridge (§4.H): it wires every component
// together and, in lieu of a real external scheduling framework, runs its
// own poll/commit loop against an in-memory offset store, logging each
// emitted record as the stand-in downstream sink.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/conduktor/kafka-connect-opentelemetry/app"
	"github.com/conduktor/kafka-connect-opentelemetry/codec"
	"github.com/conduktor/kafka-connect-opentelemetry/config"
	"github.com/conduktor/kafka-connect-opentelemetry/dispatch"
	"github.com/conduktor/kafka-connect-opentelemetry/health"
	"github.com/conduktor/kafka-connect-opentelemetry/ingress"
	"github.com/conduktor/kafka-connect-opentelemetry/internal/offsetstore"
	"github.com/conduktor/kafka-connect-opentelemetry/metrics"
	"github.com/conduktor/kafka-connect-opentelemetry/observability"
	"github.com/conduktor/kafka-connect-opentelemetry/otlpgrpc"
	"github.com/conduktor/kafka-connect-opentelemetry/otlphttp"
	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"
	"github.com/conduktor/kafka-connect-opentelemetry/queue"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file overlaying the embedded defaults")
	flag.Parse()

	ctx := context.Background()
	builder := app.WithHooks(func(ctx context.Context, hooks *app.HookRegistry) (runtime, error) {
		return build(ctx, hooks, *configPath)
	})

	if err := app.Run(ctx, builder); err != nil {
		app.LogError(slog.NewJSONHandler(os.Stderr, nil), err)
		os.Exit(1)
	}
}

func build(ctx context.Context, hooks *app.HookRegistry, configPath string) (runtime, error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return runtime{}, fmt.Errorf("otlp-ingress: config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return runtime{}, fmt.Errorf("otlp-ingress: config invalid: %w", err)
	}

	log, obsShutdown, err := observability.Initialize(ctx, cfg.Observability)
	if err != nil {
		return runtime{}, fmt.Errorf("otlp-ingress: observability: %w", err)
	}
	hooks.OnPostRun(func(ctx context.Context) error {
		return obsShutdown(ctx)
	})

	promReg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(promReg, log)
	counters := metricsRegistry.Register(ctx, cfg.ConnectorName)
	counters.SetQueueCapacity(int64(cfg.OTLP.Message.QueueSize))
	hooks.OnPostRun(func(ctx context.Context) error {
		metricsRegistry.Unregister(cfg.ConnectorName)
		return nil
	})

	format, err := codec.ParseFormat(cfg.OTLP.Message.Format)
	if err != nil {
		return runtime{}, fmt.Errorf("otlp-ingress: %w", err)
	}

	var queues dispatch.Queues
	for i := range queues {
		queues[i] = queue.New[otlptype.Message](cfg.OTLP.Message.QueueSize)
	}
	sink := dispatch.NewSink(queues, codec.New(format), counters, log)

	var liveness, readiness health.Binary
	liveness.MarkHealthy()

	receivers, err := startReceivers(cfg, sink, &readiness, &liveness, log, promReg, hooks)
	if err != nil {
		return runtime{}, fmt.Errorf("otlp-ingress: %w", err)
	}

	topics := [len(otlptype.Signals)]string{cfg.Kafka.TopicTraces, cfg.Kafka.TopicMetrics, cfg.Kafka.TopicLogs}
	driver := ingress.New(cfg.ConnectorName, topics, queues, counters, log)

	store := offsetstore.New()
	if err := driver.Start(store.Read, receivers...); err != nil {
		return runtime{}, fmt.Errorf("otlp-ingress: driver start: %w", err)
	}
	readiness.MarkHealthy()

	hooks.OnPostRun(func(ctx context.Context) error {
		return driver.Stop(ctx)
	})

	return runtime{driver: driver, store: store, log: log}, nil
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		return config.Config{}, err
	}
	defer f.Close()
	return config.Load(f)
}

func startReceivers(cfg config.Config, sink *dispatch.Sink, readiness, liveness health.Monitor, log *slog.Logger, promReg *prometheus.Registry, hooks *app.HookRegistry) ([]ingress.Receiver, error) {
	var receivers []ingress.Receiver

	bind := cfg.OTLP.Bind.Address

	if cfg.OTLP.GRPC.Enabled {
		ls, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, cfg.OTLP.GRPC.Port))
		if err != nil {
			return nil, fmt.Errorf("grpc listen: %w", err)
		}
		api := otlpgrpc.NewApi(sink, log)
		grpcApp, _ := otlpgrpc.NewServer(ls, api, readiness)
		receivers = append(receivers, grpcApp)
	}

	if cfg.OTLP.HTTP.Enabled {
		ls, err := net.Listen("tcp", fmt.Sprintf("%s:%d", bind, cfg.OTLP.HTTP.Port))
		if err != nil {
			return nil, fmt.Errorf("http listen: %w", err)
		}
		api := otlphttp.NewApi(sink, log, cfg.OTLP.HTTP.MaxBodyBytes, readiness, liveness, promReg)
		httpApp := otlphttp.NewServer(ls, api, nil)
		receivers = append(receivers, httpApp)
	}

	if len(receivers) == 0 {
		return nil, errors.New("no receivers enabled")
	}

	return receivers, nil
}

// runtime drives the driver's poll/commit contract itself, standing in for
// the external scheduling framework spec.md declares out of scope.
type runtime struct {
	driver *ingress.Driver
	store  *offsetstore.Store
	log    *slog.Logger
}

func (r runtime) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		records, ok := r.driver.Poll(ctx)
		if !ok {
			continue
		}

		for _, rec := range records {
			r.log.InfoContext(ctx, "record",
				slog.String("topic", rec.Topic),
				slog.Int64("sequence", rec.OffsetKey.Sequence),
				slog.String("session_id", rec.OffsetKey.SessionId),
			)
			r.store.Write(rec)
			r.driver.Commit(ctx, rec)
		}
	}
}
