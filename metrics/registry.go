package metrics

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"
	"github.com/prometheus/client_golang/prometheus"
)

var signalsForObserve = otlptype.Signals[:]

func connectorAttr(name string) attribute.KeyValue {
	return attribute.String("connector", name)
}

func signalAttr(s otlptype.SignalKind) attribute.KeyValue {
	return attribute.String("signal", s.String())
}

const meterName = "github.com/conduktor/kafka-connect-opentelemetry/metrics"

// registration bundles everything a Registry needs to later unregister a
// connector's metrics surface.
type registration struct {
	counters   *Counters
	promCol    prometheus.Collector
	promReg    *prometheus.Registry
	otelRegs   []metric.Registration
}

// Registry is the operational-namespace keyed by logical connector name,
// described in §4.C: registering under a name that is already registered
// supersedes the prior registration rather than erroring. A failed
// registration is logged and otherwise swallowed — metrics are a secondary
// concern and must never block ingress startup.
type Registry struct {
	mu    sync.Mutex
	byKey map[string]registration
	log   *slog.Logger

	promReg *prometheus.Registry
}

// NewRegistry returns a Registry that publishes into promReg (the process's
// Prometheus registry, typically prometheus.NewRegistry() wired to an HTTP
// /metrics handler) and logs degraded-registration causes with log.
func NewRegistry(promReg *prometheus.Registry, log *slog.Logger) *Registry {
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		byKey:   make(map[string]registration),
		log:     log,
		promReg: promReg,
	}
}

// Register installs a fresh Counters under connectorName, wiring both the
// Prometheus exposition and the OTel async instruments. Registration errors
// are logged, not returned: the caller must proceed regardless.
func (r *Registry) Register(ctx context.Context, connectorName string) *Counters {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byKey[connectorName]; ok {
		r.unregisterLocked(connectorName, prev)
	}

	counters := New()
	reg := registration{counters: counters}

	promCol := NewPrometheusCollector(connectorName, counters)
	if err := r.promReg.Register(promCol); err != nil {
		r.log.Warn("failed to register prometheus collector for connector; continuing without it",
			slog.String("connector", connectorName), slog.Any("error", err))
	} else {
		reg.promCol = promCol
		reg.promReg = r.promReg
	}

	otelRegs, err := registerOTelInstruments(connectorName, counters)
	if err != nil {
		r.log.Warn("failed to register otel instruments for connector; continuing without them",
			slog.String("connector", connectorName), slog.Any("error", err))
	} else {
		reg.otelRegs = otelRegs
	}

	r.byKey[connectorName] = reg
	return counters
}

// Unregister removes connectorName's metrics surface, if any.
func (r *Registry) Unregister(connectorName string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byKey[connectorName]
	if !ok {
		return
	}
	r.unregisterLocked(connectorName, reg)
	delete(r.byKey, connectorName)
}

func (r *Registry) unregisterLocked(connectorName string, reg registration) {
	if reg.promCol != nil && reg.promReg != nil {
		reg.promReg.Unregister(reg.promCol)
	}
	for _, unreg := range reg.otelRegs {
		if err := unreg.Unregister(); err != nil {
			r.log.Warn("failed to unregister otel instrument",
				slog.String("connector", connectorName), slog.Any("error", err))
		}
	}
}

// registerOTelInstruments creates the async OTel mirrors of Counters so the
// same numbers flow through the self-observability OTLP exporter, not just
// the Prometheus scrape surface.
func registerOTelInstruments(connectorName string, c *Counters) ([]metric.Registration, error) {
	meter := otel.GetMeterProvider().Meter(meterName)

	received, err := meter.Int64ObservableCounter(
		"otlp_ingress.received",
		metric.WithDescription("Messages accepted per signal."),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: received instrument: %w", err)
	}

	dropped, err := meter.Int64ObservableCounter(
		"otlp_ingress.dropped",
		metric.WithDescription("Messages dropped on a full queue, per signal."),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: dropped instrument: %w", err)
	}

	recordsProduced, err := meter.Int64ObservableCounter(
		"otlp_ingress.records_produced",
		metric.WithDescription("Records handed to the caller's sink."),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: records_produced instrument: %w", err)
	}

	queueSize, err := meter.Int64ObservableGauge(
		"otlp_ingress.queue_size",
		metric.WithDescription("Last-observed queue size, per signal."),
		metric.WithUnit("{message}"),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics: queue_size instrument: %w", err)
	}

	cb := func(_ context.Context, o metric.Observer) error {
		for _, s := range signalsForObserve {
			attrs := metric.WithAttributes(connectorAttr(connectorName), signalAttr(s))
			o.ObserveInt64(received, c.Received(s), attrs)
			o.ObserveInt64(dropped, c.Dropped(s), attrs)
			o.ObserveInt64(queueSize, c.QueueSize(s), attrs)
		}
		o.ObserveInt64(recordsProduced, c.RecordsProduced(), metric.WithAttributes(connectorAttr(connectorName)))
		return nil
	}

	reg, err := meter.RegisterCallback(cb, received, dropped, recordsProduced, queueSize)
	if err != nil {
		return nil, fmt.Errorf("metrics: register callback: %w", err)
	}
	return []metric.Registration{reg}, nil
}
