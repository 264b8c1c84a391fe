package metrics

import (
	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"
	"github.com/prometheus/client_golang/prometheus"
)

// promCollector exposes Counters as a prometheus.Collector. Every derived
// value (§4.C of the specification) is computed inside Collect so a scrape
// always reflects current state rather than a stale background snapshot.
type promCollector struct {
	name string
	c    *Counters

	received             *prometheus.Desc
	dropped              *prometheus.Desc
	queueSize            *prometheus.Desc
	queueCapacity        *prometheus.Desc
	recordsProduced      *prometheus.Desc
	totalReceived        *prometheus.Desc
	totalDropped         *prometheus.Desc
	maxQueueUtilization  *prometheus.Desc
	totalLag             *prometheus.Desc
	dropRate             *prometheus.Desc
}

// NewPrometheusCollector wraps c as a prometheus.Collector labelled with the
// ingress's logical connector name.
func NewPrometheusCollector(connectorName string, c *Counters) prometheus.Collector {
	constLabels := prometheus.Labels{"connector": connectorName}
	return &promCollector{
		name: connectorName,
		c:    c,
		received: prometheus.NewDesc(
			"otlp_ingress_received_total", "Messages accepted per signal.",
			[]string{"signal"}, constLabels,
		),
		dropped: prometheus.NewDesc(
			"otlp_ingress_dropped_total", "Messages dropped on a full queue, per signal.",
			[]string{"signal"}, constLabels,
		),
		queueSize: prometheus.NewDesc(
			"otlp_ingress_queue_size", "Last-observed queue size, per signal.",
			[]string{"signal"}, constLabels,
		),
		queueCapacity: prometheus.NewDesc(
			"otlp_ingress_queue_capacity", "Configured per-signal queue capacity.",
			nil, constLabels,
		),
		recordsProduced: prometheus.NewDesc(
			"otlp_ingress_records_produced_total", "Records handed to the caller's sink.",
			nil, constLabels,
		),
		totalReceived: prometheus.NewDesc(
			"otlp_ingress_total_received", "Sum of received across all signals.",
			nil, constLabels,
		),
		totalDropped: prometheus.NewDesc(
			"otlp_ingress_total_dropped", "Sum of dropped across all signals.",
			nil, constLabels,
		),
		maxQueueUtilization: prometheus.NewDesc(
			"otlp_ingress_max_queue_utilization_percent", "Max over the three queues of 100*size/capacity.",
			nil, constLabels,
		),
		totalLag: prometheus.NewDesc(
			"otlp_ingress_total_lag", "total_received - records_produced.",
			nil, constLabels,
		),
		dropRate: prometheus.NewDesc(
			"otlp_ingress_drop_rate_percent", "100*total_dropped/total_received.",
			nil, constLabels,
		),
	}
}

func (p *promCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- p.received
	ch <- p.dropped
	ch <- p.queueSize
	ch <- p.queueCapacity
	ch <- p.recordsProduced
	ch <- p.totalReceived
	ch <- p.totalDropped
	ch <- p.maxQueueUtilization
	ch <- p.totalLag
	ch <- p.dropRate
}

func (p *promCollector) Collect(ch chan<- prometheus.Metric) {
	for _, s := range otlptype.Signals {
		ch <- prometheus.MustNewConstMetric(p.received, prometheus.CounterValue, float64(p.c.Received(s)), s.String())
		ch <- prometheus.MustNewConstMetric(p.dropped, prometheus.CounterValue, float64(p.c.Dropped(s)), s.String())
		ch <- prometheus.MustNewConstMetric(p.queueSize, prometheus.GaugeValue, float64(p.c.QueueSize(s)), s.String())
	}
	ch <- prometheus.MustNewConstMetric(p.queueCapacity, prometheus.GaugeValue, float64(p.c.QueueCapacity()))
	ch <- prometheus.MustNewConstMetric(p.recordsProduced, prometheus.CounterValue, float64(p.c.RecordsProduced()))
	ch <- prometheus.MustNewConstMetric(p.totalReceived, prometheus.GaugeValue, float64(p.c.TotalReceived()))
	ch <- prometheus.MustNewConstMetric(p.totalDropped, prometheus.GaugeValue, float64(p.c.TotalDropped()))
	ch <- prometheus.MustNewConstMetric(p.maxQueueUtilization, prometheus.GaugeValue, p.c.MaxQueueUtilizationPercent())
	ch <- prometheus.MustNewConstMetric(p.totalLag, prometheus.GaugeValue, float64(p.c.TotalLag()))
	ch <- prometheus.MustNewConstMetric(p.dropRate, prometheus.GaugeValue, p.c.DropRate())
}
