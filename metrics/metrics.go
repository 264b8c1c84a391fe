// Package metrics implements the ingress's operational metrics surface:
// per-signal monotonic counters, gauges, and the values derived from them on
// read. Every increment is a wait-free atomic operation; no counter is ever
// guarded by a mutex, since contention on the receiver hot path is extreme.
package metrics

import (
	"sync/atomic"

	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"
)

// Counters holds the raw, wait-free atomic state for one ingress instance.
// The zero value is ready to use.
type Counters struct {
	received [len(otlptype.Signals)]atomic.Int64
	dropped  [len(otlptype.Signals)]atomic.Int64
	queueLen [len(otlptype.Signals)]atomic.Int64

	recordsProduced atomic.Int64
	queueCapacity   atomic.Int64
}

// New returns a ready-to-use, zeroed Counters.
func New() *Counters {
	return &Counters{}
}

// IncrementReceived records one accepted message for signal s.
func (c *Counters) IncrementReceived(s otlptype.SignalKind) {
	c.received[s].Add(1)
}

// IncrementDropped records one dropped-on-offer message for signal s.
func (c *Counters) IncrementDropped(s otlptype.SignalKind) {
	c.dropped[s].Add(1)
}

// IncrementRecordsProduced records k records successfully handed to the
// caller's sink in a single poll batch.
func (c *Counters) IncrementRecordsProduced(k int64) {
	c.recordsProduced.Add(k)
}

// UpdateQueueSize sets the last-observed size gauge for signal s.
func (c *Counters) UpdateQueueSize(s otlptype.SignalKind, n int64) {
	c.queueLen[s].Store(n)
}

// SetQueueCapacity sets the shared capacity gauge, common to all three
// queues.
func (c *Counters) SetQueueCapacity(n int64) {
	c.queueCapacity.Store(n)
}

// Received returns the current received count for signal s.
func (c *Counters) Received(s otlptype.SignalKind) int64 { return c.received[s].Load() }

// Dropped returns the current dropped count for signal s.
func (c *Counters) Dropped(s otlptype.SignalKind) int64 { return c.dropped[s].Load() }

// QueueSize returns the last-observed queue size gauge for signal s.
func (c *Counters) QueueSize(s otlptype.SignalKind) int64 { return c.queueLen[s].Load() }

// QueueCapacity returns the shared capacity gauge.
func (c *Counters) QueueCapacity() int64 { return c.queueCapacity.Load() }

// RecordsProduced returns the cumulative count of records handed to the
// caller's sink.
func (c *Counters) RecordsProduced() int64 { return c.recordsProduced.Load() }

// TotalReceived sums Received across all signals.
func (c *Counters) TotalReceived() int64 {
	var total int64
	for _, s := range otlptype.Signals {
		total += c.Received(s)
	}
	return total
}

// TotalDropped sums Dropped across all signals.
func (c *Counters) TotalDropped() int64 {
	var total int64
	for _, s := range otlptype.Signals {
		total += c.Dropped(s)
	}
	return total
}

// MaxQueueUtilizationPercent returns the maximum, over the three queues, of
// 100*size/capacity. It is 0 when capacity is 0, to avoid division by zero.
func (c *Counters) MaxQueueUtilizationPercent() float64 {
	cap := c.QueueCapacity()
	if cap == 0 {
		return 0
	}
	var max float64
	for _, s := range otlptype.Signals {
		u := 100 * float64(c.QueueSize(s)) / float64(cap)
		if u > max {
			max = u
		}
	}
	return max
}

// TotalLag returns TotalReceived - RecordsProduced: the number of messages
// accepted but not yet handed to the caller's sink.
func (c *Counters) TotalLag() int64 {
	return c.TotalReceived() - c.RecordsProduced()
}

// DropRate returns 100*TotalDropped/TotalReceived, or 0 when no messages have
// been received yet.
func (c *Counters) DropRate() float64 {
	total := c.TotalReceived()
	if total == 0 {
		return 0
	}
	return 100 * float64(c.TotalDropped()) / float64(total)
}

// ResetCounters clears every monotonic counter but preserves gauges
// (queue size/capacity), matching the source's "counters reset, gauges
// survive" reset semantics.
func (c *Counters) ResetCounters() {
	for i := range otlptype.Signals {
		c.received[i].Store(0)
		c.dropped[i].Store(0)
	}
	c.recordsProduced.Store(0)
}
