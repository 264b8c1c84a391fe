// Package ingress implements the source driver (§4.F): the poll/commit
// contract an external scheduling framework drives, batching queued
// otlptype.Messages into records stamped with a partition/offset pair, and
// tracking per-signal sequence and commit state across restarts.
package ingress

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/conduktor/kafka-connect-opentelemetry/dispatch"
	"github.com/conduktor/kafka-connect-opentelemetry/metrics"
	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"
)

// PartitionKey identifies one destination stream for offset bookkeeping.
type PartitionKey struct {
	ConnectorName string
	SignalName    string
}

// OffsetKey identifies one record's position within its partition's offset
// stream.
type OffsetKey struct {
	SessionId  string
	SignalName string
	Sequence   int64
}

// Record is what Poll hands the caller's framework: the driver never writes
// it anywhere itself.
type Record struct {
	PartitionKey PartitionKey
	OffsetKey    OffsetKey
	Topic        string
	Value        string
	ValueType    string
	Timestamp    int64
}

// PersistedOffset is what an OffsetReader returns for a partition that has
// committed state from a previous run.
type PersistedOffset struct {
	SessionId  string
	SignalName string
	Sequence   int64
}

// OffsetReader consults the external offset store at Start. Returning
// ok=false means "start from zero" — the same as returning a zero-value
// PersistedOffset, per the source's documented "absent and empty are
// identical" behaviour.
type OffsetReader func(PartitionKey) (PersistedOffset, bool)

// Receiver is anything Start can run for the lifetime of the driver — the
// gRPC and HTTP receiver Apps satisfy this.
type Receiver interface {
	Run(context.Context) error
}

const (
	pollTimeout      = 100 * time.Millisecond
	drainBatchExtra  = 99
	stopDrainBound   = 5 * time.Second
	stopDrainPoll    = 100 * time.Millisecond
	metricsLogPeriod = 30 * time.Second
)

// Driver owns the per-signal sequence/committed counters, the session
// identity, and the queues written to by the receivers. It implements the
// start/poll/commit/stop contract described in §4.F as ordinary methods; it
// is not a generic consumer abstraction because it is driven externally
// (the caller invokes Poll/Commit on its own schedule), not self-looping.
type Driver struct {
	connectorName string
	topics        [len(otlptype.Signals)]string
	queues        dispatch.Queues
	counters      *metrics.Counters
	log           *slog.Logger

	sessionID string
	next      [len(otlptype.Signals)]atomic.Int64
	committed [len(otlptype.Signals)]atomic.Int64

	stopping       atomic.Bool
	lastMetricsLog atomic.Int64

	cancel context.CancelFunc
	eg     *errgroup.Group
}

// New builds a Driver over queues, stamping records for the named connector
// with the given per-signal topic names.
func New(connectorName string, topics [len(otlptype.Signals)]string, queues dispatch.Queues, counters *metrics.Counters, log *slog.Logger) *Driver {
	if log == nil {
		log = slog.Default()
	}
	return &Driver{
		connectorName: connectorName,
		topics:        topics,
		queues:        queues,
		counters:      counters,
		log:           log,
	}
}

// SessionID returns the session identifier generated by the most recent
// Start call.
func (d *Driver) SessionID() string {
	return d.sessionID
}

// Start records a fresh session id, resumes per-signal sequence/committed
// state from reader, and begins running receivers for the lifetime of the
// driver. Receivers are expected to already be bound to their listeners;
// bind failures are the caller's responsibility to surface before calling
// Start.
func (d *Driver) Start(reader OffsetReader, receivers ...Receiver) error {
	d.sessionID = uuid.NewString()
	d.stopping.Store(false)

	for i, s := range otlptype.Signals {
		pk := PartitionKey{ConnectorName: d.connectorName, SignalName: s.String()}
		persisted, ok := reader(pk)
		if !ok {
			d.next[i].Store(0)
			d.committed[i].Store(-1)
			continue
		}

		if persisted.SessionId != "" && persisted.SessionId != d.sessionID {
			d.log.Warn("resuming after restart under a new session",
				slog.String("signal", s.String()),
				slog.String("previous_session_id", persisted.SessionId),
				slog.String("session_id", d.sessionID),
				slog.Int64("sequence", persisted.Sequence),
			)
		}
		d.next[i].Store(persisted.Sequence)
		d.committed[i].Store(persisted.Sequence)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	d.cancel = cancel

	eg, egCtx := errgroup.WithContext(runCtx)
	for _, r := range receivers {
		r := r
		eg.Go(func() error { return r.Run(egCtx) })
	}
	d.eg = eg

	return nil
}

// Poll drains up to 100 messages per signal, in fixed signal order, and
// returns them as stamped records. It returns ok=false, with a nil slice,
// while the driver is stopping or when no signal produced a message within
// its 100ms wait — the caller is expected to call back after a short delay.
func (d *Driver) Poll(ctx context.Context) (records []Record, ok bool) {
	if d.stopping.Load() {
		return nil, false
	}

	for i, s := range otlptype.Signals {
		q := d.queues[i]
		first, gotOne := q.Poll(ctx, pollTimeout)
		if !gotOne {
			continue
		}

		batch := make([]otlptype.Message, 0, drainBatchExtra+1)
		batch = append(batch, first)
		batch = append(batch, q.DrainUpTo(drainBatchExtra)...)

		for _, msg := range batch {
			seq := d.next[i].Add(1)
			records = append(records, Record{
				PartitionKey: PartitionKey{ConnectorName: d.connectorName, SignalName: s.String()},
				OffsetKey:    OffsetKey{SessionId: d.sessionID, SignalName: s.String(), Sequence: seq},
				Topic:        d.topics[i],
				Value:        msg.Payload,
				ValueType:    "string",
				Timestamp:    msg.IngestTime,
			})
		}

		d.counters.UpdateQueueSize(s, int64(q.Size()))
	}

	if len(records) == 0 {
		return nil, false
	}

	d.counters.IncrementRecordsProduced(int64(len(records)))
	d.maybeLogMetrics(ctx)
	return records, true
}

func (d *Driver) maybeLogMetrics(ctx context.Context) {
	now := time.Now().UnixNano()
	last := d.lastMetricsLog.Load()
	if now-last < metricsLogPeriod.Nanoseconds() {
		return
	}
	if !d.lastMetricsLog.CompareAndSwap(last, now) {
		return
	}
	d.logMetricsLine(ctx, "periodic metrics")
}

func (d *Driver) logMetricsLine(ctx context.Context, msg string) {
	d.log.InfoContext(ctx, msg,
		slog.Int64("received_total", d.counters.TotalReceived()),
		slog.Int64("dropped_total", d.counters.TotalDropped()),
		slog.Int64("records_produced", d.counters.RecordsProduced()),
		slog.Int64("lag", d.counters.TotalLag()),
		slog.Float64("drop_rate_percent", d.counters.DropRate()),
		slog.Float64("max_queue_utilization_percent", d.counters.MaxQueueUtilizationPercent()),
	)
}

// Commit reports the record as delivered. It looks up the committed
// sequence for the record's signal, flags — but does not correct — a gap,
// and advances committed to the record's sequence. Any failure here must
// never interrupt the caller's commit stream, so Commit never returns an
// error; a malformed key is logged and ignored.
func (d *Driver) Commit(ctx context.Context, rec Record) {
	defer func() {
		if r := recover(); r != nil {
			d.log.ErrorContext(ctx, "commit callback panicked, swallowing", slog.Any("panic", r))
		}
	}()

	idx, ok := signalIndex(rec.OffsetKey.SignalName)
	if !ok {
		d.log.WarnContext(ctx, "commit for unknown signal name, ignoring", slog.String("signal", rec.OffsetKey.SignalName))
		return
	}

	newSeq := rec.OffsetKey.Sequence
	previous := d.committed[idx].Load()
	if previous > 0 && newSeq != previous+1 {
		d.log.WarnContext(ctx, "sequence gap detected at commit",
			slog.String("signal", rec.OffsetKey.SignalName),
			slog.Int64("previous_committed", previous),
			slog.Int64("new_committed", newSeq),
			slog.Int64("gap", newSeq-previous-1),
		)
	}
	d.committed[idx].Store(newSeq)
}

func signalIndex(name string) (int, bool) {
	for i, s := range otlptype.Signals {
		if s.String() == name {
			return i, true
		}
	}
	return 0, false
}

// Stop runs the bounded drain state machine: set the stopping flag so Poll
// short-circuits, cancel the receivers' run context (bounding their own
// graceful shutdown internally), drain every queue to empty for up to 5s,
// log a final metrics line, and return. Buffered-but-undelivered messages
// are discarded — the at-least-once contract rests with the caller's
// framework re-delivering from the last committed offset, not with this
// drain.
func (d *Driver) Stop(ctx context.Context) error {
	d.stopping.Store(true)

	if d.cancel != nil {
		d.cancel()
	}

	var waitErr error
	if d.eg != nil {
		waitErr = d.eg.Wait()
	}

	deadline := time.Now().Add(stopDrainBound)
	discarded := 0
	for time.Now().Before(deadline) {
		drainedAny := false
		for _, q := range d.queues {
			drained := q.DrainUpTo(q.Capacity())
			if len(drained) > 0 {
				drainedAny = true
				discarded += len(drained)
			}
		}
		if !drainedAny {
			break
		}
		time.Sleep(stopDrainPoll)
	}

	d.log.InfoContext(ctx, "drained queues on stop", slog.Int("discarded", discarded))
	d.logMetricsLine(ctx, "final metrics")

	return waitErr
}
