// Package dispatch implements the encode-and-offer step shared by the gRPC
// and HTTP receivers: apply the codec to an already-decoded OTLP request,
// build an otlptype.Message, and offer it to the queue for its signal.
// Decoding the request is left to each receiver.
package dispatch

import (
	"log/slog"
	"time"

	"google.golang.org/protobuf/proto"

	"github.com/conduktor/kafka-connect-opentelemetry/codec"
	"github.com/conduktor/kafka-connect-opentelemetry/metrics"
	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"
	"github.com/conduktor/kafka-connect-opentelemetry/queue"
)

// Queues holds the three per-signal queues a Sink offers into, indexed by
// otlptype.SignalKind.
type Queues [len(otlptype.Signals)]*queue.Queue[otlptype.Message]

// Sink is the shared receiver-side half of the pipeline: codec + queue
// offer + counters, so both receivers apply identical accounting.
type Sink struct {
	queues   Queues
	codec    codec.Codec
	counters *metrics.Counters
	log      *slog.Logger
}

// NewSink builds a Sink over queues, encoding with codec and accounting into
// counters.
func NewSink(queues Queues, c codec.Codec, counters *metrics.Counters, log *slog.Logger) *Sink {
	if log == nil {
		log = slog.Default()
	}
	return &Sink{queues: queues, codec: c, counters: counters, log: log}
}

// Queue returns the queue backing signal s, for use by the driver's poll
// loop.
func (s *Sink) Queue(signal otlptype.SignalKind) *queue.Queue[otlptype.Message] {
	return s.queues[signal]
}

// Dispatch encodes req with the Sink's codec and offers the result to the
// queue for signal. It returns accepted=true when the message was enqueued.
// A non-nil error is only ever an *codec.EncodingError — the caller maps that
// to its transport's decode-failure response.
func (s *Sink) Dispatch(signal otlptype.SignalKind, req proto.Message) (accepted bool, err error) {
	text, err := s.codec.Encode(req)
	if err != nil {
		return false, err
	}

	msg := otlptype.Message{
		Signal:     signal,
		Payload:    text,
		IngestTime: time.Now().UnixMilli(),
	}

	q := s.queues[signal]
	if !q.Offer(msg) {
		s.counters.IncrementDropped(signal)
		s.counters.UpdateQueueSize(signal, int64(q.Size()))
		s.log.Warn("queue full, dropping message",
			slog.String("signal", signal.String()),
			slog.Int("queue_size", q.Size()),
			slog.Int("queue_capacity", q.Capacity()),
		)
		return false, nil
	}

	s.counters.IncrementReceived(signal)
	s.counters.UpdateQueueSize(signal, int64(q.Size()))
	return true, nil
}
