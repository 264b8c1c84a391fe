package ingress

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduktor/kafka-connect-opentelemetry/dispatch"
	"github.com/conduktor/kafka-connect-opentelemetry/metrics"
	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"
	"github.com/conduktor/kafka-connect-opentelemetry/queue"
)

func newTestQueues(capacity int) dispatch.Queues {
	var qs dispatch.Queues
	for i := range qs {
		qs[i] = queue.New[otlptype.Message](capacity)
	}
	return qs
}

func noResume(PartitionKey) (PersistedOffset, bool) { return PersistedOffset{}, false }

func TestDriver_Poll_AssignsMonotonicSequence(t *testing.T) {
	qs := newTestQueues(10)
	d := New("conn", [3]string{"otlp-traces", "otlp-metrics", "otlp-logs"}, qs, metrics.New(), nil)

	require.NoError(t, d.Start(noResume))

	qs[otlptype.Traces].Offer(otlptype.Message{Signal: otlptype.Traces, Payload: "one"})
	qs[otlptype.Traces].Offer(otlptype.Message{Signal: otlptype.Traces, Payload: "two"})

	records, ok := d.Poll(context.Background())
	require.True(t, ok)
	require.Len(t, records, 2)
	assert.Equal(t, int64(1), records[0].OffsetKey.Sequence)
	assert.Equal(t, int64(2), records[1].OffsetKey.Sequence)
	assert.Equal(t, "otlp-traces", records[0].Topic)
}

func TestDriver_Poll_NoneWhenEmpty(t *testing.T) {
	qs := newTestQueues(10)
	d := New("conn", [3]string{"t", "m", "l"}, qs, metrics.New(), nil)
	require.NoError(t, d.Start(noResume))

	records, ok := d.Poll(context.Background())
	assert.False(t, ok)
	assert.Nil(t, records)
}

func TestDriver_Poll_NoneWhileStopping(t *testing.T) {
	qs := newTestQueues(10)
	d := New("conn", [3]string{"t", "m", "l"}, qs, metrics.New(), nil)
	require.NoError(t, d.Start(noResume))
	require.NoError(t, d.Stop(context.Background()))

	qs[otlptype.Traces].Offer(otlptype.Message{Signal: otlptype.Traces, Payload: "x"})
	records, ok := d.Poll(context.Background())
	assert.False(t, ok)
	assert.Nil(t, records)
}

func TestDriver_Commit_DetectsGap(t *testing.T) {
	qs := newTestQueues(10)
	d := New("conn", [3]string{"t", "m", "l"}, qs, metrics.New(), nil)
	require.NoError(t, d.Start(noResume))

	d.Commit(context.Background(), Record{OffsetKey: OffsetKey{SignalName: otlptype.Traces.String(), Sequence: 1}})
	assert.Equal(t, int64(1), d.committed[otlptype.Traces].Load())

	// Jumping from 1 to 5 is a gap; committed must still advance.
	d.Commit(context.Background(), Record{OffsetKey: OffsetKey{SignalName: otlptype.Traces.String(), Sequence: 5}})
	assert.Equal(t, int64(5), d.committed[otlptype.Traces].Load())
}

func TestDriver_ResumeFromPersistedOffset(t *testing.T) {
	qs := newTestQueues(10)
	d := New("conn", [3]string{"t", "m", "l"}, qs, metrics.New(), nil)

	reader := func(pk PartitionKey) (PersistedOffset, bool) {
		if pk.SignalName == otlptype.Traces.String() {
			return PersistedOffset{SessionId: "session-0", SignalName: pk.SignalName, Sequence: 42}, true
		}
		return PersistedOffset{}, false
	}
	require.NoError(t, d.Start(reader))

	qs[otlptype.Traces].Offer(otlptype.Message{Signal: otlptype.Traces, Payload: "resumed"})
	records, ok := d.Poll(context.Background())
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, int64(43), records[0].OffsetKey.Sequence)
	assert.NotEqual(t, "session-0", records[0].OffsetKey.SessionId)
}

func TestDriver_Stop_DrainsQueues(t *testing.T) {
	qs := newTestQueues(10)
	d := New("conn", [3]string{"t", "m", "l"}, qs, metrics.New(), nil)
	require.NoError(t, d.Start(noResume))

	for _, q := range qs {
		q.Offer(otlptype.Message{Payload: "buffered"})
	}

	require.NoError(t, d.Stop(context.Background()))

	for _, q := range qs {
		assert.Equal(t, 0, q.Size())
	}

	records, ok := d.Poll(context.Background())
	assert.False(t, ok)
	assert.Nil(t, records)
}
