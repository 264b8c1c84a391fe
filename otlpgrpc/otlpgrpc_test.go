package otlpgrpc

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/conduktor/kafka-connect-opentelemetry/codec"
	"github.com/conduktor/kafka-connect-opentelemetry/dispatch"
	"github.com/conduktor/kafka-connect-opentelemetry/metrics"
	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"
	"github.com/conduktor/kafka-connect-opentelemetry/queue"
)

func newTestSink(t *testing.T, capacity int) *dispatch.Sink {
	t.Helper()
	var qs dispatch.Queues
	for i := range qs {
		qs[i] = queue.New[otlptype.Message](capacity)
	}
	return dispatch.NewSink(qs, codec.New(codec.JSON), metrics.New(), slog.Default())
}

func TestApi_Export_Accepted(t *testing.T) {
	sink := newTestSink(t, 4)
	api := NewApi(sink, nil)

	resp, err := api.Export(context.Background(), &coltracepb.ExportTraceServiceRequest{
		ResourceSpans: []*tracepb.ResourceSpans{{}},
	})
	require.NoError(t, err)
	assert.NotNil(t, resp)

	msg, ok := sink.Queue(otlptype.Traces).Poll(context.Background(), 0)
	require.True(t, ok)
	assert.Equal(t, otlptype.Traces, msg.Signal)
}

func TestApi_Export_QueueSaturated(t *testing.T) {
	sink := newTestSink(t, 0)
	api := NewApi(sink, nil)

	_, err := api.Export(context.Background(), &coltracepb.ExportTraceServiceRequest{})
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
}
