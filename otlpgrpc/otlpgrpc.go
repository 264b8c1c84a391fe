// Package otlpgrpc implements the gRPC OTLP receiver (§4.D): the three
// collector services, wrapped with otelgrpc instrumentation and a standard
// health service, delegating every accepted request to a dispatch.Sink.
package otlpgrpc

import (
	"context"
	"log/slog"
	"net"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	coltracepb "go.opentelemetry.io/proto/otlp/collector/trace/v1"
	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"

	"github.com/conduktor/kafka-connect-opentelemetry/dispatch"
	"github.com/conduktor/kafka-connect-opentelemetry/health"
	"github.com/conduktor/kafka-connect-opentelemetry/internal/grpchealth"
	"github.com/conduktor/kafka-connect-opentelemetry/internal/grpcserver"
	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"
)

// Api is the gRPC surface for the three OTLP collector services.
type Api struct {
	coltracepb.UnimplementedTraceServiceServer
	colmetricspb.UnimplementedMetricsServiceServer
	collogspb.UnimplementedLogsServiceServer

	sink *dispatch.Sink
	log  *slog.Logger
}

// NewApi builds an Api dispatching accepted requests into sink.
func NewApi(sink *dispatch.Sink, log *slog.Logger) *Api {
	if log == nil {
		log = slog.Default()
	}
	return &Api{sink: sink, log: log}
}

// Export implements the TraceService.
func (a *Api) Export(ctx context.Context, req *coltracepb.ExportTraceServiceRequest) (*coltracepb.ExportTraceServiceResponse, error) {
	accepted, err := a.sink.Dispatch(otlptype.Traces, req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !accepted {
		return nil, status.Error(codes.ResourceExhausted, "trace queue is saturated")
	}
	return &coltracepb.ExportTraceServiceResponse{}, nil
}

// ExportMetrics implements the MetricsService.
func (a *Api) ExportMetrics(ctx context.Context, req *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	accepted, err := a.sink.Dispatch(otlptype.Metrics, req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !accepted {
		return nil, status.Error(codes.ResourceExhausted, "metric queue is saturated")
	}
	return &colmetricspb.ExportMetricsServiceResponse{}, nil
}

// ExportLogs implements the LogsService.
func (a *Api) ExportLogs(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (*collogspb.ExportLogsServiceResponse, error) {
	accepted, err := a.sink.Dispatch(otlptype.Logs, req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !accepted {
		return nil, status.Error(codes.ResourceExhausted, "log queue is saturated")
	}
	return &collogspb.ExportLogsServiceResponse{}, nil
}

var (
	_ coltracepb.TraceServiceServer   = (*Api)(nil)
	_ colmetricspb.MetricsServiceServer = (*Api)(nil)
	_ collogspb.LogsServiceServer     = (*Api)(nil)
)

// NewServer builds the underlying *grpc.Server with otelgrpc stats handlers,
// registers api and a grpchealth.Server backed by mon, and returns the server
// wrapped in a grpcserver.App bound to ls, together with that health server.
func NewServer(ls net.Listener, api *Api, mon health.Monitor) (*grpcserver.App, *grpchealth.Server) {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
	)

	coltracepb.RegisterTraceServiceServer(s, api)
	colmetricspb.RegisterMetricsServiceServer(s, api)
	collogspb.RegisterLogsServiceServer(s, api)

	healthSrv := grpchealth.NewServer(api.log)
	healthSrv.MonitorService("", mon)
	grpc_health_v1.RegisterHealthServer(s, healthSrv)

	return grpcserver.NewApp(ls, s), healthSrv
}
