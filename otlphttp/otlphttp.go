// Package otlphttp implements the HTTP OTLP receiver (§4.E): a chi router
// exposing /v1/{traces,metrics,logs}, plus /healthz, /readyz and /metrics,
// delegating every accepted request to a dispatch.Sink.
package otlphttp

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/protobuf/proto"

	colLogsPb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	colMetricsPb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	colTracePb "go.opentelemetry.io/proto/otlp/collector/trace/v1"

	"github.com/conduktor/kafka-connect-opentelemetry/codec"
	"github.com/conduktor/kafka-connect-opentelemetry/dispatch"
	"github.com/conduktor/kafka-connect-opentelemetry/health"
	"github.com/conduktor/kafka-connect-opentelemetry/internal/httpserver"
	"github.com/conduktor/kafka-connect-opentelemetry/otlptype"

	"github.com/prometheus/client_golang/prometheus"
)

// Api is the HTTP surface for the three OTLP signal endpoints plus the
// readiness, liveness and self-telemetry endpoints.
type Api struct {
	sink         *dispatch.Sink
	log          *slog.Logger
	maxBody      int64
	readiness    health.Monitor
	liveness     health.Monitor
	promGatherer prometheus.Gatherer
}

// NewApi builds an Api dispatching accepted requests into sink. maxBody
// bounds the size of a single request body; readiness and liveness back the
// /readyz and /healthz endpoints.
func NewApi(sink *dispatch.Sink, log *slog.Logger, maxBody int64, readiness, liveness health.Monitor, promGatherer prometheus.Gatherer) *Api {
	if log == nil {
		log = slog.Default()
	}
	return &Api{
		sink:         sink,
		log:          log,
		maxBody:      maxBody,
		readiness:    readiness,
		liveness:     liveness,
		promGatherer: promGatherer,
	}
}

// Router builds the chi router serving the OTLP endpoints wrapped in
// otelhttp instrumentation. Unknown paths and disallowed methods get the
// exact JSON error bodies §4.E specifies, not chi's default plain-text
// responses.
func (a *Api) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(a.recoverer)
	r.NotFound(a.handleNotFound)
	r.MethodNotAllowed(a.handleMethodNotAllowed)

	r.Post("/v1/traces", a.handleSignal(otlptype.Traces, func() proto.Message { return &colTracePb.ExportTraceServiceRequest{} }))
	r.Post("/v1/metrics", a.handleSignal(otlptype.Metrics, func() proto.Message { return &colMetricsPb.ExportMetricsServiceRequest{} }))
	r.Post("/v1/logs", a.handleSignal(otlptype.Logs, func() proto.Message { return &colLogsPb.ExportLogsServiceRequest{} }))

	r.Get("/healthz", a.handleMonitor(a.liveness))
	r.Get("/readyz", a.handleMonitor(a.readiness))

	if a.promGatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.promGatherer, promhttp.HandlerOpts{}))
	}

	return otelhttp.NewHandler(r, "otlphttp")
}

func (a *Api) handleSignal(signal otlptype.SignalKind, newReq func() proto.Message) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body := http.MaxBytesReader(w, r.Body, a.maxBody)
		data, err := io.ReadAll(body)
		if err != nil {
			// The aggregator-equivalent (MaxBytesReader) rejected an
			// oversized body; §6 only documents 400/404/405/500/503 for
			// this surface, so an over-limit body maps to 400.
			a.writeError(w, r, signal, http.StatusBadRequest, "request body exceeds limit")
			return
		}

		req := newReq()
		if isJSONContentType(r.Header.Get("Content-Type")) {
			err = codec.DecodeJSON(data, req)
		} else {
			err = codec.DecodeWire(data, req)
		}
		if err != nil {
			a.writeError(w, r, signal, http.StatusBadRequest, "malformed request body")
			return
		}

		accepted, err := a.sink.Dispatch(signal, req)
		if err != nil {
			a.writeError(w, r, signal, http.StatusBadRequest, err.Error())
			return
		}
		if !accepted {
			a.writeError(w, r, signal, http.StatusServiceUnavailable, "Queue full")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	}
}

// handleNotFound matches §4.E step 2's literal 404 body for unrecognised
// path prefixes.
func (a *Api) handleNotFound(w http.ResponseWriter, r *http.Request) {
	a.writeErrorBody(w, http.StatusNotFound, fmt.Sprintf("Unknown endpoint: %s", r.RequestURI))
}

// handleMethodNotAllowed matches §4.E step 1: a recognised path hit with a
// non-POST method is 405, not 404.
func (a *Api) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	a.writeErrorBody(w, http.StatusMethodNotAllowed, fmt.Sprintf("Method not allowed: %s", r.Method))
}

func (a *Api) writeError(w http.ResponseWriter, r *http.Request, signal otlptype.SignalKind, code int, msg string) {
	a.log.WarnContext(r.Context(), "rejecting otlp request",
		slog.String("signal", signal.String()),
		slog.Int("status", code),
		slog.String("reason", msg),
	)
	a.writeErrorBody(w, code, msg)
}

func (a *Api) writeErrorBody(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// recoverer maps an unexpected panic in a handler to the TransientInternal
// kind (§7): 500 with the same JSON error body as every other failure path,
// and the connection is closed rather than kept alive, so a corrupted
// handler state never leaks into the next request on that connection.
func (a *Api) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil && rvr != http.ErrAbortHandler {
				a.log.ErrorContext(r.Context(), "panic in otlp http handler", slog.Any("panic", rvr))
				w.Header().Set("Connection", "close")
				a.writeErrorBody(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (a *Api) handleMonitor(m health.Monitor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m == nil {
			w.WriteHeader(http.StatusOK)
			return
		}
		healthy, err := m.Healthy(r.Context())
		if err != nil || !healthy {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// isJSONContentType implements §4.E step 4 literally: the body is parsed as
// JSON only when the Content-Type header contains the substring "json".
// Everything else, including application/x-protobuf, any other value, and
// a missing header, falls back to protobuf.
func isJSONContentType(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "json")
}

// NewServer wraps api's router in a net listener and an httpserver.App for
// lifecycle management.
func NewServer(ls net.Listener, api *Api, errLog slog.Handler) *httpserver.App {
	opts := []httpserver.AppOption{}
	if errLog != nil {
		opts = append(opts, httpserver.ErrorLog(errLog))
	}
	return httpserver.NewApp(ls, api.Router(), opts...)
}
