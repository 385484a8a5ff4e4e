// Package httpapi exposes the scenario service over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/signalsfoundry/scenario-resimulator/core"
	"github.com/signalsfoundry/scenario-resimulator/internal/logging"
	"github.com/signalsfoundry/scenario-resimulator/internal/observability"
	"github.com/signalsfoundry/scenario-resimulator/model"
)

// DefaultMaxUploadBytes caps multipart uploads when no limit is configured.
const DefaultMaxUploadBytes int64 = 32 << 20

// Service is the subset of *core.ScenarioService the handlers call.
type Service interface {
	Simulate(ctx context.Context, req core.SimulateRequest) (*model.ResultTable, error)
	Resimulate(ctx context.Context, req core.ResimulateRequest) (*model.ResultTable, error)
}

// Server routes HTTP requests to a Service.
type Server struct {
	svc            Service
	log            logging.Logger
	metrics        *observability.HTTPCollector
	maxUploadBytes int64
	corsOrigin     string
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the base logger. Each request gets a child logger carrying
// its request_id.
func WithLogger(l logging.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics records per-route request counts and latencies.
func WithMetrics(c *observability.HTTPCollector) Option {
	return func(s *Server) { s.metrics = c }
}

// WithMaxUploadBytes limits the /simulate request body.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// WithCORSOrigin sets Access-Control-Allow-Origin. "" disables CORS.
func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

// NewServer returns a Server for svc. CORS is open to any origin by default.
func NewServer(svc Service, opts ...Option) *Server {
	s := &Server{
		svc:            svc,
		log:            logging.Noop(),
		maxUploadBytes: DefaultMaxUploadBytes,
		corsOrigin:     "*",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the routed handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.route(mux, "POST /simulate", "/simulate", s.handleSimulate)
	s.route(mux, "POST /resimulate", "/resimulate", s.handleResimulate)
	s.route(mux, "GET /healthz", "/healthz", handleHealthz)

	var h http.Handler = mux
	h = withRecovery(h)
	h = withRequestLogger(s.log, h)
	h = withCORS(s.corsOrigin, h)
	return h
}

func (s *Server) route(mux *http.ServeMux, pattern, route string, fn http.HandlerFunc) {
	var h http.Handler = fn
	h = withTracing(route, h)
	if s.metrics != nil {
		h = s.metrics.Middleware(route, h)
	}
	mux.Handle(pattern, h)
}

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// writeTable sends the record array for table.
func writeTable(w http.ResponseWriter, r *http.Request, table *model.ResultTable) {
	body, err := json.Marshal(table)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		logging.FromContext(r.Context(), nil).Warn(r.Context(), "write response failed", logging.Err(err))
	}
}

// writeError sends err as a JSON error payload with the mapped status.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	body := bodyFor(err)

	log := logging.FromContext(r.Context(), nil)
	fields := []logging.Field{
		logging.Int("status", status),
		logging.String("code", body.Code),
		logging.Err(err),
	}
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed", fields...)
	} else {
		log.Info(r.Context(), "request rejected", fields...)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
