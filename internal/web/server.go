// Package web serves the research report tool over HTTP: an HTML form UI,
// a JSON API under /v1, a WebSocket progress stream, and observability
// endpoints.
//
// Security:
//   - API key authentication on /v1 (constant-time comparison)
//   - Per-client rate limiting via token bucket
//   - Signed flash cookies for the HTML UI
//   - TLS expected via reverse proxy (not handled here)
package web

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/mtafiti/internal/observability"
	"github.com/jkaninda/mtafiti/internal/pipeline"
	"github.com/jkaninda/mtafiti/internal/ratelimit"
	"github.com/jkaninda/mtafiti/internal/scheduler"
	"github.com/jkaninda/mtafiti/internal/storage"
	"github.com/jkaninda/okapi"
)

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Generator produces a report from a topic. Implemented by the pipeline
// engine.
type Generator interface {
	Generate(ctx context.Context, req *pipeline.Request) (*pipeline.Report, error)
}

// Config configures the HTTP server.
type Config struct {
	ListenAddr string            // e.g., ":8080"
	SecretKey  string            // Signs flash cookies for the HTML UI.
	APIKeys    map[string]string // API key to client ID mapping.
	EnableDocs bool

	// Observability
	MetricsRegistry *prometheus.Registry
	MetricsPath     string // Default: "/metrics".
	HealthChecker   *observability.HealthChecker
	Metrics         *observability.MetricsCollector
	Tracer          trace.Tracer
}

// Server is the HTTP server for the report tool.
type Server struct {
	config    Config
	generator Generator
	store     storage.Store // nil = API persistence endpoints disabled.
	limiter   *ratelimit.Limiter
	hub       *Hub // nil = WebSocket progress disabled.
	logger    *slog.Logger
	server    *http.Server
	okapi     *okapi.Okapi
	group     *okapi.Group
}

// NewServer creates the HTTP server.
func NewServer(cfg Config, generator Generator, limiter *ratelimit.Limiter, logger *slog.Logger) *Server {
	return &Server{
		config:    cfg,
		generator: generator,
		limiter:   limiter,
		logger:    logger,
		okapi:     okapi.New(),
	}
}

// WithStore attaches report and schedule persistence to the API.
func (s *Server) WithStore(store storage.Store) *Server {
	s.store = store
	return s
}

// WithProgressHub attaches the WebSocket progress stream.
func (s *Server) WithProgressHub(hub *Hub) *Server {
	s.hub = hub
	return s
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if s.config.Metrics != nil || s.config.Tracer != nil {
		s.okapi.UseMiddleware(func(next http.Handler) http.Handler {
			return observability.HTTPMetricsMiddleware(s.config.Metrics, s.config.Tracer, next)
		})
	}

	// HTML UI.
	s.okapi.HandleStd("GET", "/", s.handleIndex)
	s.okapi.HandleStd("POST", "/", s.handleGenerate)

	// Authenticated /v1 group.
	s.group = s.okapi.Group("/v1", s.authenticate)

	s.group.Post("/reports", s.handleReportCreate,
		okapi.DocSummary("Generate a research report"),
		okapi.DocTags("Reports"),
		okapi.DocRequestBody(ReportRequest{}),
		okapi.DocResponse(http.StatusCreated, ReportResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)
	s.group.Get("/reports", s.handleReportList,
		okapi.DocSummary("List recent reports"),
		okapi.DocTags("Reports"),
		okapi.DocResponse([]ReportResponse{}),
	)
	s.group.Get("/reports/{id}", s.handleReportGet,
		okapi.DocSummary("Get a report by ID"),
		okapi.DocTags("Reports"),
		okapi.DocPathParam("id", "string", "Report ID (UUID)"),
		okapi.DocResponse(ReportResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	s.group.Post("/schedules", s.handleScheduleCreate,
		okapi.DocSummary("Create a recurring report schedule"),
		okapi.DocTags("Schedules"),
		okapi.DocRequestBody(ScheduleRequest{}),
		okapi.DocResponse(http.StatusCreated, ScheduleResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
	)
	s.group.Get("/schedules", s.handleScheduleList,
		okapi.DocSummary("List all schedules"),
		okapi.DocTags("Schedules"),
		okapi.DocResponse([]ScheduleResponse{}),
	)
	s.group.Get("/schedules/{id}", s.handleScheduleGet,
		okapi.DocSummary("Get a schedule by ID"),
		okapi.DocTags("Schedules"),
		okapi.DocPathParam("id", "string", "Schedule ID (UUID)"),
		okapi.DocResponse(ScheduleResponse{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)
	s.group.Delete("/schedules/{id}", s.handleScheduleDelete,
		okapi.DocSummary("Delete a schedule"),
		okapi.DocTags("Schedules"),
		okapi.DocPathParam("id", "string", "Schedule ID (UUID)"),
		okapi.DocResponse(map[string]string{}),
		okapi.DocResponse(http.StatusNotFound, ErrorBody{}),
	)

	// WebSocket progress stream.
	if s.hub != nil {
		s.okapi.HandleStd("GET", "/ws/progress", s.hub.Handler().ServeHTTP)
	}

	// Observability endpoints (unauthenticated).
	s.okapi.Get("/healthz", s.handleLiveness)
	s.okapi.Get("/readyz", s.handleReadiness)

	if s.config.MetricsRegistry != nil {
		path := s.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		s.okapi.HandleStd("GET", path, promhttp.HandlerFor(s.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if s.config.EnableDocs {
		s.okapi.WithOpenAPIDocs(okapi.OpenAPI{
			Title:   "Mtafiti",
			Version: "v0.1.0",
		})
	}

	s.server = &http.Server{
		Addr:              s.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// No write timeout: synchronous generation runs through five LLM
		// stages, and WebSocket progress connections are long-lived.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(_ net.Listener) context.Context { return ctx },
	}

	s.logger.Info("http server starting", slog.String("addr", s.config.ListenAddr))
	return s.okapi.StartServer(s.server)
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("http server stopping")
	return s.okapi.Shutdown(s.server)
}

// authenticate validates the API key and stores the mapped client ID.
func (s *Server) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		clientID := ""
		for key, id := range s.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				clientID = id
			}
		}
		if clientID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("clientID", clientID)
		return next(c)
	}
}

// HealthResponse is the JSON response for health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

func (s *Server) handleReadiness(c *okapi.Context) error {
	if s.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := s.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// scheduleStore returns the schedule store or nil when persistence is off.
func (s *Server) scheduleStore() scheduler.ScheduleStore {
	if s.store == nil {
		return nil
	}
	return s.store.Schedules()
}

// reportStore returns the report store or nil when persistence is off.
func (s *Server) reportStore() pipeline.ReportStore {
	if s.store == nil {
		return nil
	}
	return s.store.Reports()
}
