// Package httpapi implements the HTTP API gateway for Spike.
//
// Security:
//   - API key authentication on every /v1 request (constant-time comparison)
//   - Request body size limits (default 1 MB)
//   - Per-user rate limiting via token bucket
//   - All requests logged with correlation IDs
//   - TLS expected via reverse proxy (not handled here)
package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/jkaninda/okapi"

	"github.com/spikehq/spike/internal/observability"
	"github.com/spikehq/spike/internal/orchestrator"
	"github.com/spikehq/spike/internal/ratelimit"
)

const defaultMaxRequestSize = 1 << 20 // 1 MB

// ErrorBody is the standard error response used in OpenAPI documentation.
type ErrorBody struct {
	Error string `json:"error"`
}

// Config configures the HTTP API gateway.
type Config struct {
	ListenAddr        string            // e.g., ":8080"
	EnableDocs        bool              // Expose OpenAPI docs.
	APIKeys           map[string]string // API key → user ID mapping. Keys from env.
	MaxRequestSize    int64             // Maximum request body in bytes. 0 = 1 MB default.
	DefaultPropertyID string            // Scope applied when a request omits property_id.

	// Observability
	MetricsRegistry *prometheus.Registry            // Custom Prometheus registry for /metrics.
	MetricsPath     string                          // Path for metrics endpoint. Default: "/metrics".
	HealthChecker   *observability.HealthChecker    // Health checker for /readyz.
	Metrics         *observability.MetricsCollector // Metrics collector for HTTP middleware.
	Tracer          trace.Tracer                    // OTel tracer for HTTP middleware.
}

// Gateway is the HTTP API gateway. It marshals requests into engine queries
// and answers back out; all orchestration lives behind the engine.
type Gateway struct {
	config  Config
	engine  *orchestrator.Engine
	limiter *ratelimit.Limiter
	logger  *slog.Logger
	server  *http.Server

	sseEnabled bool

	okapi *okapi.Okapi
	group *okapi.Group
}

// NewGateway creates an HTTP API gateway over the orchestration engine.
func NewGateway(cfg Config, engine *orchestrator.Engine, rl *ratelimit.Limiter, logger *slog.Logger) *Gateway {
	maxSize := cfg.MaxRequestSize
	if maxSize <= 0 {
		maxSize = defaultMaxRequestSize
	}
	return &Gateway{
		config:  cfg,
		engine:  engine,
		limiter: rl,
		logger:  logger,
		okapi:   okapi.New(okapi.WithMaxMultipartMemory(maxSize)),
	}
}

// WithSSE enables the SSE streaming endpoint.
func (g *Gateway) WithSSE(enabled bool) *Gateway {
	g.sseEnabled = enabled
	return g
}

// WithOpenAPIDocs exposes the generated OpenAPI documentation.
func (g *Gateway) WithOpenAPIDocs() *Gateway {
	g.okapi.WithOpenAPIDocs(
		okapi.OpenAPI{
			Title:   "Spike",
			Version: "v0.1.0",
		},
	)
	return g
}

// Start launches the HTTP server and blocks until it exits or ctx is canceled.
func (g *Gateway) Start(ctx context.Context) error {
	// Authenticated /v1 group. Metrics middleware wraps the whole group.
	middlewares := []okapi.Middleware{g.authenticate}
	if g.config.Metrics != nil || g.config.Tracer != nil {
		middlewares = append([]okapi.Middleware{
			observability.MetricsMiddleware(g.config.Metrics, g.config.Tracer),
		}, middlewares...)
	}
	g.group = g.okapi.Group("/v1", middlewares...)

	g.group.Post("/query", g.handleQuery,
		okapi.DocSummary("Answer a natural-language question"),
		okapi.DocTags("Query"),
		okapi.DocRequestBody(QueryRequest{}),
		okapi.DocResponse(QueryResponse{}),
		okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
		okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		okapi.DocResponse(http.StatusTooManyRequests, ErrorBody{}),
	)

	if g.sseEnabled {
		g.group.Post("/query/stream", g.handleQueryStream,
			okapi.DocSummary("Answer a question, streaming progress via SSE"),
			okapi.DocTags("Query"),
			okapi.DocRequestBody(QueryRequest{}),
			okapi.DocResponse(http.StatusBadRequest, ErrorBody{}),
			okapi.DocResponse(http.StatusUnauthorized, ErrorBody{}),
		)
	}

	g.group.Get("/healthz", g.handleHealth,
		okapi.DocSummary("Authenticated health check"),
		okapi.DocTags("Health"),
		okapi.DocResponse(HealthResponse{}),
	)

	// Observability endpoints (unauthenticated).
	g.okapi.Get("/healthz", g.handleLiveness)
	g.okapi.Get("/readyz", g.handleReadiness)

	if g.config.MetricsRegistry != nil {
		path := g.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		g.okapi.HandleStd("GET", path, promhttp.HandlerFor(g.config.MetricsRegistry, promhttp.HandlerOpts{}).ServeHTTP)
	}
	if g.config.EnableDocs {
		g.WithOpenAPIDocs()
	}

	g.server = &http.Server{
		Addr:              g.config.ListenAddr,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      180 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	g.logger.Info("http api gateway starting", slog.String("addr", g.config.ListenAddr))
	return g.okapi.StartServer(g.server)
}

// Stop gracefully shuts down the HTTP server.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	g.logger.Info("http api gateway stopping")
	return g.okapi.Shutdown(g.server)
}

// --- Handlers ---

// QueryRequest is the JSON body for POST /v1/query.
type QueryRequest struct {
	Query      string `json:"query"`
	PropertyID string `json:"property_id,omitempty"` // Analytics scope. Empty = server default.
	Strategy   string `json:"strategy,omitempty"`    // "pipeline" or "react". Empty = server default.
}

// QueryResponse is the JSON response for POST /v1/query.
type QueryResponse struct {
	Answer        string `json:"answer"`
	Partial       bool   `json:"partial"`
	CorrelationID string `json:"correlation_id"`
}

func (g *Gateway) handleQuery(c *okapi.Context) error {
	userID := c.GetString("userID")

	if g.limiter != nil {
		if err := g.limiter.Allow(userID); err != nil {
			return c.AbortTooManyRequests("rate limit exceeded")
		}
	}

	var req QueryRequest
	if err := c.Bind(&req); err != nil {
		return c.AbortBadRequest("query is required")
	}
	q, err := g.buildQuery(&req)
	if err != nil {
		return c.AbortBadRequest(err.Error())
	}

	correlationID := newCorrelationID()
	g.logger.Info("http query",
		slog.String("user_id", userID),
		slog.String("correlation_id", correlationID),
		slog.String("strategy", string(q.Strategy)),
	)

	answer := g.engine.Route(c.Context(), q)

	return c.OK(QueryResponse{
		Answer:        answer.Text,
		Partial:       answer.Partial,
		CorrelationID: correlationID,
	})
}

// buildQuery validates the request body and applies server-side defaults.
func (g *Gateway) buildQuery(req *QueryRequest) (orchestrator.Query, error) {
	if strings.TrimSpace(req.Query) == "" {
		return orchestrator.Query{}, errQueryRequired
	}

	strategy := orchestrator.Strategy(req.Strategy)
	if req.Strategy != "" && !strategy.Valid() {
		return orchestrator.Query{}, errBadStrategy
	}

	scopeID := req.PropertyID
	if scopeID == "" {
		scopeID = g.config.DefaultPropertyID
	}

	return orchestrator.Query{
		Text:     strings.TrimSpace(req.Query),
		ScopeID:  scopeID,
		Strategy: strategy,
	}, nil
}

type gatewayError string

func (e gatewayError) Error() string { return string(e) }

const (
	errQueryRequired gatewayError = "query is required"
	errBadStrategy   gatewayError = "strategy must be \"pipeline\" or \"react\""
)

// HealthResponse is the JSON response for health endpoints.
type HealthResponse struct {
	Status string `json:"status"`
}

func (g *Gateway) handleHealth(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleLiveness is the Kubernetes liveness probe.
func (g *Gateway) handleLiveness(c *okapi.Context) error {
	return c.OK(&HealthResponse{Status: "ok"})
}

// handleReadiness checks all registered dependencies and returns 200 or 503.
func (g *Gateway) handleReadiness(c *okapi.Context) error {
	if g.config.HealthChecker == nil {
		return c.OK(&HealthResponse{Status: "ok"})
	}

	status := g.config.HealthChecker.CheckReady(c.Context())
	code := http.StatusOK
	if status.Status != "ok" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// --- Authentication ---

// authenticate validates the bearer API key and stores the mapped user ID
// on the request context.
func (g *Gateway) authenticate(next okapi.HandlerFunc) okapi.HandlerFunc {
	return func(c *okapi.Context) error {
		authHeader := c.Header("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.AbortUnauthorized("missing or invalid Authorization header")
		}
		apiKey := strings.TrimPrefix(authHeader, "Bearer ")

		userID := ""
		for key, mapped := range g.config.APIKeys {
			if subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
				userID = mapped
			}
		}
		if userID == "" {
			return c.AbortUnauthorized("invalid API key")
		}
		c.Set("userID", userID)
		return next(c)
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
