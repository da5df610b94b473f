package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/spikehq/spike/internal/agent"
	"github.com/spikehq/spike/internal/agent/analytics"
	"github.com/spikehq/spike/internal/agent/seo"
	"github.com/spikehq/spike/internal/config"
	"github.com/spikehq/spike/internal/gateway"
	"github.com/spikehq/spike/internal/gateway/httpapi"
	"github.com/spikehq/spike/internal/llm"
	"github.com/spikehq/spike/internal/llm/litellm"
	"github.com/spikehq/spike/internal/observability"
	"github.com/spikehq/spike/internal/orchestrator"
	"github.com/spikehq/spike/internal/ratelimit"
	goutils "github.com/jkaninda/go-utils"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `spike --config path` and `spike serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe wires the engine and serves the HTTP API until a signal arrives.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	path := goutils.Env("SPIKE_CONFIG", serveConfigPath)
	if path == config.DefaultConfigPath() {
		// The default path is optional; fall back to env-only config.
		if _, err := os.Stat(path); err != nil {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if servePort != "" {
		cfg.Server.ListenAddr = servePort
	}

	logger.Info("starting spike server", slog.String("config", path))

	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}

	provider := buildProvider(cfg, obs, logger)
	agents := []agent.Agent{
		analytics.NewClient(cfg.Agents.Analytics.BaseURL, cfg.Agents.Analytics.APIKey, logger),
		seo.NewClient(cfg.Agents.SEO.BaseURL, cfg.Agents.SEO.APIKey, logger),
	}

	var engineMetrics *orchestrator.Metrics
	if obs != nil && obs.Metrics != nil {
		engineMetrics = orchestrator.NewMetrics(obs.Metrics.Registry)
	}

	engine := orchestrator.NewEngine(provider, agents, orchestrator.Options{
		Strategy:        orchestrator.Strategy(cfg.Orchestrator.DefaultStrategy()),
		MaxIterations:   cfg.Orchestrator.MaxIterations,
		GlobalTimeout:   cfg.Orchestrator.GlobalTimeout(),
		AgentTimeout:    cfg.Orchestrator.AgentTimeout(),
		AgentRetries:    cfg.Orchestrator.AgentRetries,
		ClassifyRetries: cfg.Orchestrator.ClassifyRetries,
	}, logger, engineMetrics)

	if obs != nil && obs.Health != nil {
		registerHealthChecks(obs.Health, cfg)
	}

	var gw gateway.Gateway = buildGateway(cfg, engine, obs, logger)

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := gw.Stop(shutdownCtx); err != nil {
		logger.Error("stopping gateway", slog.String("error", err.Error()))
	}
	if obs != nil {
		obs.Shutdown(shutdownCtx)
	}
	return nil
}

// buildProvider assembles the model provider chain:
// LiteLLM clients → fallback chain → rate governor → instrumentation.
func buildProvider(cfg *config.Config, obs *observability.Observability, logger *slog.Logger) llm.Provider {
	hc := &http.Client{Timeout: cfg.Provider.Timeout()}

	var provider llm.Provider = litellm.NewClient(
		cfg.Provider.BaseURL, cfg.Provider.APIKey, cfg.Provider.ModelName(),
		logger, litellm.WithHTTPClient(hc),
	)

	if len(cfg.Provider.Fallbacks) > 0 {
		providers := []llm.Provider{provider}
		for _, fb := range cfg.Provider.Fallbacks {
			providers = append(providers, litellm.NewClient(
				fb.BaseURL, fb.APIKey, fb.Model, logger, litellm.WithHTTPClient(hc),
			))
		}
		provider = llm.NewFallbackProvider(providers, logger)
	}

	if cfg.RateLimit.ModelRequestsPerMinute > 0 {
		governor := ratelimit.NewGovernor(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimit.ModelRequestsPerMinute,
			BurstSize:         cfg.RateLimit.ModelBurst,
		})
		provider = llm.NewGovernedProvider(provider, governor)
	}

	if obs != nil {
		provider = observability.NewInstrumentedProvider(provider, obs.Metrics, obs.Tracer, obs.Monitor)
	}
	return provider
}

// registerHealthChecks wires readiness probes for the configured upstreams.
func registerHealthChecks(health *observability.HealthChecker, cfg *config.Config) {
	health.AddCheck("provider", func(_ context.Context) error {
		if cfg.Provider.BaseURL == "" {
			return fmt.Errorf("provider base URL not configured")
		}
		return nil
	})
	health.AddCheck("agents", func(_ context.Context) error {
		if cfg.Agents.Analytics.BaseURL == "" && cfg.Agents.SEO.BaseURL == "" {
			return fmt.Errorf("no agent endpoints configured")
		}
		return nil
	})
}

// buildGateway creates the HTTP gateway from config.
func buildGateway(cfg *config.Config, engine *orchestrator.Engine, obs *observability.Observability, logger *slog.Logger) *httpapi.Gateway {
	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.RateLimit.PerUserRPM,
	})

	// Build API key → user ID mapping from config + env override.
	apiKeys := cfg.Server.APIKeys
	if apiKeys == nil {
		apiKeys = make(map[string]string)
	}
	if envKeys := os.Getenv("SPIKE_API_KEYS"); envKeys != "" {
		for _, entry := range strings.Split(envKeys, ",") {
			parts := strings.SplitN(strings.TrimSpace(entry), ":", 2)
			if len(parts) == 2 {
				apiKeys[parts[0]] = parts[1]
			}
		}
	}

	httpCfg := httpapi.Config{
		ListenAddr:        cfg.Server.Addr(),
		EnableDocs:        cfg.Server.EnableDocs,
		APIKeys:           apiKeys,
		MaxRequestSize:    cfg.Server.MaxRequestSize,
		DefaultPropertyID: cfg.Orchestrator.DefaultPropertyID,
	}
	if obs != nil {
		httpCfg.Metrics = obs.Metrics
		httpCfg.HealthChecker = obs.Health
		if obs.Metrics != nil {
			httpCfg.MetricsRegistry = obs.Metrics.Registry
		}
		if obs.Tracer != nil {
			httpCfg.Tracer = obs.Tracer.Tracer()
		}
		if cfg.Observability != nil && cfg.Observability.Metrics != nil {
			httpCfg.MetricsPath = cfg.Observability.Metrics.Path
		}
	}

	gw := httpapi.NewGateway(httpCfg, engine, limiter, logger)
	if cfg.Server.EnableSSE {
		gw.WithSSE(true)
		logger.Debug("SSE streaming endpoint enabled")
	}
	if cfg.Server.EnableDocs {
		gw.WithOpenAPIDocs()
	}
	return gw
}
