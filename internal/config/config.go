// Package config handles loading and validating Spike configuration.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

func init() {
	// Load .env file if it exists
	_ = godotenv.Load()
}

// Config is the root configuration for Spike.
type Config struct {
	Server        ServerConfig         `json:"server" yaml:"server"`
	Provider      ProviderConfig       `json:"provider" yaml:"provider"`
	Agents        AgentsConfig         `json:"agents" yaml:"agents"`
	Orchestrator  OrchestratorConfig   `json:"orchestrator" yaml:"orchestrator"`
	RateLimit     RateLimitConfig      `json:"rate_limit" yaml:"rate_limit"`
	Observability *ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"` // nil = observability disabled
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	ListenAddr     string            `json:"listen_addr" yaml:"listen_addr"`               // Default: ":8080".
	APIKeys        map[string]string `json:"api_keys,omitempty" yaml:"api_keys,omitempty"` // API key → user ID. SPIKE_API_KEY env adds a "default" user key.
	EnableDocs     bool              `json:"enable_docs" yaml:"enable_docs"`
	EnableSSE      bool              `json:"enable_sse" yaml:"enable_sse"`
	MaxRequestSize int64             `json:"max_request_size" yaml:"max_request_size"` // Bytes. 0 = 1 MB.
}

// Addr returns the listen address, defaulting to ":8080".
func (s ServerConfig) Addr() string {
	if s.ListenAddr != "" {
		return s.ListenAddr
	}
	return ":8080"
}

// ProviderConfig configures the model invoker.
// The endpoint is OpenAI-compatible (LiteLLM proxy, OpenAI, Ollama, ...).
type ProviderConfig struct {
	BaseURL     string  `json:"base_url" yaml:"base_url"`                   // e.g. "https://litellm.internal". Override: SPIKE_LLM_BASE_URL.
	APIKey      string  `json:"api_key,omitempty" yaml:"api_key,omitempty"` // Override: SPIKE_LLM_API_KEY.
	Model       string  `json:"model" yaml:"model"`                         // Default: "gemini-2.5-flash".
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens"`               // Default: 2000.
	Temperature float64 `json:"temperature" yaml:"temperature"`             // Default: 0.3.
	TimeoutS    int     `json:"timeout_s" yaml:"timeout_s"`                 // Per-call timeout. Default: 60.

	// Fallbacks are tried in order when the primary provider fails.
	Fallbacks []FallbackProviderConfig `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// FallbackProviderConfig describes a secondary model endpoint.
type FallbackProviderConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	Model   string `json:"model" yaml:"model"`
}

// ModelName returns the configured model, defaulting to "gemini-2.5-flash".
func (p ProviderConfig) ModelName() string {
	if p.Model != "" {
		return p.Model
	}
	return "gemini-2.5-flash"
}

// Timeout returns the per-call model timeout.
func (p ProviderConfig) Timeout() time.Duration {
	if p.TimeoutS > 0 {
		return time.Duration(p.TimeoutS) * time.Second
	}
	return 60 * time.Second
}

// AgentsConfig configures the two data agents.
type AgentsConfig struct {
	Analytics AgentEndpointConfig `json:"analytics" yaml:"analytics"`
	SEO       AgentEndpointConfig `json:"seo" yaml:"seo"`
}

// AgentEndpointConfig points at one data agent's upstream service.
type AgentEndpointConfig struct {
	BaseURL string `json:"base_url" yaml:"base_url"`
	APIKey  string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
}

// OrchestratorConfig configures the query orchestration engine.
type OrchestratorConfig struct {
	Strategy          string `json:"strategy" yaml:"strategy"`                                           // "pipeline" (default) or "react".
	MaxIterations     int    `json:"max_iterations" yaml:"max_iterations"`                               // ReAct cap. Default: 5.
	GlobalTimeoutS    int    `json:"global_timeout_s" yaml:"global_timeout_s"`                           // Per-request bound. Default: 120.
	AgentTimeoutS     int    `json:"agent_timeout_s" yaml:"agent_timeout_s"`                             // Per agent call. Default: 30.
	AgentRetries      int    `json:"agent_retries" yaml:"agent_retries"`                                 // Attempts per agent call. Default: 3.
	ClassifyRetries   int    `json:"classify_retries" yaml:"classify_retries"`                           // Extra classification attempts. Default: 2.
	DefaultPropertyID string `json:"default_property_id,omitempty" yaml:"default_property_id,omitempty"` // Used when a request omits the scope. Override: SPIKE_DEFAULT_PROPERTY_ID.
}

// DefaultStrategy returns the configured strategy, defaulting to "pipeline".
func (o OrchestratorConfig) DefaultStrategy() string {
	if o.Strategy != "" {
		return o.Strategy
	}
	return "pipeline"
}

// GlobalTimeout returns the per-request bound.
func (o OrchestratorConfig) GlobalTimeout() time.Duration {
	if o.GlobalTimeoutS > 0 {
		return time.Duration(o.GlobalTimeoutS) * time.Second
	}
	return 120 * time.Second
}

// AgentTimeout returns the per-agent-call timeout.
func (o OrchestratorConfig) AgentTimeout() time.Duration {
	if o.AgentTimeoutS > 0 {
		return time.Duration(o.AgentTimeoutS) * time.Second
	}
	return 30 * time.Second
}

// Iterations returns the ReAct iteration cap.
func (o OrchestratorConfig) Iterations() int {
	if o.MaxIterations > 0 {
		return o.MaxIterations
	}
	return 5
}

// RateLimitConfig configures the process-wide model-call governor and
// the per-user inbound request limiter.
type RateLimitConfig struct {
	ModelRequestsPerMinute int `json:"model_requests_per_minute" yaml:"model_requests_per_minute"` // 0 = unlimited.
	ModelBurst             int `json:"model_burst" yaml:"model_burst"`                             // 0 = same as RPM.
	PerUserRPM             int `json:"per_user_rpm" yaml:"per_user_rpm"`                           // Inbound HTTP limit. 0 = unlimited.
}

// ObservabilityConfig configures metrics and tracing.
// When nil, all observability features are disabled with zero overhead.
type ObservabilityConfig struct {
	Metrics *MetricsConfig `json:"metrics,omitempty" yaml:"metrics,omitempty"`
	Tracing *TracingConfig `json:"tracing,omitempty" yaml:"tracing,omitempty"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Path    string `json:"path" yaml:"path"` // Default: "/metrics"
}

// TracingConfig configures OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `json:"enabled" yaml:"enabled"`
	Endpoint    string  `json:"endpoint" yaml:"endpoint"`         // OTLP endpoint, e.g. "localhost:4317"
	Protocol    string  `json:"protocol" yaml:"protocol"`         // "grpc" or "http". Default: "grpc"
	ServiceName string  `json:"service_name" yaml:"service_name"` // Default: "spike"
	SampleRate  float64 `json:"sample_rate" yaml:"sample_rate"`   // 0.0–1.0. Default: 1.0
	Insecure    bool    `json:"insecure" yaml:"insecure"`         // Skip TLS for dev
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "configs/spike.yaml" // fallback for environments without a home dir
	}
	return filepath.Join(home, ".spike", "config.yaml")
}

// Load reads configuration from the given path (YAML or JSON) and applies
// environment overrides. An empty path yields a config built from the
// environment alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if strings.HasSuffix(path, ".json") {
			if err := json.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config JSON: %w", err)
			}
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config YAML: %w", err)
			}
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto file-based settings.
// Env always wins so secrets never need to live in the config file.
func (c *Config) applyEnv() {
	if v := os.Getenv("SPIKE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("SPIKE_API_KEY"); v != "" {
		if c.Server.APIKeys == nil {
			c.Server.APIKeys = make(map[string]string)
		}
		c.Server.APIKeys[v] = "default"
	}
	if v := os.Getenv("SPIKE_LLM_BASE_URL"); v != "" {
		c.Provider.BaseURL = v
	}
	if v := os.Getenv("SPIKE_LLM_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("SPIKE_LLM_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("SPIKE_ANALYTICS_URL"); v != "" {
		c.Agents.Analytics.BaseURL = v
	}
	if v := os.Getenv("SPIKE_ANALYTICS_API_KEY"); v != "" {
		c.Agents.Analytics.APIKey = v
	}
	if v := os.Getenv("SPIKE_SEO_URL"); v != "" {
		c.Agents.SEO.BaseURL = v
	}
	if v := os.Getenv("SPIKE_SEO_API_KEY"); v != "" {
		c.Agents.SEO.APIKey = v
	}
	if v := os.Getenv("SPIKE_DEFAULT_PROPERTY_ID"); v != "" {
		c.Orchestrator.DefaultPropertyID = v
	}
}

// Validate checks settings that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required (or set SPIKE_LLM_BASE_URL)")
	}
	switch c.Orchestrator.DefaultStrategy() {
	case "pipeline", "react":
	default:
		return fmt.Errorf("orchestrator.strategy must be %q or %q, got %q", "pipeline", "react", c.Orchestrator.Strategy)
	}
	if c.Agents.Analytics.BaseURL == "" && c.Agents.SEO.BaseURL == "" {
		return fmt.Errorf("at least one agent endpoint must be configured")
	}
	return nil
}
