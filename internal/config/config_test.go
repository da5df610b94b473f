package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoad_YAML(t *testing.T) {
	path := writeTemp(t, "spike.yaml", `
server:
  listen_addr: ":9090"
provider:
  base_url: "http://litellm.local"
  model: "gpt-4o-mini"
agents:
  analytics:
    base_url: "http://analytics.local"
  seo:
    base_url: "http://seo.local"
orchestrator:
  strategy: react
  max_iterations: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr() != ":9090" {
		t.Errorf("addr = %q, want :9090", cfg.Server.Addr())
	}
	if cfg.Provider.ModelName() != "gpt-4o-mini" {
		t.Errorf("model = %q", cfg.Provider.ModelName())
	}
	if cfg.Orchestrator.DefaultStrategy() != "react" {
		t.Errorf("strategy = %q", cfg.Orchestrator.DefaultStrategy())
	}
	if cfg.Orchestrator.Iterations() != 3 {
		t.Errorf("iterations = %d, want 3", cfg.Orchestrator.Iterations())
	}
}

func TestLoad_JSON(t *testing.T) {
	path := writeTemp(t, "spike.json", `{
  "provider": {"base_url": "http://litellm.local"},
  "agents": {"seo": {"base_url": "http://seo.local"}}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.BaseURL != "http://litellm.local" {
		t.Errorf("base_url = %q", cfg.Provider.BaseURL)
	}
}

func TestLoad_Defaults(t *testing.T) {
	path := writeTemp(t, "spike.yaml", `
provider:
  base_url: "http://litellm.local"
agents:
  seo:
    base_url: "http://seo.local"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Addr() != ":8080" {
		t.Errorf("default addr = %q", cfg.Server.Addr())
	}
	if cfg.Orchestrator.DefaultStrategy() != "pipeline" {
		t.Errorf("default strategy = %q", cfg.Orchestrator.DefaultStrategy())
	}
	if cfg.Orchestrator.GlobalTimeout() != 120*time.Second {
		t.Errorf("default global timeout = %v", cfg.Orchestrator.GlobalTimeout())
	}
	if cfg.Orchestrator.AgentTimeout() != 30*time.Second {
		t.Errorf("default agent timeout = %v", cfg.Orchestrator.AgentTimeout())
	}
	if cfg.Orchestrator.Iterations() != 5 {
		t.Errorf("default iterations = %d", cfg.Orchestrator.Iterations())
	}
	if cfg.Provider.Timeout() != 60*time.Second {
		t.Errorf("default provider timeout = %v", cfg.Provider.Timeout())
	}
}

func TestLoad_MissingProvider(t *testing.T) {
	path := writeTemp(t, "spike.yaml", `
agents:
  seo:
    base_url: "http://seo.local"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for missing provider.base_url")
	}
}

func TestLoad_BadStrategy(t *testing.T) {
	path := writeTemp(t, "spike.yaml", `
provider:
  base_url: "http://litellm.local"
agents:
  seo:
    base_url: "http://seo.local"
orchestrator:
  strategy: "graph"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error for unknown strategy")
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("SPIKE_LLM_BASE_URL", "http://override.local")
	t.Setenv("SPIKE_DEFAULT_PROPERTY_ID", "516815205")

	path := writeTemp(t, "spike.yaml", `
provider:
  base_url: "http://file.local"
agents:
  seo:
    base_url: "http://seo.local"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Provider.BaseURL != "http://override.local" {
		t.Errorf("env override lost: %q", cfg.Provider.BaseURL)
	}
	if cfg.Orchestrator.DefaultPropertyID != "516815205" {
		t.Errorf("default property id = %q", cfg.Orchestrator.DefaultPropertyID)
	}
}
