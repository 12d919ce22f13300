package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaultsWithoutConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.MaxRetries != 3 || cfg.Generation.Timeout.Std() != 30*time.Second {
		t.Fatalf("unexpected defaults %+v", cfg.Generation)
	}
	if cfg.Paths.Projects != filepath.Join(dir, "projects") {
		t.Fatalf("projects path = %s", cfg.Paths.Projects)
	}
}

func TestLoadParsesYAMLAndDurations(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, AgentproDir), 0o755); err != nil {
		t.Fatal(err)
	}
	content := `version: 1
generation:
  api_url: https://example.test/v1/chat/completions
  api_key: sekrit
  model: test-model
  max_retries: 5
  backoff_base: 250ms
  timeout: 2m
run:
  max_parallel: 2
paths:
  projects: out/projects
`
	if err := os.WriteFile(filepath.Join(dir, AgentproDir, "config.yaml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.BackoffBase.Std() != 250*time.Millisecond {
		t.Fatalf("backoff = %v", cfg.Generation.BackoffBase.Std())
	}
	if cfg.Generation.Timeout.Std() != 2*time.Minute {
		t.Fatalf("timeout = %v", cfg.Generation.Timeout.Std())
	}
	if cfg.Run.MaxParallel != 2 {
		t.Fatalf("max_parallel = %d", cfg.Run.MaxParallel)
	}
	if cfg.Paths.Projects != filepath.Join(dir, "out", "projects") {
		t.Fatalf("projects path = %s", cfg.Paths.Projects)
	}
	if err := cfg.ValidateGeneration(); err != nil {
		t.Fatalf("ValidateGeneration: %v", err)
	}
}

func TestEnvOverridesWin(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("AGENTPRO_API_URL", "https://env.test")
	t.Setenv("AGENTPRO_API_KEY", "env-key")
	t.Setenv("AGENTPRO_MODEL", "env-model")
	t.Setenv("AGENTPRO_MAX_RETRIES", "7")
	t.Setenv("AGENTPRO_TIMEOUT", "45s")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Generation.APIURL != "https://env.test" || cfg.Generation.Model != "env-model" {
		t.Fatalf("env overrides ignored: %+v", cfg.Generation)
	}
	if cfg.Generation.MaxRetries != 7 || cfg.Generation.Timeout.Std() != 45*time.Second {
		t.Fatalf("numeric env overrides ignored: %+v", cfg.Generation)
	}
}

func TestValidateGenerationNamesMissingSettings(t *testing.T) {
	cfg := defaults()
	err := cfg.ValidateGeneration()
	if err == nil {
		t.Fatal("expected error for empty backend settings")
	}
}

func TestInitCreatesSkeletonOnce(t *testing.T) {
	dir := t.TempDir()
	if err := Init(dir); err != nil {
		t.Fatalf("Init: %v", err)
	}
	path := filepath.Join(dir, AgentproDir, "config.yaml")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config missing: %v", err)
	}
	custom := []byte("version: 1\n")
	if err := os.WriteFile(path, custom, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := Init(dir); err != nil {
		t.Fatalf("Init second run: %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != string(custom) {
		t.Fatal("Init overwrote an existing config file")
	}
}
