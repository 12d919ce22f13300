// Package config handles runtime configuration and the .agentpro directory
// structure. Every workspace that uses agentpro gets a .agentpro/ folder
// holding the config file and process logs; generated projects live under
// the configured projects directory.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// AgentproDir is the directory created in each workspace root.
	AgentproDir = ".agentpro"

	configFileName = "config.yaml"

	defaultProjectsDir = "projects"
	defaultPromptsDir  = "prompts"
)

const defaultConfigYAML = `# agentpro configuration
version: 1

generation:
  # Endpoint and credentials for the completion backend. Override with
  # AGENTPRO_API_URL / AGENTPRO_API_KEY / AGENTPRO_MODEL.
  api_url: ""
  api_key: ""
  model: ""
  temperature: 0.7
  max_tokens: 4096
  # Transport failures retry up to max_retries additional attempts with
  # exponential backoff starting at backoff_base.
  max_retries: 3
  backoff_base: 1s
  timeout: 30s

run:
  # 0 means no limit beyond what the dependency graph permits.
  max_parallel: 0

paths:
  projects: projects
  prompts: prompts
`

// GenerationConfig configures the completion backend and retry policy.
type GenerationConfig struct {
	APIURL      string        `yaml:"api_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	MaxRetries  int           `yaml:"max_retries"`
	BackoffBase Duration      `yaml:"backoff_base"`
	Timeout     Duration      `yaml:"timeout"`
}

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML accepts either a duration string or a number of seconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds float64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("config: invalid duration value")
	}
	*d = Duration(time.Duration(seconds * float64(time.Second)))
	return nil
}

// MarshalYAML renders the canonical duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the standard-library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// RunConfig configures scheduler behaviour.
type RunConfig struct {
	MaxParallel int `yaml:"max_parallel"`
}

// PathsConfig locates the on-disk trees agentpro reads and writes.
type PathsConfig struct {
	Projects string `yaml:"projects"`
	Prompts  string `yaml:"prompts"`
}

// Config is the root of .agentpro/config.yaml.
type Config struct {
	Version    int              `yaml:"version"`
	Generation GenerationConfig `yaml:"generation"`
	Run        RunConfig        `yaml:"run"`
	Paths      PathsConfig      `yaml:"paths"`

	// WorkspaceDir is where the user invoked agentpro; paths resolve
	// relative to it. Not serialized.
	WorkspaceDir string `yaml:"-"`
}

// Init creates the .agentpro skeleton and a commented default config when
// one does not exist yet.
func Init(workspaceDir string) error {
	dir := filepath.Join(workspaceDir, AgentproDir)
	for _, sub := range []string{"", "logs"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", filepath.Join(dir, sub), err)
		}
	}
	path := filepath.Join(dir, configFileName)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: stat %s: %w", path, err)
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0o644); err != nil {
		return fmt.Errorf("config: write default config: %w", err)
	}
	return nil
}

// Load reads .agentpro/config.yaml (if present), applies defaults and
// environment overrides, and resolves relative paths against the
// workspace directory.
func Load(workspaceDir string) (Config, error) {
	cfg := defaults()
	cfg.WorkspaceDir = workspaceDir
	path := filepath.Join(workspaceDir, AgentproDir, configFileName)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Environment-only configuration is fine.
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	cfg.applyEnv()
	cfg.normalize(workspaceDir)
	return cfg, nil
}

func defaults() Config {
	return Config{
		Version: 1,
		Generation: GenerationConfig{
			Temperature: 0.7,
			MaxTokens:   4096,
			MaxRetries:  3,
			BackoffBase: Duration(time.Second),
			Timeout:     Duration(30 * time.Second),
		},
		Paths: PathsConfig{
			Projects: defaultProjectsDir,
			Prompts:  defaultPromptsDir,
		},
	}
}

func (c *Config) applyEnv() {
	overrideString(&c.Generation.APIURL, "AGENTPRO_API_URL")
	overrideString(&c.Generation.APIKey, "AGENTPRO_API_KEY")
	overrideString(&c.Generation.Model, "AGENTPRO_MODEL")
	overrideString(&c.Paths.Projects, "AGENTPRO_PROJECTS_DIR")
	overrideString(&c.Paths.Prompts, "AGENTPRO_PROMPTS_DIR")
	if value, ok := lookupEnv("AGENTPRO_TEMPERATURE"); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			c.Generation.Temperature = parsed
		}
	}
	if value, ok := lookupEnv("AGENTPRO_MAX_TOKENS"); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			c.Generation.MaxTokens = parsed
		}
	}
	if value, ok := lookupEnv("AGENTPRO_MAX_RETRIES"); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			c.Generation.MaxRetries = parsed
		}
	}
	if value, ok := lookupEnv("AGENTPRO_TIMEOUT"); ok {
		if parsed, err := time.ParseDuration(value); err == nil {
			c.Generation.Timeout = Duration(parsed)
		}
	}
	if value, ok := lookupEnv("AGENTPRO_MAX_PARALLEL"); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			c.Run.MaxParallel = parsed
		}
	}
}

func (c *Config) normalize(workspaceDir string) {
	if c.Paths.Projects == "" {
		c.Paths.Projects = defaultProjectsDir
	}
	if c.Paths.Prompts == "" {
		c.Paths.Prompts = defaultPromptsDir
	}
	if !filepath.IsAbs(c.Paths.Projects) {
		c.Paths.Projects = filepath.Join(workspaceDir, c.Paths.Projects)
	}
	if !filepath.IsAbs(c.Paths.Prompts) {
		c.Paths.Prompts = filepath.Join(workspaceDir, c.Paths.Prompts)
	}
	if c.Run.MaxParallel < 0 {
		c.Run.MaxParallel = 0
	}
}

// LogDir returns where process logs belong.
func (c Config) LogDir() string {
	return filepath.Join(c.WorkspaceDir, AgentproDir, "logs")
}

// ValidateGeneration reports missing backend settings by name, mirroring
// what the gateway requires. Kept here too so the CLI can fail before any
// orchestration starts.
func (c Config) ValidateGeneration() error {
	var missing []string
	if strings.TrimSpace(c.Generation.APIURL) == "" {
		missing = append(missing, "generation.api_url (AGENTPRO_API_URL)")
	}
	if strings.TrimSpace(c.Generation.APIKey) == "" {
		missing = append(missing, "generation.api_key (AGENTPRO_API_KEY)")
	}
	if strings.TrimSpace(c.Generation.Model) == "" {
		missing = append(missing, "generation.model (AGENTPRO_MODEL)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func overrideString(target *string, key string) {
	if value, ok := lookupEnv(key); ok {
		*target = value
	}
}

func lookupEnv(key string) (string, bool) {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return "", false
	}
	return value, true
}
