package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for taskgraph
type Config struct {
	// OracleCmd is the language server command line, binary first. The
	// default targets rust-analyzer since the annotation convention
	// originates in Rust codebases.
	OracleCmd []string `yaml:"oracle_cmd" env:"TASKGRAPH_ORACLE_CMD"`

	// Concurrency caps the number of symbols resolved against the oracle
	// at once.
	Concurrency int `yaml:"concurrency" env:"TASKGRAPH_CONCURRENCY"`

	// QueryTimeoutSecs bounds a single oracle query.
	QueryTimeoutSecs int `yaml:"query_timeout_secs" env:"TASKGRAPH_QUERY_TIMEOUT_SECS"`

	// MaxRetries is how many times an unanswered oracle query is retried
	// before the symbol is marked partial.
	MaxRetries int `yaml:"max_retries" env:"TASKGRAPH_MAX_RETRIES"`

	// RetryBackoffMS is the pause between oracle retries.
	RetryBackoffMS int `yaml:"retry_backoff_ms" env:"TASKGRAPH_RETRY_BACKOFF_MS"`

	// CacheDir is where the call-site cache and config live, relative to
	// the analyzed repository root.
	CacheDir string `yaml:"cache_dir" env:"TASKGRAPH_CACHE_DIR"`

	// Cache toggles reuse of oracle answers across runs.
	Cache bool `yaml:"cache" env:"TASKGRAPH_CACHE"`

	// Include and Exclude are doublestar globs applied to source unit
	// paths relative to the repository root.
	Include []string `yaml:"include" env:"TASKGRAPH_INCLUDE"`
	Exclude []string `yaml:"exclude" env:"TASKGRAPH_EXCLUDE"`

	// Logging
	Verbose bool `yaml:"verbose" env:"TASKGRAPH_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OracleCmd:        []string{"rust-analyzer"},
		Concurrency:      4,
		QueryTimeoutSecs: 30,
		MaxRetries:       5,
		RetryBackoffMS:   1000,
		CacheDir:         ".taskgraph",
		Cache:            true,
		Include:          nil,
		Exclude:          nil,
		Verbose:          false,
	}
}

// globalConfigFilePath returns the global config file path (~/.taskgraph/config.yaml)
func globalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".taskgraph/config.yaml"
	}
	return filepath.Join(home, ".taskgraph", "config.yaml")
}

// projectConfigFilePath returns the project-level config file path (./.taskgraph/config.yaml)
func projectConfigFilePath() string {
	return ".taskgraph/config.yaml"
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.taskgraph/config.yaml)
// 3. Global config (~/.taskgraph/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	globalConfigPath := globalConfigFilePath()
	if data, err := os.ReadFile(globalConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", globalConfigPath, err)
		}
	}

	projectConfigPath := projectConfigFilePath()
	if data, err := os.ReadFile(projectConfigPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", projectConfigPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// CachePath returns the on-disk location of the call-site cache for a
// repository rooted at root.
func (c *Config) CachePath(root string) string {
	return filepath.Join(root, c.CacheDir, "callsites.msgpack")
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TASKGRAPH_ORACLE_CMD"); v != "" {
		cfg.OracleCmd = strings.Fields(v)
	}
	if v := os.Getenv("TASKGRAPH_CONCURRENCY"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Concurrency = i
		}
	}
	if v := os.Getenv("TASKGRAPH_QUERY_TIMEOUT_SECS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.QueryTimeoutSecs = i
		}
	}
	if v := os.Getenv("TASKGRAPH_MAX_RETRIES"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.MaxRetries = i
		}
	}
	if v := os.Getenv("TASKGRAPH_RETRY_BACKOFF_MS"); v != "" {
		if i := parseInt(v); i >= 0 {
			cfg.RetryBackoffMS = i
		}
	}
	if v := os.Getenv("TASKGRAPH_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("TASKGRAPH_CACHE"); v != "" {
		cfg.Cache = v == "true" || v == "1" || v == "yes"
	}
	if v := os.Getenv("TASKGRAPH_INCLUDE"); v != "" {
		cfg.Include = splitList(v)
	}
	if v := os.Getenv("TASKGRAPH_EXCLUDE"); v != "" {
		cfg.Exclude = splitList(v)
	}
	if v := os.Getenv("TASKGRAPH_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1" || v == "yes"
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if len(c.OracleCmd) == 0 || c.OracleCmd[0] == "" {
		return fmt.Errorf("oracle_cmd must name a language server binary")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive")
	}
	if c.QueryTimeoutSecs <= 0 {
		return fmt.Errorf("query_timeout_secs must be positive")
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must be non-negative")
	}
	if c.RetryBackoffMS < 0 {
		return fmt.Errorf("retry_backoff_ms must be non-negative")
	}
	if c.CacheDir == "" {
		return fmt.Errorf("cache_dir must not be empty")
	}
	return nil
}

func parseInt(s string) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return i
}

// splitList parses a comma-separated env value into a glob list.
func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
