// Copyright 2026 The Sideline Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from a Go duration
// string ("10s", "1m30s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full Sideline configuration.
type Config struct {
	Bus          BusConfig          `yaml:"bus"`
	Enrichment   EnrichmentConfig   `yaml:"enrichment"`
	Synthesis    SynthesisConfig    `yaml:"synthesis"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// BusConfig configures the durable event log.
type BusConfig struct {
	// Path is the SQLite database file backing the log.
	// Default: sideline-events.db in the working directory.
	Path string `yaml:"path"`

	// PoolSize is the connection pool size. Default: 4.
	PoolSize int `yaml:"pool_size"`

	// PollInterval is the fallback polling cadence for subscriptions.
	// Default: 500ms.
	PollInterval Duration `yaml:"poll_interval"`

	// MaxDeliveryAttempts is the handler failure count after which a
	// message is dead-lettered. Default: 5.
	MaxDeliveryAttempts int `yaml:"max_delivery_attempts"`
}

// EnrichmentConfig configures the enrichment collaborators.
type EnrichmentConfig struct {
	// CachePath is the SQLite file for the 24h lookup cache. Empty
	// disables caching.
	CachePath string `yaml:"cache_path"`

	// WikipediaBaseURL overrides the Wikipedia instance used for
	// company profiles. Empty uses the public instance.
	WikipediaBaseURL string `yaml:"wikipedia_base_url"`

	// NewsEndpoint, CompetitorsEndpoint, and PersonEndpoint are the
	// JSON lookup services for the remaining job kinds. An empty
	// endpoint disables that kind.
	NewsEndpoint        string `yaml:"news_endpoint"`
	CompetitorsEndpoint string `yaml:"competitors_endpoint"`
	PersonEndpoint      string `yaml:"person_endpoint"`

	// Timeout is the per-lookup HTTP timeout. Default: 10s.
	Timeout Duration `yaml:"timeout"`
}

// SynthesisConfig configures the LLM-backed synthesizer.
type SynthesisConfig struct {
	// BaseURL is the OpenAI-compatible API root. Empty disables LLM
	// synthesis; every turn then produces the fallback suggestion.
	BaseURL string `yaml:"base_url"`

	// APIKey is the bearer token, if the endpoint needs one.
	APIKey string `yaml:"api_key"`

	// Model is the model name. Default: gpt-4o-mini.
	Model string `yaml:"model"`

	// MaxTokens bounds one completion. Default: 1024.
	MaxTokens int `yaml:"max_tokens"`
}

// OrchestratorConfig configures the pipeline.
type OrchestratorConfig struct {
	// Workers bounds concurrent collaborator calls. Default: 8.
	Workers int `yaml:"workers"`

	// JobTimeout bounds one enrichment job. Default: 15s.
	JobTimeout Duration `yaml:"job_timeout"`

	// ConsumerName identifies this process in its consumer groups.
	// Default: orchestrator-1.
	ConsumerName string `yaml:"consumer_name"`
}

// LoggingConfig configures slog output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error. Default: info.
	Level string `yaml:"level"`

	// Format is "text" or "json". Default: text.
	Format string `yaml:"format"`
}

// Default returns the configuration used when fields are absent from
// the file.
func Default() *Config {
	return &Config{
		Bus: BusConfig{
			Path:                "sideline-events.db",
			PoolSize:            4,
			PollInterval:        Duration(500 * time.Millisecond),
			MaxDeliveryAttempts: 5,
		},
		Enrichment: EnrichmentConfig{
			Timeout: Duration(10 * time.Second),
		},
		Synthesis: SynthesisConfig{
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
		},
		Orchestrator: OrchestratorConfig{
			Workers:      8,
			JobTimeout:   Duration(15 * time.Second),
			ConsumerName: "orchestrator-1",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads the file named by SIDELINE_CONFIG. It fails when the
// variable is unset — there is no fallback path.
func Load() (*Config, error) {
	path := os.Getenv("SIDELINE_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("config: SIDELINE_CONFIG environment variable not set; " +
			"set it to the path of your sideline.yaml, or use --config")
	}
	return LoadFile(path)
}

// LoadFile reads one YAML file over the defaults and validates the
// result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks cross-field invariants.
func (c *Config) Validate() error {
	if c.Bus.Path == "" {
		return fmt.Errorf("bus.path must not be empty")
	}
	if c.Bus.PoolSize < 1 {
		return fmt.Errorf("bus.pool_size must be at least 1")
	}
	if c.Bus.MaxDeliveryAttempts < 1 {
		return fmt.Errorf("bus.max_delivery_attempts must be at least 1")
	}
	if c.Orchestrator.Workers < 1 {
		return fmt.Errorf("orchestrator.workers must be at least 1")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not text or json", c.Logging.Format)
	}
	return nil
}
