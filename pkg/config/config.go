// Package config holds the host configuration: where to listen, which model
// to call, where definitions are stored. Values come from defaults, then an
// optional YAML file, then PIPELOOM_* environment variables.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pipeloom/pipeloom/pkg/graphview"
	"github.com/pipeloom/pipeloom/pkg/llm"
)

// Duration decodes YAML strings like "600ms" or "2s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Model    ModelConfig    `yaml:"model"`
	Store    StoreConfig    `yaml:"store"`
	Simulate SimulateConfig `yaml:"simulate"`
}

type ServerConfig struct {
	Addr  string `yaml:"addr"`
	Theme string `yaml:"theme"`
}

type ModelConfig struct {
	ID string `yaml:"id"`
}

type StoreConfig struct {
	// PostgresDSN switches persistence from in-memory to Postgres when set.
	PostgresDSN string `yaml:"postgres_dsn"`
}

type SimulateConfig struct {
	StepDuration Duration `yaml:"step_duration"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Addr: ":8080", Theme: "dark"},
		Model:    ModelConfig{ID: "anthropic:claude-sonnet-4-5"},
		Simulate: SimulateConfig{StepDuration: Duration(600 * time.Millisecond)},
	}
}

// Load builds the configuration from defaults, the YAML file at path when
// path is not empty, and finally environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("PIPELOOM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("PIPELOOM_THEME"); v != "" {
		c.Server.Theme = v
	}
	if v := os.Getenv("PIPELOOM_MODEL"); v != "" {
		c.Model.ID = v
	}
	if v := os.Getenv("PIPELOOM_POSTGRES_DSN"); v != "" {
		c.Store.PostgresDSN = v
	} else if v := os.Getenv("DATABASE_URL"); v != "" && c.Store.PostgresDSN == "" {
		c.Store.PostgresDSN = v
	}
}

// Validate rejects values the host cannot start with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr must not be empty")
	}
	if _, err := graphview.ThemeByName(c.Server.Theme); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, _, err := llm.ParseModelID(c.Model.ID); err != nil {
		return fmt.Errorf("config: model.id: %w", err)
	}
	return nil
}

// StepDuration returns the simulation step interval with its default applied.
func (c *Config) StepDuration() time.Duration {
	if c.Simulate.StepDuration <= 0 {
		return 600 * time.Millisecond
	}
	return time.Duration(c.Simulate.StepDuration)
}
