package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/BDNK1/plugrun/internal/runstate"
	"github.com/BDNK1/plugrun/internal/telemetry"
	"github.com/BDNK1/plugrun/runtime"
)

// Config is the plugrun.yaml structure
type Config struct {
	LogLevel      string                    `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	Server        ServerConfig              `yaml:"server"`
	Store         runstate.Config           `yaml:"store"`
	Scheduler     SchedulerConfig           `yaml:"scheduler"`
	Telemetry     telemetry.Config          `yaml:"telemetry"`
	Manifests     []string                  `yaml:"manifests"`
	Providers     map[string]map[string]any `yaml:"providers"` // provider id -> provider config
	Subscriptions []Subscription            `yaml:"subscriptions" validate:"dive"`
}

// ServerConfig configures the admin HTTP API
type ServerConfig struct {
	Addr string `yaml:"addr" default:":8080" validate:"required"`
	Mode string `yaml:"mode" default:"release" validate:"oneof=debug release test"`
}

// SchedulerConfig configures the cron tick driving subscriptions
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled" default:"true"`
	Spec    string `yaml:"spec" default:"@every 1m" validate:"required"`
}

// Subscription is one integration's use of a plug: which plug to run, on
// whose behalf, and the user-supplied values.
type Subscription struct {
	Provider    string         `yaml:"provider" validate:"required,plug_id"`
	Plug        string         `yaml:"plug" validate:"required,plug_id"`
	Integration string         `yaml:"integration" validate:"required"`
	AccessToken string         `yaml:"access_token"`
	PostID      string         `yaml:"post_id"`
	Values      map[string]any `yaml:"values"`
	Data        map[string]any `yaml:"data"`
}

// Key identifies the subscription's run state.
func (s Subscription) Key() runstate.Key {
	return runstate.Key{Provider: s.Provider, Plug: s.Plug, Integration: s.Integration}
}

// ProviderConfig returns the raw config section for a provider, or nil.
func (c *Config) ProviderConfig(id string) map[string]any {
	return c.Providers[id]
}

// Load reads a config file, resolves environment references, applies
// defaults and validates the result. Relative manifest paths are resolved
// against the config file's directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config from %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to load %q: %w", path, err)
	}

	cfg.Manifests, err = resolveManifests(filepath.Dir(path), cfg.Manifests)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Parse builds a Config from YAML bytes.
func Parse(data []byte) (*Config, error) {
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	expanded, err := Expand(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve environment variables: %w", err)
	}

	var cfg Config
	if err := runtime.InitializeConfig(&cfg, expanded.(map[string]any)); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a Config with every default applied and no subscriptions.
func Default() (*Config, error) {
	var cfg Config
	if err := runtime.InitializeConfig(&cfg, nil); err != nil {
		return nil, err
	}
	return &cfg, nil
}
