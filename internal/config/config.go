package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the dashboard application configuration, loaded from a single
// YAML file.
type Config struct {
	// ServerURL is the agent server websocket endpoint.
	ServerURL string `yaml:"server_url"`

	// APIKey is forwarded to the agent server with every chat frame.
	APIKey string `yaml:"api_key"`

	// UserID enables the remote per-user layout store and memory tools.
	UserID string `yaml:"user_id"`

	// RedisURL is the remote layout store; empty disables it.
	RedisURL string `yaml:"redis_url"`

	// DataDir holds the local layout fallback and other app state.
	DataDir string `yaml:"data_dir"`

	SaveDebounceMs       int   `yaml:"save_debounce_ms"`
	HistoryLimit         int   `yaml:"history_limit"`
	IncludeSystemContext *bool `yaml:"include_system_context"`
}

func DefaultConfig() Config {
	return Config{
		ServerURL:      "ws://localhost:8765",
		DataDir:        defaultDataDir(),
		SaveDebounceMs: 800,
		HistoryLimit:   40,
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return ".agentdash"
	}
	return filepath.Join(home, ".agentdash")
}

// WithDefaults fills unset fields.
func (c Config) WithDefaults() Config {
	out := c
	def := DefaultConfig()
	if strings.TrimSpace(out.ServerURL) == "" {
		out.ServerURL = def.ServerURL
	}
	if strings.TrimSpace(out.DataDir) == "" {
		out.DataDir = def.DataDir
	}
	if out.SaveDebounceMs <= 0 {
		out.SaveDebounceMs = def.SaveDebounceMs
	}
	if out.HistoryLimit <= 0 {
		out.HistoryLimit = def.HistoryLimit
	}
	if out.IncludeSystemContext == nil {
		v := true
		out.IncludeSystemContext = &v
	}
	return out
}

// Load reads the config file at path. A missing file yields the defaults;
// the API key may always come from the environment instead.
func Load(configPath string) (Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		path = filepath.Join(defaultDataDir(), "config.yaml")
	}
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return Config{}, err
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		cfg.APIKey = strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	}
	return cfg.WithDefaults(), nil
}

// Validate reports configuration the app cannot start with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.ServerURL) == "" {
		return errors.New("server_url is required")
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return errors.New("api_key is required (config file or ANTHROPIC_API_KEY)")
	}
	return nil
}
