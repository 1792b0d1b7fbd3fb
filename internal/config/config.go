// Package config loads daemon and CLI settings from the vecimport config
// file, with environment variables taking precedence over file values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/openvectors/vecimport/internal/embed"
)

// RedisConfig holds the job store connection settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password,omitempty"`
}

// ServerConfig holds the daemon settings.
type ServerConfig struct {
	// Addr is the HTTP listen address.
	Addr string `yaml:"addr"`

	// MaxConcurrent bounds how many jobs process at once.
	MaxConcurrent int `yaml:"max_concurrent,omitempty"`

	// ExportDir is where file-export jobs write their output.
	ExportDir string `yaml:"export_dir,omitempty"`
}

// Config is the full vecimport configuration.
type Config struct {
	Redis     RedisConfig  `yaml:"redis"`
	Server    ServerConfig `yaml:"server"`
	Embedding embed.Config `yaml:"embedding"`
	LogLevel  string       `yaml:"log_level,omitempty"`
}

// Dir returns the vecimport config directory, honoring the
// VECIMPORT_CONFIG_DIR override.
func Dir() string {
	if dir := os.Getenv("VECIMPORT_CONFIG_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".vecimport"
	}
	return filepath.Join(home, ".vecimport")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{URL: "redis://localhost:6379"},
		Server: ServerConfig{
			Addr:          "127.0.0.1:8787",
			MaxConcurrent: 4,
			ExportDir:     filepath.Join(Dir(), "exports"),
		},
		Embedding: embed.Config{
			Provider: "openai",
			Model:    "text-embedding-3-small",
		},
		LogLevel: "info",
	}
}

// Load reads the config file at path, or the default location when path is
// empty. A missing file is not an error; built-in defaults are used.
// Environment variables override whatever the file provides.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = DefaultPath()
	}

	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			applyEnv(cfg)
			return cfg, nil
		}
		return nil, fmt.Errorf("could not read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("could not parse config %s: %w", path, err)
	}

	applyEnv(cfg)

	if cfg.Redis.URL == "" {
		return nil, fmt.Errorf("config %s is invalid: missing redis url", path)
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config) {
	setIfEnv(&cfg.Redis.URL, "REDIS_URL")
	setIfEnv(&cfg.Redis.Password, "REDIS_PASSWORD")
	setIfEnv(&cfg.Server.Addr, "VECIMPORT_ADDR")
	setIfEnv(&cfg.Server.ExportDir, "VECIMPORT_EXPORT_DIR")
	setIfEnv(&cfg.Embedding.Provider, "VECIMPORT_EMBEDDING_PROVIDER")
	setIfEnv(&cfg.Embedding.Model, "VECIMPORT_EMBEDDING_MODEL")
	setIfEnv(&cfg.Embedding.BaseURL, "VECIMPORT_OPENAI_BASE_URL")
	setIfEnv(&cfg.Embedding.APIKey, "OPENAI_API_KEY")
	setIfEnv(&cfg.Embedding.APIKey, "VECIMPORT_OPENAI_API_KEY")
	setIfEnv(&cfg.LogLevel, "VECIMPORT_LOG_LEVEL")

	if raw := os.Getenv("VECIMPORT_MAX_CONCURRENT"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			cfg.Server.MaxConcurrent = n
		}
	}
}

// setIfEnv assigns the environment value when set. Earlier calls for the
// same target lose to later ones, so list overrides from most generic to
// most specific.
func setIfEnv(target *string, key string) {
	if value := os.Getenv(key); value != "" {
		*target = value
	}
}
