// cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/openvectors/vecimport/internal/config"
	"github.com/openvectors/vecimport/internal/jobstore"
	"github.com/openvectors/vecimport/internal/queue"
)

// getEnvOrDefault returns the value of an environment variable or a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

var cfgFile string
var redisURL string
var redisPassword string
var verboseMode bool

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "vecimport",
	Short: "vecimport moves bulk data into Redis vector sets",
	Long: `A daemon and CLI for importing bulk data (CSV, JSON, pre-embedded
image vectors) into Redis vector sets. Each record is embedded and stored
as an individual element with attributes; imports run as background jobs
that can be paused, resumed and cancelled, with all job state held in
Redis so it survives restarts.`,
	Version: Version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.vecimport/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&redisURL, "redis-url", "", "Redis connection URL (or set REDIS_URL env)")
	rootCmd.PersistentFlags().StringVar(&redisPassword, "redis-password", "", "Redis password (or set REDIS_PASSWORD env)")
	rootCmd.PersistentFlags().BoolVarP(&verboseMode, "verbose", "v", false, "Enable debug logging")
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if redisURL != "" {
		cfg.Redis.URL = redisURL
	}
	if redisPassword != "" {
		cfg.Redis.Password = redisPassword
	}
	if verboseMode {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger builds the process logger from the configured level.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connectStore opens the job store or exits with a uniform error message.
func connectStore(ctx context.Context, cfg *config.Config) *jobstore.RedisStore {
	store, err := jobstore.Connect(ctx, cfg.Redis.URL, cfg.Redis.Password)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: could not connect to Redis at %s: %v\n", cfg.Redis.URL, err)
		os.Exit(1)
	}
	return store
}

// mustLoadConfig is connectStore's counterpart for configuration.
func mustLoadConfig() *config.Config {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// newQueueService wires the common store + service pair used by most
// commands.
func newQueueService(ctx context.Context) (*config.Config, *jobstore.RedisStore, *queue.Service) {
	cfg := mustLoadConfig()
	store := connectStore(ctx, cfg)
	return cfg, store, queue.NewService(store)
}
