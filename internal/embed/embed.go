// Package embed turns text and image payloads into fixed-length vectors.
//
// A Generator is constructed from a Config snapshot. The snapshot travels
// inside job metadata so a job keeps embedding with the provider it was
// created with, even when the daemon configuration changes afterwards.
// Credentials are never part of the snapshot; they are resolved from the
// daemon environment when the generator is built.
package embed

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces embedding vectors. Implementations may call remote
// services and should honor ctx cancellation.
type Generator interface {
	// EmbedText embeds a single text payload.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedImage embeds raw image bytes with the given MIME type.
	EmbedImage(ctx context.Context, data []byte, mime string) ([]float32, error)

	// Model names the underlying embedding model, for logs and reports.
	Model() string
}

// Config is the provider snapshot frozen into job metadata.
type Config struct {
	Provider          string  `json:"provider" yaml:"provider"`
	BaseURL           string  `json:"baseUrl,omitempty" yaml:"base_url"`
	Model             string  `json:"model" yaml:"model"`
	Dimension         int     `json:"dimension,omitempty" yaml:"dimension"`
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty" yaml:"requests_per_second"`

	// APIKey is resolved at generator construction and excluded from
	// JSON so it never lands in the job store.
	APIKey string `json:"-" yaml:"api_key"`
}

// NewGenerator builds a Generator for cfg.Provider, wrapped with a rate
// limiter when cfg.RequestsPerSecond is set.
func NewGenerator(cfg Config) (Generator, error) {
	var (
		gen Generator
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", "openai", "openai-compatible":
		gen, err = NewOpenAI(cfg)
	case "fake", "mock":
		gen = NewFake(cfg.Dimension)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return Limit(gen, cfg.RequestsPerSecond), nil
}

// checkDimension enforces the configured vector width when one is set.
func checkDimension(vec []float32, want int) ([]float32, error) {
	if want > 0 && len(vec) != want {
		return nil, fmt.Errorf("embedding failed: provider returned %d dimensions, expected %d", len(vec), want)
	}
	return vec, nil
}
