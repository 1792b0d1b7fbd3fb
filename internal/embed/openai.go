package embed

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAI embeds through any OpenAI-compatible embeddings endpoint: the
// hosted API, or local servers (Ollama, llama.cpp, vLLM) via BaseURL.
type OpenAI struct {
	embedder embeddings.Embedder
	model    string
	dim      int
}

// NewOpenAI builds the provider from a config snapshot.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	token := cfg.APIKey
	if token == "" && cfg.BaseURL != "" {
		// Local OpenAI-compatible servers ignore the token, but the
		// client refuses to construct without one.
		token = "none"
	}
	opts := []openai.Option{
		openai.WithEmbeddingModel(cfg.Model),
	}
	if token != "" {
		opts = append(opts, openai.WithToken(token))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding client: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return &OpenAI{embedder: embedder, model: cfg.Model, dim: cfg.Dimension}, nil
}

func (o *OpenAI) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := o.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return checkDimension(vec, o.dim)
}

// EmbedImage submits the image as a base64 data URI through the embeddings
// input, which multimodal OpenAI-compatible servers accept.
func (o *OpenAI) EmbedImage(ctx context.Context, data []byte, mime string) ([]float32, error) {
	if mime == "" {
		mime = "application/octet-stream"
	}
	uri := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(data))
	vec, err := o.embedder.EmbedQuery(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}
	return checkDimension(vec, o.dim)
}

func (o *OpenAI) Model() string {
	return o.model
}
