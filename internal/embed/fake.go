package embed

import (
	"context"
	"hash/fnv"
)

// Fake is a deterministic in-process generator. The same payload always
// yields the same vector, which makes it useful both as the "fake" provider
// for local development and as a test double. Function fields, when set,
// override the deterministic behavior.
type Fake struct {
	Dim int

	EmbedTextFunc  func(ctx context.Context, text string) ([]float32, error)
	EmbedImageFunc func(ctx context.Context, data []byte, mime string) ([]float32, error)
}

// NewFake returns a Fake with the given vector width. A non-positive dim
// falls back to 384.
func NewFake(dim int) *Fake {
	if dim <= 0 {
		dim = 384
	}
	return &Fake{Dim: dim}
}

func (f *Fake) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if f.EmbedTextFunc != nil {
		return f.EmbedTextFunc(ctx, text)
	}
	return f.vectorFor([]byte(text)), nil
}

func (f *Fake) EmbedImage(ctx context.Context, data []byte, mime string) ([]float32, error) {
	if f.EmbedImageFunc != nil {
		return f.EmbedImageFunc(ctx, data, mime)
	}
	return f.vectorFor(data), nil
}

func (f *Fake) Model() string {
	return "fake"
}

// vectorFor expands an FNV-1a seed through a linear congruential generator
// into Dim values in [-1, 1).
func (f *Fake) vectorFor(payload []byte) []float32 {
	h := fnv.New64a()
	h.Write(payload)
	state := h.Sum64()

	vec := make([]float32, f.Dim)
	for i := range vec {
		state = state*6364136223846793005 + 1442695040888963407
		vec[i] = float32(state%2000)/1000.0 - 1.0
	}
	return vec
}
