package embed

import (
	"context"

	"golang.org/x/time/rate"
)

// Limited throttles an inner Generator so bulk imports cannot saturate an
// embedding endpoint. Waits respect ctx cancellation.
type Limited struct {
	inner   Generator
	limiter *rate.Limiter
}

// Limit wraps gen with a requests-per-second cap. A non-positive rps
// returns gen unchanged.
func Limit(gen Generator, rps float64) Generator {
	if rps <= 0 {
		return gen
	}
	return &Limited{inner: gen, limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

func (l *Limited) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.EmbedText(ctx, text)
}

func (l *Limited) EmbedImage(ctx context.Context, data []byte, mime string) ([]float32, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return l.inner.EmbedImage(ctx, data, mime)
}

func (l *Limited) Model() string {
	return l.inner.Model()
}
