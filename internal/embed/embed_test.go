package embed

import (
	"context"
	"errors"
	"testing"
)

func TestFakeDeterministic(t *testing.T) {
	fake := NewFake(16)
	ctx := context.Background()

	first, err := fake.EmbedText(ctx, "hello world")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	second, err := fake.EmbedText(ctx, "hello world")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}

	if len(first) != 16 {
		t.Fatalf("vector has %d dims, want 16", len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same text produced different vectors at dim %d", i)
		}
	}

	other, err := fake.EmbedText(ctx, "goodbye world")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	same := true
	for i := range first {
		if first[i] != other[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("different texts produced identical vectors")
	}
}

func TestFakeBounds(t *testing.T) {
	fake := NewFake(64)
	vec, err := fake.EmbedText(context.Background(), "bounds")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	for i, v := range vec {
		if v < -1 || v >= 1 {
			t.Errorf("dim %d out of range: %v", i, v)
		}
	}
}

func TestFakeFuncOverride(t *testing.T) {
	wantErr := errors.New("provider down")
	fake := NewFake(4)
	fake.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
		return nil, wantErr
	}

	_, err := fake.EmbedText(context.Background(), "anything")
	if !errors.Is(err, wantErr) {
		t.Fatalf("override not used, err = %v", err)
	}
}

func TestLimitPassthrough(t *testing.T) {
	fake := NewFake(4)
	if got := Limit(fake, 0); got != Generator(fake) {
		t.Error("zero rps should return the generator unchanged")
	}
	if got := Limit(fake, -1); got != Generator(fake) {
		t.Error("negative rps should return the generator unchanged")
	}
}

func TestLimitDelegates(t *testing.T) {
	fake := NewFake(4)
	limited := Limit(fake, 1000)

	vec, err := limited.EmbedText(context.Background(), "through the limiter")
	if err != nil {
		t.Fatalf("embed failed: %v", err)
	}
	if len(vec) != 4 {
		t.Errorf("vector has %d dims, want 4", len(vec))
	}
	if limited.Model() != "fake" {
		t.Errorf("model = %q, want fake", limited.Model())
	}
}

func TestLimitCancelledContext(t *testing.T) {
	fake := NewFake(4)
	limited := Limit(fake, 0.001)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := limited.EmbedText(ctx, "never"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestNewGeneratorDispatch(t *testing.T) {
	gen, err := NewGenerator(Config{Provider: "fake", Dimension: 8})
	if err != nil {
		t.Fatalf("fake provider failed: %v", err)
	}
	if gen.Model() != "fake" {
		t.Errorf("model = %q", gen.Model())
	}

	if _, err := NewGenerator(Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestCheckDimension(t *testing.T) {
	vec := []float32{1, 2, 3}

	if _, err := checkDimension(vec, 3); err != nil {
		t.Errorf("matching dimension rejected: %v", err)
	}
	if _, err := checkDimension(vec, 0); err != nil {
		t.Errorf("unset dimension rejected: %v", err)
	}
	if _, err := checkDimension(vec, 4); err == nil {
		t.Error("mismatched dimension accepted")
	}
}
