package embcache

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lumina-cloud/taxotag/internal/db"
	"github.com/lumina-cloud/taxotag/internal/domain"
)

func TestEmbed_CacheMiss(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding:    []float32{0.1, 0.2, 0.3},
		PromptTokens: 10,
		TotalTokens:  10,
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}

	var setCalled bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCalled = true
		return nil
	}

	result, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.1 {
		t.Fatalf("unexpected vector: %v", result.Embedding)
	}
	if result.TotalTokens != 10 {
		t.Fatalf("expected TotalTokens=10, got %d", result.TotalTokens)
	}
	if !setCalled {
		t.Fatal("expected SET to be called for cache put")
	}
}

func TestEmbed_CacheHit(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2, 0.3},
	}}
	ce, ms := newTestCachedEmbedder(t, inner)
	ctx := context.Background()

	cached := vectorToCacheBytes([]float32{0.4, 0.5, 0.6})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.Embed(ctx, "test text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Embedding) != 3 || result.Embedding[0] != 0.4 {
		t.Fatalf("expected cached vector, got: %v", result.Embedding)
	}
	if result.TotalTokens != 0 {
		t.Fatalf("expected TotalTokens=0 on cache hit, got %d", result.TotalTokens)
	}
	if inner.calls != 0 {
		t.Fatalf("inner must not be called on hit, got %d calls", inner.calls)
	}
}

func TestEmbed_InnerError(t *testing.T) {
	inner := &mockEmbedder{err: errors.New("provider down")}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}

	if _, err := ce.Embed(context.Background(), "test text"); err == nil {
		t.Fatal("expected error from inner embedder")
	}
}

func TestEmbed_AbsentResultNotCached(t *testing.T) {
	inner := &mockEmbedder{result: domain.EmbeddingResult{}}
	ce, ms := newTestCachedEmbedder(t, inner)

	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return nil, db.ErrKeyNotFound
	}
	var setCalled bool
	ms.setFn = func(_ context.Context, _ string, _ []byte) error {
		setCalled = true
		return nil
	}

	if _, err := ce.Embed(context.Background(), "x"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if setCalled {
		t.Fatal("absent embeddings must not be cached")
	}
}

func TestEmbedImage_CacheHit(t *testing.T) {
	inner := &mockImageEmbedder{result: domain.EmbeddingResult{
		Embedding: []float32{0.1, 0.2},
	}}
	ce, ms := newTestCachedImageEmbedder(t, inner)

	cached := vectorToCacheBytes([]float32{0.7, 0.8})
	ms.getFn = func(_ context.Context, _ string) ([]byte, error) {
		return cached, nil
	}

	result, err := ce.EmbedImage(context.Background(), "https://shop.example/img.jpg")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Embedding[0] != 0.7 {
		t.Fatalf("expected cached vector, got %v", result.Embedding)
	}
	if inner.calls != 0 {
		t.Fatalf("inner must not be called on hit")
	}
}

func TestCacheKey_SeparatesKindsAndProfiles(t *testing.T) {
	textKey := (&cache{profile: domain.ProfileBaseline}).cacheKey("text", "same input")
	imageKey := (&cache{profile: domain.ProfileBaseline}).cacheKey("image", "same input")
	fastKey := (&cache{profile: domain.ProfileFast}).cacheKey("text", "same input")

	if textKey == imageKey {
		t.Error("text and image keys must differ")
	}
	if textKey == fastKey {
		t.Error("keys must differ across profiles")
	}
	for _, k := range []string{textKey, imageKey, fastKey} {
		if !strings.HasPrefix(k, cacheKeyPrefix) {
			t.Errorf("key %q missing prefix %q", k, cacheKeyPrefix)
		}
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.1, -2.5, 0, 1e-7}
	out, err := bytesToVector(vectorToCacheBytes(vec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range vec {
		if out[i] != vec[i] {
			t.Errorf("round trip[%d] = %v, want %v", i, out[i], vec[i])
		}
	}
}

func TestBytesToVector_Invalid(t *testing.T) {
	if _, err := bytesToVector([]byte{1, 2, 3}); err == nil {
		t.Fatal("expected error for truncated data")
	}
}
