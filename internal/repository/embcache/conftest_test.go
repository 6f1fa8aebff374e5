package embcache

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/domain"
)

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

type mockImageEmbedder struct {
	result domain.EmbeddingResult
	err    error
	calls  int
}

func (m *mockImageEmbedder) EmbedImage(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

type mockStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, nil
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func newTestCachedEmbedder(t *testing.T, inner domain.Embedder) (*CachedEmbedder, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(inner, ms, domain.ProfileBaseline, nil, zap.NewNop()), ms
}

func newTestCachedImageEmbedder(t *testing.T, inner domain.ImageEmbedder) (*CachedImageEmbedder, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return NewImage(inner, ms, domain.ProfileBaseline, nil, zap.NewNop()), ms
}
