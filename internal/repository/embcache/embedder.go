// Package embcache caches embeddings in a key-value store. Taxonomy labels
// repeat across rebuilds and catalog items repeat across runs; caching cuts
// most provider round-trips.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/db"
	"github.com/lumina-cloud/taxotag/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// store is the consumer interface for the embedding cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// cache holds the shared pieces of the text and image decorators.
type cache struct {
	store      store
	profile    domain.Profile
	cacheTotal *prometheus.CounterVec
	logger     *zap.Logger
}

// CachedEmbedder caches text embeddings.
type CachedEmbedder struct {
	cache
	inner domain.Embedder
}

// CachedImageEmbedder caches image embeddings. Keys hash the image
// reference, not the bytes: the same URL re-fetched embeds identically for
// cache purposes.
type CachedImageEmbedder struct {
	cache
	inner domain.ImageEmbedder
}

// New creates a caching text-embedder decorator. cacheTotal is a counter
// vec with labels "kind" and "result", passed explicitly.
func New(
	inner domain.Embedder, s store, profile domain.Profile,
	cacheTotal *prometheus.CounterVec, logger *zap.Logger,
) *CachedEmbedder {
	return &CachedEmbedder{
		cache: cache{store: s, profile: profile, cacheTotal: cacheTotal, logger: logger},
		inner: inner,
	}
}

// NewImage creates a caching image-embedder decorator.
func NewImage(
	inner domain.ImageEmbedder, s store, profile domain.Profile,
	cacheTotal *prometheus.CounterVec, logger *zap.Logger,
) *CachedImageEmbedder {
	return &CachedImageEmbedder{
		cache: cache{store: s, profile: profile, cacheTotal: cacheTotal, logger: logger},
		inner: inner,
	}
}

// Embed returns a cached embedding or calls the inner embedder.
// Cache hit: TotalTokens = 0 (no real tokens consumed).
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.cacheKey("text", text)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("text", "hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("text", "miss")

	result, err := c.inner.Embed(ctx, text)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}

	c.putToCache(ctx, key, result.Embedding)
	return result, nil
}

// EmbedImage returns a cached embedding or calls the inner embedder.
func (c *CachedImageEmbedder) EmbedImage(ctx context.Context, imageRef string) (domain.EmbeddingResult, error) {
	key := c.cacheKey("image", imageRef)

	if vec, ok := c.getFromCache(ctx, key); ok {
		c.incCache("image", "hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	c.incCache("image", "miss")

	result, err := c.inner.EmbedImage(ctx, imageRef)
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed image: %w", err)
	}

	c.putToCache(ctx, key, result.Embedding)
	return result, nil
}

func (c *cache) incCache(kind, result string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(kind, result).Inc()
	}
}

// cacheKey hashes the input under the profile namespace. Profiles live in
// different vector spaces, so the same text caches separately per profile.
func (c *cache) cacheKey(kind, input string) string {
	h := sha256.Sum256([]byte(input))
	return cacheKeyPrefix + string(c.profile) + ":" + kind + ":" + hex.EncodeToString(h[:])
}

func (c *cache) getFromCache(ctx context.Context, key string) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	if len(data) == 0 {
		return nil, false
	}

	vec, err := bytesToVector(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}

	return vec, true
}

func (c *cache) putToCache(ctx context.Context, key string, vec []float32) {
	if len(vec) == 0 {
		// Absent embeddings are not cached; the provider may recover.
		return
	}
	data := vectorToCacheBytes(vec)
	if err := c.store.Set(ctx, key, data); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func vectorToCacheBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding cache data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
