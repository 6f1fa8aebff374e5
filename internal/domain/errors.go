package domain

import "errors"

// Sentinel errors shared across layers.
var (
	// ErrDimensionMismatch signals vectors of differing length.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrTreeNotFound signals a request for a taxonomy tree that was not loaded.
	ErrTreeNotFound = errors.New("taxonomy tree not found")
	// ErrEmbeddingQuotaExceeded signals an exhausted embedding token budget.
	ErrEmbeddingQuotaExceeded = errors.New("embedding quota exceeded")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrEmbeddingUnavailable signals that no query vector could be produced
	// for an item (image and text embeddings both absent).
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")
)
