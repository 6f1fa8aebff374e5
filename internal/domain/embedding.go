package domain

import (
	"context"
	"fmt"
)

// Embedder is the shared text vectorization contract between layers.
type Embedder interface {
	Embed(ctx context.Context, text string) (EmbeddingResult, error)
}

// ImageEmbedder vectorizes an image supplied as a data URL or remote URL.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, imageRef string) (EmbeddingResult, error)
}

// HealthChecker verifies embedding provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// EmbeddingResult carries the embedding vector and token usage through the decorator chain.
type EmbeddingResult struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Profile identifies an embedding model family. Vectors from different
// profiles live in different semantic spaces and must never be compared.
type Profile string

const (
	// ProfileBaseline is the general-purpose image/text model.
	ProfileBaseline Profile = "baseline"
	// ProfileFast is the fashion-tuned model used for attribute matching.
	ProfileFast Profile = "fast"
	// ProfileMultilingual handles non-English catalog text.
	ProfileMultilingual Profile = "multilingual"
)

// ParseProfile resolves a profile name. Resolution happens once at
// composition time, never per call.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfileBaseline, ProfileFast, ProfileMultilingual:
		return Profile(s), nil
	}
	return "", fmt.Errorf("unknown embedding profile %q", s)
}

// EmbedderSet is a pair of providers resolved for one profile.
type EmbedderSet struct {
	Profile Profile
	Text    Embedder
	Image   ImageEmbedder
}
