package tagging

import (
	"context"

	"github.com/lumina-cloud/taxotag/internal/domain"
)

// Embedder vectorizes text.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// ImageEmbedder vectorizes a fetched image.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, imageRef string) (domain.EmbeddingResult, error)
}

// ImageFetcher downloads an item image and returns it as a data URL.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL, pageURL string) (string, error)
}
