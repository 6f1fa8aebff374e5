package taxonomy

import (
	"context"

	"github.com/lumina-cloud/taxotag/internal/domain"
)

// Embedder vectorizes label text during tree construction.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
