package tagging

import (
	"context"
	"math"

	"github.com/lumina-cloud/taxotag/internal/domain"
	domtax "github.com/lumina-cloud/taxotag/internal/domain/taxonomy"
	"github.com/lumina-cloud/taxotag/internal/domain/vector"
)

// --- Mocks ---

type mockEmbedder struct {
	result domain.EmbeddingResult
	err    error
	texts  []string
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.texts = append(m.texts, text)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

type mockImageEmbedder struct {
	result domain.EmbeddingResult
	err    error
	refs   []string
}

func (m *mockImageEmbedder) EmbedImage(_ context.Context, ref string) (domain.EmbeddingResult, error) {
	m.refs = append(m.refs, ref)
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	return m.result, nil
}

type mockFetcher struct {
	dataURL string
	err     error
	calls   int
}

func (m *mockFetcher) FetchImage(_ context.Context, _, _ string) (string, error) {
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return m.dataURL, nil
}

// --- Fixtures ---

// vecWithSim returns a unit vector whose cosine similarity against
// the query vector {1, 0} is exactly sim.
func vecWithSim(sim float64) vector.Vector {
	return vector.Vector{float32(sim), float32(math.Sqrt(1 - sim*sim))}
}

// categoryTree: Tops{T-Shirt, Blouse}, Bottoms{Jeans}, scored so a {1,0}
// query descends Tops -> T-Shirt.
func categoryTree() *domtax.Tree {
	roots := []*domtax.Node{
		domtax.NewInternal("Tops", []*domtax.Node{
			domtax.NewLeaf("T-Shirt", vecWithSim(0.9)),
			domtax.NewLeaf("Blouse", vecWithSim(0.5)),
		}, vecWithSim(0.8)),
		domtax.NewInternal("Bottoms", []*domtax.Node{
			domtax.NewLeaf("Jeans", vecWithSim(0.3)),
		}, vecWithSim(0.2)),
	}
	return domtax.NewTree("categories", roots, domain.ProfileBaseline, domtax.LabelEmbedding)
}

// sleeveTree: a flat attribute group where Long scores highest for {1, 0}.
func sleeveTree() *domtax.Tree {
	roots := []*domtax.Node{
		domtax.NewLeaf("Long", vecWithSim(0.8)),
		domtax.NewLeaf("Short", vecWithSim(0.4)),
		domtax.NewLeaf("Sleeveless", vecWithSim(0.1)),
	}
	return domtax.NewTree("attribute:sleeve", roots, domain.ProfileFast, domtax.PathEmbedding)
}
