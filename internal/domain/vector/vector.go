// Package vector holds the embedding vector math shared by tree building,
// matching, and blending. Similarity is cosine over independently
// normalized inputs, so stored and query vectors may arrive at any scale.
package vector

import (
	"fmt"
	"math"

	"github.com/lumina-cloud/taxotag/internal/domain"
)

// Vector is an embedding vector. Float32 matches the provider wire format;
// similarity math runs in float64.
type Vector []float32

// Normalized returns an L2-normalized copy. A zero vector normalizes to a
// copy of itself: dividing by a zero norm would produce NaNs, and a zero
// vector carries no direction to preserve.
func (v Vector) Normalized() Vector {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}

	out := make(Vector, len(v))
	if sum == 0 {
		copy(out, v)
		return out
	}

	norm := math.Sqrt(sum)
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// Cosine returns the cosine similarity of a and b, each normalized
// independently first. Vectors of different lengths cannot be compared;
// the caller decides whether to skip or fail.
func Cosine(a, b Vector) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(a), len(b))
	}

	na := a.Normalized()
	nb := b.Normalized()

	var dot float64
	for i := range na {
		dot += float64(na[i]) * float64(nb[i])
	}
	return dot, nil
}

// Blend averages an image vector and a text vector element-wise. Either
// side may be nil, in which case the other passes through as a copy; both
// nil means there is nothing to match on.
func Blend(image, text Vector) (Vector, error) {
	switch {
	case image == nil && text == nil:
		return nil, fmt.Errorf("blend: no input vectors")
	case image == nil:
		out := make(Vector, len(text))
		copy(out, text)
		return out, nil
	case text == nil:
		out := make(Vector, len(image))
		copy(out, image)
		return out, nil
	}

	if len(image) != len(text) {
		return nil, fmt.Errorf("%w: %d vs %d", domain.ErrDimensionMismatch, len(image), len(text))
	}

	out := make(Vector, len(image))
	for i := range image {
		out[i] = (image[i] + text[i]) / 2
	}
	return out, nil
}
