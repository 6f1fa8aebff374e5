// Package match holds matcher result value objects.
package match

import "github.com/lumina-cloud/taxotag/internal/domain/taxonomy"

// Result is a single qualifying leaf from the percentile multi-matcher.
// It carries both raw signals, not just the combined score, so downstream
// consumers can inspect either.
type Result struct {
	path       taxonomy.Path
	similarity float64
	rank       float64
}

// New creates a match result. rank is the weak percentile rank in [0, 100].
func New(path taxonomy.Path, similarity, rank float64) Result {
	return Result{path: path, similarity: similarity, rank: rank}
}

// Path returns the matched leaf path.
func (r *Result) Path() taxonomy.Path { return r.path }

// Similarity returns the raw cosine similarity.
func (r *Result) Similarity() float64 { return r.similarity }

// Rank returns the weak percentile rank (0-100).
func (r *Result) Rank() float64 { return r.rank }

// Score returns the combined score similarity * rank / 100 used for
// threshold filtering.
func (r *Result) Score() float64 { return r.similarity * r.rank / 100 }

// Report carries traversal observability counters. Comparisons skipped on
// dimension mismatch are counted rather than failing the traversal.
type Report struct {
	// Scored is the number of nodes whose similarity was computed.
	Scored int
	// Skipped is the number of comparisons dropped on dimension mismatch.
	Skipped int
}
