package taxonomy

import (
	"errors"
	"sort"

	"github.com/lumina-cloud/taxotag/internal/domain"
	"github.com/lumina-cloud/taxotag/internal/domain/match"
	domtax "github.com/lumina-cloud/taxotag/internal/domain/taxonomy"
	"github.com/lumina-cloud/taxotag/internal/domain/vector"
)

// The matchers are pure functions over an immutable tree and a query
// vector. The same tree may be matched from any number of goroutines
// concurrently; nothing here writes shared state.

// score computes similarity between the query and a node embedding.
// A dimension mismatch is counted in the report and the node is skipped,
// never scored as -1 (which would bias rankings).
func score(query vector.Vector, n *domtax.Node, rep *match.Report) (float64, bool) {
	if !n.HasEmbedding() {
		return 0, false
	}
	sim, err := vector.Cosine(query, n.Embedding())
	if err != nil {
		if errors.Is(err, domain.ErrDimensionMismatch) {
			rep.Skipped++
		}
		return 0, false
	}
	rep.Scored++
	return sim, true
}

// GreedyMatch descends the tree one level at a time, picking the single
// most similar scorable child at each level, until it reaches a leaf or a
// level with no scorable children. Ties keep the first child in insertion
// order. A single top-down pass: a locally optimal early choice can be
// globally suboptimal, which is the accepted trade-off for O(depth) cost.
//
// Returns the accumulated path, possibly empty when the root level has no
// scorable children. Never an error: partial results over no results.
func GreedyMatch(tree *domtax.Tree, query vector.Vector) (domtax.Path, match.Report) {
	var (
		path domtax.Path
		rep  match.Report
	)

	level := tree.Roots()
	for len(level) > 0 {
		var (
			best     *domtax.Node
			bestSim  float64
			anyScore bool
		)
		for _, child := range level {
			sim, ok := score(query, child, &rep)
			if !ok {
				continue
			}
			if !anyScore || sim > bestSim {
				best = child
				bestSim = sim
				anyScore = true
			}
		}
		if !anyScore {
			return path, rep
		}

		path = append(path, best.Label())
		if best.Kind() == domtax.Leaf {
			return path, rep
		}
		level = best.Children()
	}

	return path, rep
}

// BestLeaf visits every leaf in the tree and returns the path of the
// globally most similar one. Traversal is depth-first in child insertion
// order; strictly-greater comparison keeps the first seen on ties. An empty
// path is returned when no leaf is scorable.
func BestLeaf(tree *domtax.Tree, query vector.Vector) (domtax.Path, match.Report) {
	var (
		rep     match.Report
		best    domtax.Path
		bestSim float64
		found   bool
	)

	var walk func(n *domtax.Node, path domtax.Path)
	walk = func(n *domtax.Node, path domtax.Path) {
		path = append(path, n.Label())
		if n.Kind() == domtax.Leaf {
			sim, ok := score(query, n, &rep)
			if ok && (!found || sim > bestSim) {
				best = path.Clone()
				bestSim = sim
				found = true
			}
			return
		}
		for _, child := range n.Children() {
			walk(child, path)
		}
	}
	for _, root := range tree.Roots() {
		walk(root, nil)
	}

	return best, rep
}

// scoredLeaf is a collected (path, similarity) pair from a full traversal.
type scoredLeaf struct {
	path domtax.Path
	sim  float64
}

// collectLeaves gathers every scorable leaf depth-first in insertion order.
func collectLeaves(tree *domtax.Tree, query vector.Vector, rep *match.Report) []scoredLeaf {
	var collected []scoredLeaf

	var walk func(n *domtax.Node, path domtax.Path)
	walk = func(n *domtax.Node, path domtax.Path) {
		path = append(path, n.Label())
		if n.Kind() == domtax.Leaf {
			if sim, ok := score(query, n, rep); ok {
				collected = append(collected, scoredLeaf{path: path.Clone(), sim: sim})
			}
			return
		}
		for _, child := range n.Children() {
			walk(child, path)
		}
	}
	for _, root := range tree.Roots() {
		walk(root, nil)
	}

	return collected
}

// MultiMatch visits every leaf, ranks each similarity by its weak
// percentile within the full collected set, and returns every leaf whose
// combined score (similarity * rank / 100) clears the threshold.
//
// Weak percentile: rank(x) = 100 * count(collected <= x) / count(collected).
// The maximum always ranks 100 and duplicates share an inclusively counted
// rank. The convention is load-bearing: it changes which borderline leaves
// clear the threshold. The multiplicative formula is a tunable inherited
// from production use, not a calibrated law.
//
// The threshold is passed through unvalidated; a negative value simply
// admits everything.
func MultiMatch(tree *domtax.Tree, query vector.Vector, threshold float64) ([]match.Result, match.Report) {
	var rep match.Report

	collected := collectLeaves(tree, query, &rep)
	if len(collected) == 0 {
		return nil, rep
	}

	sorted := make([]float64, len(collected))
	for i, c := range collected {
		sorted[i] = c.sim
	}
	sort.Float64s(sorted)

	var results []match.Result
	for _, c := range collected {
		// Upper bound over the sorted copy: exact equality is safe because
		// ranks compare a value against copies of itself and its peers.
		leq := sort.Search(len(sorted), func(i int) bool { return sorted[i] > c.sim })
		rank := 100 * float64(leq) / float64(len(sorted))

		if c.sim*rank/100 >= threshold {
			results = append(results, match.New(c.path, c.sim, rank))
		}
	}

	return results, rep
}
