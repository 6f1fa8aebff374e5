// Package report aggregates per-item tag similarities into top tags per
// category. Rows come from offline scoring runs; the service only ranks
// and filters, it never embeds.
package report

import (
	"sort"

	"go.uber.org/zap"
)

// Row is one scored (tag, category) pair.
type Row struct {
	Tag        string
	Category   string
	Similarity float64
}

// RankedTag is a tag that cleared the floor and the score threshold.
type RankedTag struct {
	Tag        string
	Similarity float64
	Percentile float64
	Score      float64
}

// Service ranks tag similarity rows into top tags per category.
type Service struct {
	similarityFloor float64
	threshold       float64
	logger          *zap.Logger
}

// New creates a report service. similarityFloor drops weak raw similarities
// before ranking; threshold filters the combined score after.
func New(similarityFloor, threshold float64, logger *zap.Logger) *Service {
	return &Service{
		similarityFloor: similarityFloor,
		threshold:       threshold,
		logger:          logger,
	}
}

// TopTags groups rows by category, ranks each similarity by its weak
// percentile within the category (count(<= x) / n over rows that cleared
// the floor), scores it as similarity * percentile, and returns the tags
// whose score clears the threshold, sorted by score descending.
//
// Categories where nothing qualifies are absent from the result. The floor
// applies before ranking, so dropped rows do not depress percentiles of
// the surviving ones.
func (s *Service) TopTags(rows []Row) map[string][]RankedTag {
	byCategory := make(map[string][]Row)
	var order []string
	for _, r := range rows {
		if r.Similarity <= s.similarityFloor {
			continue
		}
		if _, seen := byCategory[r.Category]; !seen {
			order = append(order, r.Category)
		}
		byCategory[r.Category] = append(byCategory[r.Category], r)
	}

	result := make(map[string][]RankedTag, len(byCategory))
	for _, category := range order {
		ranked := rankCategory(byCategory[category], s.threshold)
		if len(ranked) > 0 {
			result[category] = ranked
		}
	}

	s.logger.Debug("Top tags computed",
		zap.Int("rows", len(rows)),
		zap.Int("categories", len(result)),
	)

	return result
}

// rankCategory ranks one category's rows and keeps qualifying tags sorted
// by score descending. Sort is stable, ties keep input order.
func rankCategory(rows []Row, threshold float64) []RankedTag {
	sorted := make([]float64, len(rows))
	for i, r := range rows {
		sorted[i] = r.Similarity
	}
	sort.Float64s(sorted)

	var ranked []RankedTag
	for _, r := range rows {
		leq := sort.Search(len(sorted), func(i int) bool { return sorted[i] > r.Similarity })
		pct := float64(leq) / float64(len(sorted))
		score := r.Similarity * pct

		if score > threshold {
			ranked = append(ranked, RankedTag{
				Tag:        r.Tag,
				Similarity: r.Similarity,
				Percentile: pct,
				Score:      score,
			})
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	return ranked
}
