// Package tagging orchestrates tag prediction for catalog items: fetch the
// item image, embed image and text per profile, blend, and match the blends
// against the category and attribute trees.
package tagging

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/domain"
	"github.com/lumina-cloud/taxotag/internal/domain/match"
	domtax "github.com/lumina-cloud/taxotag/internal/domain/taxonomy"
	"github.com/lumina-cloud/taxotag/internal/domain/vector"
	"github.com/lumina-cloud/taxotag/internal/metrics"
	uctax "github.com/lumina-cloud/taxotag/internal/usecase/taxonomy"
)

// Item is one catalog item to tag. Fields hold the raw text attributes
// (title, description, brand and so on) keyed by field name.
type Item struct {
	Fields   map[string]string
	ImageURL string
	PageURL  string
}

// Tag is one threshold-qualified attribute tag.
type Tag struct {
	Value      string
	Similarity float64
	Score      float64
}

// Prediction is the tagging result for one item. Any section may be empty
// when its blend could not be computed; Warnings explains what degraded.
type Prediction struct {
	Categories []string
	Attributes map[string]string
	Tags       map[string][]Tag
	Warnings   []string
}

// Service predicts tags for catalog items against prebuilt taxonomy trees.
// Trees are immutable after construction, so one Service is shared across
// requests without locking.
type Service struct {
	categoryTree   *domtax.Tree
	attributeTrees []*domtax.Tree

	category  domain.EmbedderSet
	attribute domain.EmbedderSet

	fetcher ImageFetcher

	textFields     []string
	textFieldsFull []string
	tagThreshold   float64

	logger *zap.Logger
}

// Config wires a tagging service.
type Config struct {
	CategoryTree   *domtax.Tree
	AttributeTrees []*domtax.Tree
	Category       domain.EmbedderSet
	Attribute      domain.EmbedderSet
	Fetcher        ImageFetcher
	TextFields     []string
	TextFieldsFull []string
	TagThreshold   float64
	Logger         *zap.Logger
}

// New creates a tagging service.
func New(cfg *Config) *Service {
	return &Service{
		categoryTree:   cfg.CategoryTree,
		attributeTrees: cfg.AttributeTrees,
		category:       cfg.Category,
		attribute:      cfg.Attribute,
		fetcher:        cfg.Fetcher,
		textFields:     cfg.TextFields,
		textFieldsFull: cfg.TextFieldsFull,
		tagThreshold:   cfg.TagThreshold,
		logger:         cfg.Logger,
	}
}

// Predict tags one item. Degradation order: a failed image fetch or image
// embedding falls back to text-only blends; a tree whose blend has neither
// side is skipped with a warning. Only when no tree could be matched at all
// does Predict fail, with domain.ErrEmbeddingUnavailable.
func (s *Service) Predict(ctx context.Context, item Item) (Prediction, error) {
	pred := Prediction{
		Attributes: make(map[string]string),
		Tags:       make(map[string][]Tag),
	}

	shortText := buildText(item.Fields, s.textFields)
	fullText := buildText(item.Fields, s.textFieldsFull)

	imageRef := s.fetchImage(ctx, item, &pred)

	categoryBlend := s.blend(ctx, s.category, imageRef, fullText, &pred)
	attributeBlend := s.blend(ctx, s.attribute, imageRef, shortText, &pred)

	if categoryBlend == nil && attributeBlend == nil {
		metrics.PredictionsTotal.WithLabelValues("error").Inc()
		return Prediction{}, fmt.Errorf("no embedding for item: %w", domain.ErrEmbeddingUnavailable)
	}

	if categoryBlend != nil {
		path, rep := runMatch(s.categoryTree, "greedy", func() (domtax.Path, match.Report) {
			return uctax.GreedyMatch(s.categoryTree, categoryBlend)
		})
		pred.Categories = path
		s.logReport(s.categoryTree, rep)
	}

	if attributeBlend != nil {
		for _, tree := range s.attributeTrees {
			path, rep := runMatch(tree, "best_leaf", func() (domtax.Path, match.Report) {
				return uctax.BestLeaf(tree, attributeBlend)
			})
			pred.Attributes[tree.Name()] = strings.TrimSpace(strings.Join(path, " "))
			s.logReport(tree, rep)

			results, rep := runMultiMatch(tree, attributeBlend, s.tagThreshold)
			for _, r := range results {
				pred.Tags[tree.Name()] = append(pred.Tags[tree.Name()], Tag{
					Value:      leafValue(r.Path()),
					Similarity: r.Similarity(),
					Score:      r.Score(),
				})
			}
			s.logReport(tree, rep)
		}
	}

	status := "ok"
	if len(pred.Warnings) > 0 {
		status = "partial"
	}
	metrics.PredictionsTotal.WithLabelValues(status).Inc()

	return pred, nil
}

// fetchImage downloads the item image. Fetch failures degrade to text-only
// blending, never abort the prediction.
func (s *Service) fetchImage(ctx context.Context, item Item, pred *Prediction) string {
	if item.ImageURL == "" {
		return ""
	}
	ref, err := s.fetcher.FetchImage(ctx, item.ImageURL, item.PageURL)
	if err != nil {
		s.logger.Warn("Image fetch failed, falling back to text only",
			zap.String("image_url", item.ImageURL),
			zap.Error(err),
		)
		pred.Warnings = append(pred.Warnings, "image fetch failed")
		return ""
	}
	return ref
}

// blend embeds the image and the text on one profile and averages them.
// Either side may fail or be absent; with both gone the blend is nil.
func (s *Service) blend(
	ctx context.Context, set domain.EmbedderSet, imageRef, text string, pred *Prediction,
) vector.Vector {
	var imageVec, textVec vector.Vector

	if imageRef != "" {
		result, err := set.Image.EmbedImage(ctx, imageRef)
		if err != nil {
			s.logger.Warn("Image embedding failed",
				zap.String("profile", string(set.Profile)),
				zap.Error(err),
			)
			pred.Warnings = append(pred.Warnings,
				fmt.Sprintf("image embedding failed on profile %s", set.Profile))
		} else {
			imageVec = result.Embedding
		}
	}

	if text != "" {
		result, err := set.Text.Embed(ctx, text)
		if err != nil {
			s.logger.Warn("Text embedding failed",
				zap.String("profile", string(set.Profile)),
				zap.Error(err),
			)
			pred.Warnings = append(pred.Warnings,
				fmt.Sprintf("text embedding failed on profile %s", set.Profile))
		} else {
			textVec = result.Embedding
		}
	}

	blended, err := vector.Blend(imageVec, textVec)
	if err != nil {
		if imageVec != nil || textVec != nil {
			s.logger.Warn("Blend failed",
				zap.String("profile", string(set.Profile)),
				zap.Error(err),
			)
		}
		pred.Warnings = append(pred.Warnings,
			fmt.Sprintf("no usable embedding on profile %s", set.Profile))
		return nil
	}
	return blended
}

func (s *Service) logReport(tree *domtax.Tree, rep match.Report) {
	if rep.Skipped == 0 {
		return
	}
	s.logger.Warn("Comparisons skipped on dimension mismatch",
		zap.String("tree", tree.Name()),
		zap.Int("skipped", rep.Skipped),
	)
}

// runMatch times a path matcher and records matching metrics.
func runMatch(tree *domtax.Tree, matcher string, fn func() (domtax.Path, match.Report)) (domtax.Path, match.Report) {
	start := time.Now()
	path, rep := fn()
	observeMatch(tree.Name(), matcher, rep, time.Since(start))
	return path, rep
}

func runMultiMatch(tree *domtax.Tree, query vector.Vector, threshold float64) ([]match.Result, match.Report) {
	start := time.Now()
	results, rep := uctax.MultiMatch(tree, query, threshold)
	observeMatch(tree.Name(), "multi", rep, time.Since(start))
	return results, rep
}

func observeMatch(tree, matcher string, rep match.Report, d time.Duration) {
	metrics.MatchDuration.WithLabelValues(tree, matcher).Observe(d.Seconds())
	metrics.MatchNodesScored.WithLabelValues(tree, matcher).Add(float64(rep.Scored))
	metrics.MatchComparisonsSkipped.WithLabelValues(tree, matcher).Add(float64(rep.Skipped))
}

// buildText joins the configured item fields in order, skipping blanks.
func buildText(fields map[string]string, order []string) string {
	parts := make([]string, 0, len(order))
	for _, name := range order {
		if v := strings.TrimSpace(fields[name]); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// leafValue is the tag label itself, without its ancestor path.
func leafValue(path domtax.Path) string {
	if len(path) == 0 {
		return ""
	}
	return path[len(path)-1]
}
