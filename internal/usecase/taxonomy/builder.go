// Package taxonomy implements the taxonomy-matching core: tree construction
// from raw label hierarchies and the three matchers that traverse built
// trees (greedy descent, exhaustive best-leaf, percentile multi-match).
package taxonomy

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/lumina-cloud/taxotag/internal/domain"
	domtax "github.com/lumina-cloud/taxotag/internal/domain/taxonomy"
	"github.com/lumina-cloud/taxotag/internal/domain/vector"
)

// Builder constructs taxonomy trees, pre-embedding nodes through the
// configured provider. Construction is the only phase that blocks on the
// provider; built trees are immutable.
type Builder struct {
	embed   Embedder
	profile domain.Profile
	logger  *zap.Logger
}

// NewBuilder creates a tree builder bound to one embedding profile.
func NewBuilder(embed Embedder, profile domain.Profile, logger *zap.Logger) *Builder {
	return &Builder{embed: embed, profile: profile, logger: logger}
}

// BuildStats reports construction outcomes. Missing embeddings are logged
// and counted, never escalated: a node the provider failed on is excluded
// from matching instead of failing the whole build.
type BuildStats struct {
	NodesEmbedded int
	NodesMissing  int
}

// Build constructs a tree from a raw hierarchy under the given policy.
//
// LabelEmbedding embeds every node from its own label text. PathEmbedding
// embeds leaves only, from the labels joined leaf-upward and framed as a
// photo caption ("a photo of a <leaf> <parent> ... <root>", lower-cased).
func (b *Builder) Build(
	ctx context.Context, name string, raw []domtax.RawNode, policy domtax.BuildPolicy,
) (*domtax.Tree, BuildStats, error) {
	var stats BuildStats

	roots := make([]*domtax.Node, 0, len(raw))
	for _, rn := range raw {
		node, err := b.buildNode(ctx, name, rn, "", policy, &stats)
		if err != nil {
			return nil, stats, err
		}
		roots = append(roots, node)
	}

	b.logger.Info("Built taxonomy tree",
		zap.String("tree", name),
		zap.String("profile", string(b.profile)),
		zap.Int("embedded", stats.NodesEmbedded),
		zap.Int("missing", stats.NodesMissing),
	)

	return domtax.NewTree(name, roots, b.profile, policy), stats, nil
}

// buildNode recurses bottom-up. parentPhrase accumulates the reversed path
// text for the path-embedding policy ("<label> <parentPhrase>" at each
// level, so the leaf phrase reads leaf-to-root).
func (b *Builder) buildNode(
	ctx context.Context, tree string, raw domtax.RawNode,
	parentPhrase string, policy domtax.BuildPolicy, stats *BuildStats,
) (*domtax.Node, error) {
	phrase := strings.TrimSpace(raw.Label + " " + parentPhrase)

	if len(raw.Children) == 0 {
		var text string
		switch policy {
		case domtax.LabelEmbedding:
			text = raw.Label
		case domtax.PathEmbedding:
			text = "a photo of a " + strings.ToLower(phrase)
		}
		emb := b.embedText(ctx, tree, text, stats)
		return domtax.NewLeaf(raw.Label, emb), nil
	}

	children := make([]*domtax.Node, 0, len(raw.Children))
	for _, child := range raw.Children {
		node, err := b.buildNode(ctx, tree, child, phrase, policy, stats)
		if err != nil {
			return nil, err
		}
		children = append(children, node)
	}

	// Internal nodes are embedded only under the label policy; the
	// multi-matcher never scores them.
	var emb vector.Vector
	if policy == domtax.LabelEmbedding {
		emb = b.embedText(ctx, tree, raw.Label, stats)
	}
	return domtax.NewInternal(raw.Label, children, emb), nil
}

// embedText calls the provider and degrades to an absent embedding on any
// failure. Context cancellation still aborts via the ctx check so a dead
// provider does not spin through the whole hierarchy.
func (b *Builder) embedText(ctx context.Context, tree, text string, stats *BuildStats) vector.Vector {
	if ctx.Err() != nil {
		stats.NodesMissing++
		return nil
	}

	res, err := b.embed.Embed(ctx, text)
	if err != nil {
		b.logger.Warn("Node embedding failed, excluding node from matching",
			zap.String("tree", tree),
			zap.String("text", text),
			zap.Error(err),
		)
		stats.NodesMissing++
		return nil
	}
	if len(res.Embedding) == 0 {
		stats.NodesMissing++
		return nil
	}

	stats.NodesEmbedded++
	return res.Embedding
}
