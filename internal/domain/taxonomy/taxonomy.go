// Package taxonomy holds the label-tree value objects shared by the tree
// builder and the matchers. Nodes are immutable after construction; a built
// tree may be read concurrently without coordination.
package taxonomy

import (
	"strings"

	"github.com/lumina-cloud/taxotag/internal/domain"
	"github.com/lumina-cloud/taxotag/internal/domain/vector"
)

// Kind is the explicit node variant tag. Assigned once by the builder;
// matchers dispatch on it directly instead of probing for an embedding.
type Kind int

const (
	// Internal is a branching node with at least one child.
	Internal Kind = iota
	// Leaf is a terminal node.
	Leaf
)

// Node is a labeled node in the hierarchy. Exactly one variant applies:
// Internal nodes carry ordered children, Leaf nodes carry none. Either
// variant may carry an embedding, and either may lack one when the provider
// failed for it; an absent embedding excludes the node from scoring, it is
// never treated as zero similarity.
type Node struct {
	label     string
	kind      Kind
	children  []*Node
	embedding vector.Vector
}

// NewInternal creates a branching node. embedding may be nil (path-embedding
// policy leaves internal nodes unembedded; label-embedding policy may have
// hit a provider failure).
func NewInternal(label string, children []*Node, embedding vector.Vector) *Node {
	return &Node{label: label, kind: Internal, children: children, embedding: embedding}
}

// NewLeaf creates a terminal node. embedding may be nil on provider failure.
func NewLeaf(label string, embedding vector.Vector) *Node {
	return &Node{label: label, kind: Leaf, embedding: embedding}
}

// Label returns the node label.
func (n *Node) Label() string { return n.label }

// Kind returns the node variant.
func (n *Node) Kind() Kind { return n.kind }

// Children returns the ordered child nodes. Nil for leaves.
func (n *Node) Children() []*Node { return n.children }

// Embedding returns the node embedding, or nil when absent.
func (n *Node) Embedding() vector.Vector { return n.embedding }

// HasEmbedding reports whether the node is scorable.
func (n *Node) HasEmbedding() bool { return n.embedding != nil }

// Path is an ordered label sequence from the tree root down to a node.
type Path []string

// String joins the path labels for logs and API responses.
func (p Path) String() string { return strings.Join(p, " -> ") }

// Clone returns an independent copy. Matchers hand paths out of shared
// traversal state and must not alias their accumulators.
func (p Path) Clone() Path {
	out := make(Path, len(p))
	copy(out, p)
	return out
}

// BuildPolicy selects how the builder embeds nodes.
type BuildPolicy int

const (
	// LabelEmbedding embeds every node from its own label text. Trees built
	// this way serve the greedy and best-leaf matchers.
	LabelEmbedding BuildPolicy = iota
	// PathEmbedding embeds leaves only, from the reversed root path framed
	// as a photo caption. Trees built this way serve the multi-matcher.
	PathEmbedding
)

// Tree is a built taxonomy: ordered root nodes plus the embedding profile
// and policy used to construct it, so queries from a mismatched vector
// space can be rejected.
type Tree struct {
	name    string
	roots   []*Node
	profile domain.Profile
	policy  BuildPolicy
}

// NewTree creates a built tree.
func NewTree(name string, roots []*Node, profile domain.Profile, policy BuildPolicy) *Tree {
	return &Tree{name: name, roots: roots, profile: profile, policy: policy}
}

// Name returns the tree name (e.g. "categories", "attribute:sleeve").
func (t *Tree) Name() string { return t.name }

// Roots returns the ordered top-level nodes.
func (t *Tree) Roots() []*Node { return t.roots }

// Profile returns the embedding profile the tree was built with.
func (t *Tree) Profile() domain.Profile { return t.profile }

// Policy returns the build policy.
func (t *Tree) Policy() BuildPolicy { return t.policy }
