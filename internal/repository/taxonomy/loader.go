// Package taxonomy loads raw label hierarchies from YAML files. Decoding
// goes through yaml.Node rather than maps: sibling order is authored
// deliberately (it decides similarity tie-breaks) and Go maps would lose it.
package taxonomy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	domtax "github.com/lumina-cloud/taxotag/internal/domain/taxonomy"
)

// AttributeGroup is one attribute taxonomy (sleeve length, neckline, ...)
// loaded from its own file.
type AttributeGroup struct {
	Name  string
	Roots []domtax.RawNode
}

// Loader reads taxonomy definitions from a directory:
//
//	<dir>/categories.yaml
//	<dir>/attributes/<group>.yaml
type Loader struct {
	dir string
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// LoadCategories reads the category hierarchy.
func (l *Loader) LoadCategories() ([]domtax.RawNode, error) {
	return loadFile(filepath.Join(l.dir, "categories.yaml"))
}

// LoadAttributes reads every attribute group, ordered by file name for
// deterministic startup.
func (l *Loader) LoadAttributes() ([]AttributeGroup, error) {
	pattern := filepath.Join(l.dir, "attributes", "*.yaml")
	files, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(files)

	groups := make([]AttributeGroup, 0, len(files))
	for _, file := range files {
		roots, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
		groups = append(groups, AttributeGroup{Name: name, Roots: roots})
	}
	return groups, nil
}

func loadFile(path string) ([]domtax.RawNode, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read taxonomy %s: %w", path, err)
	}

	roots, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse taxonomy %s: %w", path, err)
	}
	return roots, nil
}

// Parse decodes a raw hierarchy from YAML. Mappings branch, null values
// and scalar sequences terminate:
//
//	Tops:
//	  T-Shirt:
//	  Blouse:
//	Colors: [Red, Blue]
func Parse(data []byte) ([]domtax.RawNode, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}
	return parseNode(doc.Content[0])
}

func parseNode(n *yaml.Node) ([]domtax.RawNode, error) {
	switch n.Kind {
	case yaml.MappingNode:
		// Content alternates key, value.
		nodes := make([]domtax.RawNode, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			val := n.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: taxonomy labels must be scalars", key.Line)
			}
			children, err := parseNode(val)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, domtax.RawNode{Label: key.Value, Children: children})
		}
		return nodes, nil

	case yaml.SequenceNode:
		nodes := make([]domtax.RawNode, 0, len(n.Content))
		for _, item := range n.Content {
			if item.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: taxonomy leaf lists must hold scalars", item.Line)
			}
			nodes = append(nodes, domtax.RawNode{Label: item.Value})
		}
		return nodes, nil

	case yaml.ScalarNode:
		if n.Tag == "!!null" {
			return nil, nil
		}
		return nil, fmt.Errorf("line %d: unexpected scalar %q in taxonomy", n.Line, n.Value)

	default:
		return nil, fmt.Errorf("line %d: unsupported node kind in taxonomy", n.Line)
	}
}
