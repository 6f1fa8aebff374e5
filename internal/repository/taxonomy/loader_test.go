package taxonomy

import (
	"os"
	"path/filepath"
	"testing"
)

const categoriesYAML = `Tops:
  T-Shirt:
  Blouse:
Bottoms:
  Jeans:
`

func TestParse_PreservesSiblingOrder(t *testing.T) {
	roots, err := Parse([]byte(categoriesYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roots) != 2 {
		t.Fatalf("got %d roots, want 2", len(roots))
	}
	if roots[0].Label != "Tops" || roots[1].Label != "Bottoms" {
		t.Errorf("root order = [%s %s], want [Tops Bottoms]", roots[0].Label, roots[1].Label)
	}

	tops := roots[0].Children
	if len(tops) != 2 || tops[0].Label != "T-Shirt" || tops[1].Label != "Blouse" {
		t.Errorf("Tops children = %v, want [T-Shirt Blouse] in order", tops)
	}
	if len(tops[0].Children) != 0 {
		t.Errorf("T-Shirt should be a leaf")
	}
}

func TestParse_ScalarSequenceAsLeaves(t *testing.T) {
	roots, err := Parse([]byte("Colors: [Red, Blue]\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(roots) != 1 || roots[0].Label != "Colors" {
		t.Fatalf("got %v", roots)
	}
	leaves := roots[0].Children
	if len(leaves) != 2 || leaves[0].Label != "Red" || leaves[1].Label != "Blue" {
		t.Errorf("Colors leaves = %v, want [Red Blue]", leaves)
	}
}

func TestParse_RejectsUnexpectedScalar(t *testing.T) {
	if _, err := Parse([]byte("Tops: t-shirt\n")); err == nil {
		t.Fatal("expected error for scalar child value")
	}
}

func TestParse_Empty(t *testing.T) {
	roots, err := Parse(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if roots != nil {
		t.Fatalf("got %v, want nil", roots)
	}
}

func TestLoader_LoadsDirectoryLayout(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "categories.yaml"), categoriesYAML)

	attrDir := filepath.Join(dir, "attributes")
	if err := os.MkdirAll(attrDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, filepath.Join(attrDir, "sleeve.yaml"), "Long Sleeve:\nShort Sleeve:\n")
	writeFile(t, filepath.Join(attrDir, "color.yaml"), "Red:\nBlue:\n")

	l := NewLoader(dir)

	cats, err := l.LoadCategories()
	if err != nil {
		t.Fatalf("LoadCategories: %v", err)
	}
	if len(cats) != 2 {
		t.Errorf("got %d category roots, want 2", len(cats))
	}

	groups, err := l.LoadAttributes()
	if err != nil {
		t.Fatalf("LoadAttributes: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	// Ordered by file name.
	if groups[0].Name != "color" || groups[1].Name != "sleeve" {
		t.Errorf("group order = [%s %s], want [color sleeve]", groups[0].Name, groups[1].Name)
	}
	if len(groups[1].Roots) != 2 {
		t.Errorf("sleeve roots = %d, want 2", len(groups[1].Roots))
	}
}

func TestLoader_MissingCategories(t *testing.T) {
	l := NewLoader(t.TempDir())
	if _, err := l.LoadCategories(); err == nil {
		t.Fatal("expected error for missing categories.yaml")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
