package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	c, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if n := len(c.List()); n != 8 {
		t.Fatalf("expected 8 default products, got %d", n)
	}
	p, ok := c.Get("1")
	if !ok || p.Icon != "rose" || p.Price <= 0 {
		t.Fatalf("unexpected product 1: %+v", p)
	}
	if icon := c.Icon("missing"); icon != "shopping-bag" {
		t.Fatalf("expected fallback icon, got %q", icon)
	}
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "products.yaml")
	data := `
- id: "1"
  name: Garden Roses
  price: 2900
- id: "9"
  name: Peonies
  price: 3300
  icon: leaf
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	list := c.List()
	if len(list) != 9 {
		t.Fatalf("expected 9 products, got %d", len(list))
	}
	if list[0].Name != "Garden Roses" || list[0].Price != 2900 || list[0].Icon != "shopping-bag" {
		t.Fatalf("override not applied in place: %+v", list[0])
	}
	if list[8].ID != "9" || list[8].Icon != "leaf" {
		t.Fatalf("expected new product appended, got %+v", list[8])
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
