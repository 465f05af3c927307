// Package catalog holds the products that can be put in a cart.
// Defaults are embedded; a YAML file can override or extend them.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed products_default.yaml
var defaultProductsYAML []byte

const fallbackIcon = "shopping-bag"

type Product struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Price int64  `yaml:"price" json:"price"`
	Icon  string `yaml:"icon" json:"icon"`
}

type Catalog struct {
	products []Product
	byID     map[string]int
}

// Load parses the embedded defaults and merges the products from path, if
// path is set. A product with a known id replaces the default one.
func Load(path string) (*Catalog, error) {
	var defaults []Product
	if err := yaml.Unmarshal(defaultProductsYAML, &defaults); err != nil {
		return nil, fmt.Errorf("failed to parse default catalog: %w", err)
	}
	c := New(defaults)

	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog %s: %w", path, err)
	}
	var extra []Product
	if err := yaml.Unmarshal(data, &extra); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	for _, p := range extra {
		c.put(p)
	}
	return c, nil
}

func New(products []Product) *Catalog {
	c := &Catalog{byID: make(map[string]int)}
	for _, p := range products {
		c.put(p)
	}
	return c
}

func (c *Catalog) put(p Product) {
	if p.ID == "" || p.Price < 0 {
		return
	}
	if p.Icon == "" {
		p.Icon = fallbackIcon
	}
	if i, ok := c.byID[p.ID]; ok {
		c.products[i] = p
		return
	}
	c.byID[p.ID] = len(c.products)
	c.products = append(c.products, p)
}

func (c *Catalog) Get(id string) (Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// Icon returns the icon for a product id, or the generic bag.
func (c *Catalog) Icon(id string) string {
	if p, ok := c.Get(id); ok {
		return p.Icon
	}
	return fallbackIcon
}

func (c *Catalog) List() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}
