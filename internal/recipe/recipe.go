// Package recipe describes virtual products as YAML graphs of product loads,
// transformations and collations, and evaluates them against a cube.Source.
package recipe

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/livingwales/vproducts/internal/cube"
	"github.com/livingwales/vproducts/internal/products"
)

// ErrInvalidRecipe is returned for recipes that fail validation.
var ErrInvalidRecipe = errors.New("invalid recipe")

// maxRecipeSize caps recipe files read from disk.
const maxRecipeSize = 1 << 20

// Node is one step of a recipe graph. Exactly one of Product, Transform or
// Collate is set.
type Node struct {
	Product      string   `yaml:"product,omitempty"`
	Measurements []string `yaml:"measurements,omitempty"`

	Transform string            `yaml:"transform,omitempty"`
	Args      map[string]string `yaml:"args,omitempty"`
	Input     *Node             `yaml:"input,omitempty"`

	Collate []*Node `yaml:"collate,omitempty"`
}

// Bounds is the extent of a recipe in the units of CRS.
type Bounds struct {
	MinX float64 `yaml:"min_x"`
	MinY float64 `yaml:"min_y"`
	MaxX float64 `yaml:"max_x"`
	MaxY float64 `yaml:"max_y"`
	CRS  string  `yaml:"crs"`
}

// Recipe is a named virtual product evaluated over one extent and period.
type Recipe struct {
	Name string `yaml:"name"`
	// Output, when set, stores the result as observations of this product.
	Output     string  `yaml:"output,omitempty"`
	From       string  `yaml:"from"`
	To         string  `yaml:"to"`
	Extent     *Bounds `yaml:"extent,omitempty"`
	Resolution float64 `yaml:"resolution,omitempty"`
	Root       *Node   `yaml:"recipe"`
}

// Parse decodes and validates a YAML recipe.
func Parse(r io.Reader) (*Recipe, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var rec Recipe
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("failed to parse recipe: %w", err)
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Load reads a recipe file. Files must end in .yaml or .yml.
func Load(path string) (*Recipe, error) {
	if !strings.HasSuffix(path, ".yaml") && !strings.HasSuffix(path, ".yml") {
		return nil, fmt.Errorf("recipe file must have .yaml extension: %s", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open recipe %s: %w", path, err)
	}
	defer f.Close()
	return Parse(io.LimitReader(f, maxRecipeSize))
}

// Validate checks the recipe header and every node of its graph.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRecipe)
	}
	if r.Root == nil {
		return fmt.Errorf("%w: %s has no recipe graph", ErrInvalidRecipe, r.Name)
	}
	if _, err := r.DateRange(); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRecipe, r.Name, err)
	}
	if r.Extent != nil && !r.Extent.extent().Valid() {
		return fmt.Errorf("%w: %s has an empty extent", ErrInvalidRecipe, r.Name)
	}
	return r.Root.validate("recipe")
}

// DateRange returns the recipe period. Empty dates select all time.
func (r *Recipe) DateRange() (cube.DateRange, error) {
	if r.From == "" && r.To == "" {
		return cube.DateRange{}, nil
	}
	return cube.ParseDateRange(r.From, r.To)
}

func (b *Bounds) extent() cube.Extent {
	return cube.Extent{MinX: b.MinX, MinY: b.MinY, MaxX: b.MaxX, MaxY: b.MaxY, CRS: b.CRS}
}

func (n *Node) validate(path string) error {
	set := 0
	for _, ok := range []bool{n.Product != "", n.Transform != "", n.Collate != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("%w: %s must set exactly one of product, transform or collate", ErrInvalidRecipe, path)
	}
	switch {
	case n.Transform != "":
		if !products.Has(n.Transform) {
			return fmt.Errorf("%w: %s: %w: %q", ErrInvalidRecipe, path, products.ErrUnknownProduct, n.Transform)
		}
		if n.Input == nil {
			return fmt.Errorf("%w: %s: transform %s has no input", ErrInvalidRecipe, path, n.Transform)
		}
		return n.Input.validate(path + "." + n.Transform)
	case n.Collate != nil:
		if len(n.Collate) == 0 {
			return fmt.Errorf("%w: %s: collate of nothing", ErrInvalidRecipe, path)
		}
		for i, c := range n.Collate {
			if c == nil {
				return fmt.Errorf("%w: %s.collate[%d] is empty", ErrInvalidRecipe, path, i)
			}
			if err := c.validate(fmt.Sprintf("%s.collate[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}

// String renders the node as a compact expression, used in run records.
func (n *Node) String() string {
	switch {
	case n == nil:
		return ""
	case n.Product != "":
		if len(n.Measurements) == 0 {
			return n.Product
		}
		return n.Product + "[" + strings.Join(n.Measurements, ",") + "]"
	case n.Transform != "":
		return n.Transform + "(" + n.Input.String() + ")"
	}
	parts := make([]string, len(n.Collate))
	for i, c := range n.Collate {
		parts[i] = c.String()
	}
	return "collate(" + strings.Join(parts, ", ") + ")"
}
