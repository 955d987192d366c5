// Package tools holds the static catalog of Reddit tools the gateway exposes.
package tools

import (
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Mode classifies a tool as mutating or not.
type Mode string

const (
	ModeRead  Mode = "read"
	ModeWrite Mode = "write"
)

// Spec describes one tool.
type Spec struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Mode        Mode           `yaml:"mode" json:"mode"`
	Delete      bool           `yaml:"delete,omitempty" json:"delete,omitempty"`
	Parameters  map[string]any `yaml:"parameters" json:"parameters"`
}

// Catalog is an ordered, immutable set of tool specs.
type Catalog struct {
	specs  []Spec
	byName map[string]int
}

//go:embed catalog.yaml
var catalogYAML []byte

var defaultCatalog = mustParse(catalogYAML)

// Default returns the embedded catalog.
func Default() *Catalog {
	return defaultCatalog
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Tools []Spec `yaml:"tools"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode tool catalog: %w", err)
	}

	c := &Catalog{byName: make(map[string]int, len(doc.Tools))}
	for i, spec := range doc.Tools {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" {
			return nil, fmt.Errorf("tool catalog entry %d: missing name", i)
		}
		if spec.Mode != ModeRead && spec.Mode != ModeWrite {
			return nil, fmt.Errorf("tool %q: invalid mode %q", spec.Name, spec.Mode)
		}
		if spec.Delete && spec.Mode != ModeWrite {
			return nil, fmt.Errorf("tool %q: delete tools must be write tools", spec.Name)
		}
		if _, dup := c.byName[spec.Name]; dup {
			return nil, fmt.Errorf("tool %q: duplicate entry", spec.Name)
		}
		if spec.Parameters == nil {
			spec.Parameters = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		c.byName[spec.Name] = len(c.specs)
		c.specs = append(c.specs, spec)
	}
	return c, nil
}

func mustParse(data []byte) *Catalog {
	c, err := Parse(data)
	if err != nil {
		panic(err)
	}
	return c
}

// Lookup returns a copy of the spec for name.
func (c *Catalog) Lookup(name string) (Spec, bool) {
	spec := c.spec(name)
	if spec == nil {
		return Spec{}, false
	}
	out := *spec
	out.Parameters = cloneMap(spec.Parameters)
	return out, true
}

// ModeOf returns the mode of name and whether name is in the catalog.
func (c *Catalog) ModeOf(name string) (Mode, bool) {
	spec := c.spec(name)
	if spec == nil {
		return "", false
	}
	return spec.Mode, true
}

// IsWrite reports whether name is a write-classified tool.
func (c *Catalog) IsWrite(name string) bool {
	spec := c.spec(name)
	return spec != nil && spec.Mode == ModeWrite
}

// IsDelete reports whether name is a delete-class write tool.
func (c *Catalog) IsDelete(name string) bool {
	spec := c.spec(name)
	return spec != nil && spec.Delete
}

func (c *Catalog) spec(name string) *Spec {
	idx, ok := c.byName[name]
	if !ok {
		return nil
	}
	return &c.specs[idx]
}

// Specs returns a deep copy of all specs in catalog order.
func (c *Catalog) Specs() []Spec {
	out := make([]Spec, len(c.specs))
	for i, spec := range c.specs {
		spec.Parameters = cloneMap(spec.Parameters)
		out[i] = spec
	}
	return out
}

// Names returns every tool name in catalog order.
func (c *Catalog) Names() []string {
	return c.names(func(Spec) bool { return true })
}

// WriteNames returns write tool names in catalog order.
func (c *Catalog) WriteNames() []string {
	return c.names(func(s Spec) bool { return s.Mode == ModeWrite })
}

func (c *Catalog) names(keep func(Spec) bool) []string {
	out := make([]string, 0, len(c.specs))
	for _, spec := range c.specs {
		if keep(spec) {
			out = append(out, spec.Name)
		}
	}
	return out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch v := v.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
