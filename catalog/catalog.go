// Package catalog loads badge definitions from YAML or JSON.
package catalog

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"journeykit/core"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Catalog is an immutable, validated set of badge definitions ordered by
// SortOrder then key.
type Catalog struct {
	badges []core.Badge
	byKey  map[core.BadgeKey]int
}

type document struct {
	Badges []core.BadgeSpec `json:"badges" yaml:"badges"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultsYAML, FormatYAML)
	if err != nil {
		panic(fmt.Sprintf("catalog: built-in defaults are invalid: %v", err))
	}
	return c
}

type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// Load reads a catalog file. The format follows the extension; anything
// other than .json is read as YAML.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	f := FormatYAML
	if strings.EqualFold(filepath.Ext(path), ".json") {
		f = FormatJSON
	}
	c, err := Parse(data, f)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte, f Format) (*Catalog, error) {
	var doc document
	switch f {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	}
	badges := make([]core.Badge, 0, len(doc.Badges))
	for _, spec := range doc.Badges {
		b, err := spec.Build()
		if err != nil {
			return nil, err
		}
		badges = append(badges, b)
	}
	return New(badges...)
}

// New validates badges and builds a catalog. Keys must be unique.
func New(badges ...core.Badge) (*Catalog, error) {
	out := append([]core.Badge(nil), badges...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].Key < out[j].Key
	})
	byKey := make(map[core.BadgeKey]int, len(out))
	for i, b := range out {
		if err := b.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byKey[b.Key]; dup {
			return nil, &core.InputError{Field: "badge.key", Value: string(b.Key), Reason: "duplicate badge key"}
		}
		byKey[b.Key] = i
	}
	return &Catalog{badges: out, byKey: byKey}, nil
}

// Badges returns every definition, hidden ones included.
func (c *Catalog) Badges() []core.Badge { return append([]core.Badge(nil), c.badges...) }

// Visible returns the definitions a client may list before unlocking.
func (c *Catalog) Visible() []core.Badge {
	out := make([]core.Badge, 0, len(c.badges))
	for _, b := range c.badges {
		if !b.Hidden {
			out = append(out, b)
		}
	}
	return out
}

// Get looks a badge up by key.
func (c *Catalog) Get(key core.BadgeKey) (core.Badge, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return core.Badge{}, false
	}
	return c.badges[i], true
}

func (c *Catalog) Len() int { return len(c.badges) }
