// Package library serves strategy programs by key: a read-only catalog of
// built-in templates plus user strategies persisted on an archive backend.
package library

import (
	_ "embed"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/newthinker/prism/internal/strategy"
)

//go:embed templates.yaml
var templatesYAML []byte

// Entry is a named strategy program as listed by the library.
type Entry struct {
	Key         string    `json:"key" yaml:"key"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description" yaml:"description"`
	Code        string    `json:"code" yaml:"code"`
	IsCustom    bool      `json:"is_custom" yaml:"-"`
	CreatedAt   time.Time `json:"created_at,omitempty" yaml:"-"`
}

// Program returns the entry as a runnable program.
func (e Entry) Program() strategy.Program {
	return strategy.Program{Name: e.Name, Source: e.Code}
}

// Catalog holds the built-in templates in declaration order.
type Catalog struct {
	entries []Entry
	byKey   map[string]int
}

// LoadCatalog parses the embedded template set.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(templatesYAML)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parsing templates: %w", err)
	}

	c := &Catalog{entries: entries, byKey: make(map[string]int, len(entries))}
	for i, e := range entries {
		if e.Key == "" {
			return nil, fmt.Errorf("template %d has no key", i)
		}
		if _, dup := c.byKey[e.Key]; dup {
			return nil, fmt.Errorf("duplicate template key %q", e.Key)
		}
		c.byKey[e.Key] = i
	}
	return c, nil
}

// List returns all templates.
func (c *Catalog) List() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Get returns the template with the given key.
func (c *Catalog) Get(key string) (Entry, bool) {
	i, ok := c.byKey[key]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}
