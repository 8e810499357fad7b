package library

import (
	"context"
	"errors"

	"github.com/newthinker/prism/internal/core"
)

// Library resolves strategy keys against the built-in catalog and, when
// configured, the custom store. Built-in keys cannot be overwritten.
type Library struct {
	catalog *Catalog
	store   *Store
}

// New creates a library. store may be nil, in which case only templates are served.
func New(catalog *Catalog, store *Store) *Library {
	return &Library{catalog: catalog, store: store}
}

// List returns templates first, then custom strategies.
func (l *Library) List(ctx context.Context) ([]Entry, error) {
	entries := l.catalog.List()
	if l.store == nil {
		return entries, nil
	}
	custom, err := l.store.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range custom {
		if _, builtin := l.catalog.Get(e.Key); builtin {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Get resolves key to a template or custom strategy.
func (l *Library) Get(ctx context.Context, key string) (Entry, error) {
	if e, ok := l.catalog.Get(key); ok {
		return e, nil
	}
	if l.store == nil {
		return Entry{}, core.Errorf(core.ErrStrategyNotFound, "no strategy %q", key)
	}
	return l.store.Get(ctx, key)
}

// Save stores a custom strategy and returns its key.
func (l *Library) Save(ctx context.Context, name, description, code string) (string, error) {
	if l.store == nil {
		return "", core.Errorf(core.ErrConfigMissing, "no strategy storage configured")
	}
	if _, builtin := l.catalog.Get(KeyFor(name)); builtin {
		return "", core.Errorf(core.ErrValidation, "%q is a built-in template name", name)
	}
	return l.store.Save(ctx, name, description, code)
}

// Delete removes a custom strategy. Templates are read-only.
func (l *Library) Delete(ctx context.Context, key string) error {
	if _, builtin := l.catalog.Get(key); builtin {
		return core.Errorf(core.ErrValidation, "template %q is read-only", key)
	}
	if l.store == nil {
		return core.Errorf(core.ErrStrategyNotFound, "no strategy %q", key)
	}
	return l.store.Delete(ctx, key)
}

// IsNotFound reports whether err means the key resolved to nothing.
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrStrategyNotFound)
}
