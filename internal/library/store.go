package library

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/storage/archive"
	"github.com/newthinker/prism/internal/strategy"
)

const storePrefix = "strategies"

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

// KeyFor derives the storage key for a strategy name.
func KeyFor(name string) string {
	return strings.ToLower(unsafeKeyChars.ReplaceAllString(name, "_"))
}

// document is the persisted form of a custom strategy.
type document struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Code        string    `json:"code"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists custom strategies as JSON documents.
type Store struct {
	storage archive.Storage
	logger  *zap.Logger
	now     func() time.Time
}

// NewStore creates a store on the given backend.
func NewStore(storage archive.Storage, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{storage: storage, logger: logger, now: time.Now}
}

func docPath(key string) string {
	return storePrefix + "/" + key + ".json"
}

// Save validates code and stores it under the key derived from name,
// replacing any strategy already stored there. It returns the key.
func (s *Store) Save(ctx context.Context, name, description, code string) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", core.Errorf(core.ErrValidation, "strategy name is required")
	}
	if err := strategy.Validate(strategy.Program{Name: name, Source: code}); err != nil {
		return "", err
	}
	if description == "" {
		description = "Custom Strategy"
	}

	key := KeyFor(name)
	data, err := json.MarshalIndent(document{
		Name:        name,
		Description: description,
		Code:        code,
		CreatedAt:   s.now().UTC(),
	}, "", "  ")
	if err != nil {
		return "", core.WrapError(core.ErrInternal, err)
	}
	if err := s.storage.Write(ctx, docPath(key), data); err != nil {
		return "", core.WrapError(core.ErrInternal, fmt.Errorf("writing strategy %q: %w", key, err))
	}

	s.logger.Info("strategy saved", zap.String("key", key), zap.String("name", name))
	return key, nil
}

// Get loads the custom strategy stored under key.
func (s *Store) Get(ctx context.Context, key string) (Entry, error) {
	if key == "" || KeyFor(key) != key {
		return Entry{}, core.Errorf(core.ErrStrategyNotFound, "no strategy %q", key)
	}
	data, err := s.storage.Read(ctx, docPath(key))
	if errors.Is(err, archive.ErrNotFound) {
		return Entry{}, core.Errorf(core.ErrStrategyNotFound, "no strategy %q", key)
	}
	if err != nil {
		return Entry{}, core.WrapError(core.ErrInternal, err)
	}
	return decode(key, data)
}

func decode(key string, data []byte) (Entry, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Entry{}, core.WrapError(core.ErrInternal, fmt.Errorf("decoding strategy %q: %w", key, err))
	}
	if doc.Name == "" {
		doc.Name = key
	}
	if doc.Description == "" {
		doc.Description = "Custom Strategy"
	}
	return Entry{
		Key:         key,
		Name:        doc.Name,
		Description: doc.Description,
		Code:        doc.Code,
		IsCustom:    true,
		CreatedAt:   doc.CreatedAt,
	}, nil
}

// List returns every custom strategy sorted by key. Unreadable documents
// are logged and skipped.
func (s *Store) List(ctx context.Context) ([]Entry, error) {
	paths, err := s.storage.List(ctx, storePrefix)
	if err != nil {
		return nil, core.WrapError(core.ErrInternal, err)
	}

	entries := make([]Entry, 0, len(paths))
	for _, p := range paths {
		name := strings.TrimPrefix(p, storePrefix+"/")
		if !strings.HasSuffix(name, ".json") || strings.Contains(name, "/") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")

		data, err := s.storage.Read(ctx, p)
		if err != nil {
			s.logger.Warn("skipping unreadable strategy", zap.String("path", p), zap.Error(err))
			continue
		}
		e, err := decode(key, data)
		if err != nil {
			s.logger.Warn("skipping malformed strategy", zap.String("path", p), zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

// Delete removes the custom strategy stored under key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if key == "" || KeyFor(key) != key {
		return core.Errorf(core.ErrStrategyNotFound, "no strategy %q", key)
	}
	err := s.storage.Delete(ctx, docPath(key))
	if errors.Is(err, archive.ErrNotFound) {
		return core.Errorf(core.ErrStrategyNotFound, "no strategy %q", key)
	}
	if err != nil {
		return core.WrapError(core.ErrInternal, err)
	}
	s.logger.Info("strategy deleted", zap.String("key", key))
	return nil
}
