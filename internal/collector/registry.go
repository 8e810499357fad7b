package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/core"
)

// Recorder counts fetch outcomes per collector.
type Recorder interface {
	RecordFetch(collector, outcome string)
}

// Registry manages collector plugins in registration order
type Registry struct {
	mu         sync.RWMutex
	collectors map[string]Collector
	order      []string
	recorder   Recorder
	logger     *zap.Logger
}

// NewRegistry creates a new collector registry
func NewRegistry(logger ...*zap.Logger) *Registry {
	l := zap.NewNop()
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	}
	return &Registry{
		collectors: make(map[string]Collector),
		logger:     l,
	}
}

// Register adds a collector to the registry
func (r *Registry) Register(c Collector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.collectors[c.Name()]; !exists {
		r.order = append(r.order, c.Name())
	}
	r.collectors[c.Name()] = c
}

// SetRecorder sets the metrics sink for fetch outcomes.
func (r *Registry) SetRecorder(rec Recorder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recorder = rec
}

func (r *Registry) record(collector string, err error, bars int) {
	r.mu.RLock()
	rec := r.recorder
	r.mu.RUnlock()
	if rec == nil {
		return
	}
	switch {
	case err != nil:
		rec.RecordFetch(collector, core.AsError(err).Code)
	case bars == 0:
		rec.RecordFetch(collector, "empty")
	default:
		rec.RecordFetch(collector, "success")
	}
}

// Get retrieves a collector by name
func (r *Registry) Get(name string) (Collector, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.collectors[name]
	return c, ok
}

// GetAll returns all registered collectors in registration order
func (r *Registry) GetAll() []Collector {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Collector, 0, len(r.order))
	for _, name := range r.order {
		result = append(result, r.collectors[name])
	}
	return result
}

// FetchHistory tries each collector in order and returns the first non-empty history.
func (r *Registry) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	collectors := r.GetAll()
	if len(collectors) == 0 {
		return nil, core.Errorf(core.ErrConfigMissing, "no collectors registered")
	}

	var errs []error
	for _, c := range collectors {
		data, err := c.FetchHistory(ctx, symbol, start, end, interval)
		r.record(c.Name(), err, len(data))
		if err != nil {
			r.logger.Debug("collector failed",
				zap.String("collector", c.Name()),
				zap.String("symbol", symbol),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), err))
			continue
		}
		if len(data) > 0 {
			return data, nil
		}
	}

	if len(errs) == 0 {
		return nil, core.Errorf(core.ErrNoData, "no history for %s", symbol)
	}
	joined := errors.Join(errs...)
	if errors.Is(joined, core.ErrSymbolNotFound) && len(errs) == len(collectors) {
		return nil, core.WrapError(core.ErrSymbolNotFound, joined)
	}
	return nil, core.WrapError(core.ErrCollectorFailed, joined)
}
