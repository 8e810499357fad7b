package collector

import (
	"context"
	"time"

	"github.com/newthinker/prism/internal/core"
)

// Config holds collector configuration
type Config struct {
	Enabled           bool
	BaseURL           string
	RequestsPerMinute int
	Timeout           time.Duration
	Path              string
}

// Collector defines the interface for market data sources
type Collector interface {
	Name() string

	// FetchHistory returns bars in [start, end] ordered by time.
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error)
}
