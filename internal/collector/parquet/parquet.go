// Package parquet serves bar history from local Parquet files, one file per
// symbol at <dir>/<SYMBOL>.parquet.
package parquet

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/newthinker/prism/internal/collector"
	"github.com/newthinker/prism/internal/core"
)

// BarRecord is the on-disk schema for one bar.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Interval  string  `parquet:"interval"`
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    int64   `parquet:"volume"`
}

// Store reads and writes bar files under a directory.
type Store struct {
	dir string
}

var _ collector.Collector = (*Store)(nil)

// New creates a store rooted at cfg.Path.
func New(cfg collector.Config) *Store {
	return &Store{dir: cfg.Path}
}

func (s *Store) Name() string {
	return "parquet"
}

// FetchHistory reads the symbol file and returns bars within [start, end].
// The interval is not filtered; files hold a single interval.
func (s *Store) FetchHistory(_ context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	path, err := s.path(symbol)
	if err != nil {
		return nil, core.WrapError(core.ErrSymbolNotFound, err)
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, core.Errorf(core.ErrSymbolNotFound, "no bar file for %s", symbol)
	}

	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("reading %s: %w", path, err))
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Timestamp < records[j].Timestamp })

	from, to := start.UnixMilli(), end.UnixMilli()
	data := make([]core.OHLCV, 0, len(records))
	for _, r := range records {
		if r.Timestamp < from || r.Timestamp > to {
			continue
		}
		data = append(data, core.OHLCV{
			Symbol:   symbol,
			Interval: r.Interval,
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
			Time:     time.UnixMilli(r.Timestamp).UTC(),
		})
	}
	return data, nil
}

// WriteBars replaces the symbol file with bars.
func (s *Store) WriteBars(symbol string, bars []core.OHLCV) error {
	path, err := s.path(symbol)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Symbol:    symbol,
			Timestamp: b.Time.UnixMilli(),
			Interval:  b.Interval,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}
	return parquet.WriteFile(path, records)
}

func (s *Store) path(symbol string) (string, error) {
	if s.dir == "" {
		return "", fmt.Errorf("parquet directory not configured")
	}
	if symbol == "" || strings.ContainsAny(symbol, `/\`) || strings.Contains(symbol, "..") {
		return "", fmt.Errorf("invalid symbol %q", symbol)
	}
	return filepath.Join(s.dir, strings.ToUpper(symbol)+".parquet"), nil
}
