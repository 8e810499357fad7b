// Package market holds the immutable bar table a backtest runs over.
package market

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/newthinker/prism/internal/core"
)

// Bar is one period of market data with optional indicator values.
type Bar struct {
	Time       time.Time          `json:"timestamp"`
	Open       float64            `json:"open"`
	High       float64            `json:"high"`
	Low        float64            `json:"low"`
	Close      float64            `json:"close"`
	Volume     int64              `json:"volume"`
	Indicators map[string]float64 `json:"indicators,omitempty"`
}

// Table is an ordered, read-only sequence of bars.
type Table struct {
	symbol  string
	bars    []Bar
	columns []string
}

// NewTable copies bars into a table. Timestamps must be strictly increasing
// and every close must be positive, since fills happen at the close.
func NewTable(symbol string, bars []Bar) (*Table, error) {
	names := make(map[string]struct{})
	copied := make([]Bar, len(bars))
	for i, b := range bars {
		if i > 0 && !b.Time.After(bars[i-1].Time) {
			return nil, core.Errorf(core.ErrValidation,
				"bar %d at %s does not follow %s", i, b.Time.Format(time.RFC3339), bars[i-1].Time.Format(time.RFC3339))
		}
		if !finite(b.Open, b.High, b.Low, b.Close) {
			return nil, core.Errorf(core.ErrValidation, "bar %d at %s has a non-finite price", i, b.Time.Format(time.RFC3339))
		}
		if b.Close <= 0 {
			return nil, core.Errorf(core.ErrValidation, "bar %d at %s has non-positive close %g", i, b.Time.Format(time.RFC3339), b.Close)
		}
		copied[i] = b
		if len(b.Indicators) > 0 {
			copied[i].Indicators = make(map[string]float64, len(b.Indicators))
			for k, v := range b.Indicators {
				copied[i].Indicators[k] = v
				names[k] = struct{}{}
			}
		}
	}

	columns := make([]string, 0, len(names))
	for k := range names {
		columns = append(columns, k)
	}
	sort.Strings(columns)

	return &Table{symbol: symbol, bars: copied, columns: columns}, nil
}

// FromOHLCV builds a table from collector output plus aligned indicator columns.
func FromOHLCV(symbol string, ohlcv []core.OHLCV, indicators map[string][]float64) (*Table, error) {
	for name, col := range indicators {
		if len(col) != len(ohlcv) {
			return nil, core.Errorf(core.ErrValidation, "indicator %s has %d values for %d bars", name, len(col), len(ohlcv))
		}
	}

	bars := make([]Bar, len(ohlcv))
	for i, o := range ohlcv {
		bars[i] = Bar{
			Time:   o.Time,
			Open:   o.Open,
			High:   o.High,
			Low:    o.Low,
			Close:  o.Close,
			Volume: o.Volume,
		}
		if len(indicators) > 0 {
			bars[i].Indicators = make(map[string]float64, len(indicators))
			for name, col := range indicators {
				bars[i].Indicators[name] = col[i]
			}
		}
	}
	return NewTable(symbol, bars)
}

// Symbol returns the instrument the table describes, possibly empty.
func (t *Table) Symbol() string { return t.symbol }

// Len returns the number of bars.
func (t *Table) Len() int { return len(t.bars) }

// Bar returns the i-th bar.
func (t *Table) Bar(i int) Bar { return t.bars[i] }

// Start returns the first timestamp, zero for an empty table.
func (t *Table) Start() time.Time {
	if len(t.bars) == 0 {
		return time.Time{}
	}
	return t.bars[0].Time
}

// End returns the last timestamp, zero for an empty table.
func (t *Table) End() time.Time {
	if len(t.bars) == 0 {
		return time.Time{}
	}
	return t.bars[len(t.bars)-1].Time
}

// Columns lists indicator column names in sorted order.
func (t *Table) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Closes returns the close column.
func (t *Table) Closes() []float64 {
	return t.project(func(b Bar) float64 { return b.Close })
}

// Field returns one of the OHLCV columns by lower-case name.
func (t *Table) Field(name string) ([]float64, error) {
	switch name {
	case "open":
		return t.project(func(b Bar) float64 { return b.Open }), nil
	case "high":
		return t.project(func(b Bar) float64 { return b.High }), nil
	case "low":
		return t.project(func(b Bar) float64 { return b.Low }), nil
	case "close":
		return t.Closes(), nil
	case "volume":
		return t.project(func(b Bar) float64 { return float64(b.Volume) }), nil
	}
	return nil, fmt.Errorf("unknown field %q", name)
}

// Column returns an indicator column. Bars without the value read NaN.
func (t *Table) Column(name string) []float64 {
	return t.project(func(b Bar) float64 {
		if v, ok := b.Indicators[name]; ok {
			return v
		}
		return math.NaN()
	})
}

func finite(values ...float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func (t *Table) project(f func(Bar) float64) []float64 {
	out := make([]float64, len(t.bars))
	for i, b := range t.bars {
		out[i] = f(b)
	}
	return out
}
