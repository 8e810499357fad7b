package core

import "time"

// Interval is a bar interval such as "1d".
type Interval string

const (
	Interval1m Interval = "1m"
	Interval1h Interval = "1h"
	Interval1d Interval = "1d"
	Interval1w Interval = "1wk"
)

// OHLCV represents a candlestick/bar
type OHLCV struct {
	Symbol   string
	Interval string // "1m", "5m", "1d"
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   int64
	Time     time.Time
}

// IsValid checks if the bar has a timestamp and a usable close
func (o OHLCV) IsValid() bool {
	return !o.Time.IsZero() && o.Close > 0
}

// Closes extracts closing prices in order.
func Closes(bars []OHLCV) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
