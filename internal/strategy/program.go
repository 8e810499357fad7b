// Package strategy defines the strategy program contract, its static
// validator and the sandbox that turns a program into a signal series.
package strategy

import (
	"encoding/json"
	"fmt"
)

// Program is user-authored strategy source. It is opaque text to the engine.
type Program struct {
	Name   string `json:"name"`
	Source string `json:"code"`
}

// Signal is the per-bar instruction produced by a strategy.
type Signal int8

const (
	Sell Signal = -1
	Hold Signal = 0
	Buy  Signal = 1
)

// String returns the upper-case action name.
func (s Signal) String() string {
	switch s {
	case Buy:
		return "BUY"
	case Sell:
		return "SELL"
	case Hold:
		return "HOLD"
	}
	return fmt.Sprintf("Signal(%d)", int8(s))
}

// Valid reports whether s is one of Buy, Sell or Hold.
func (s Signal) Valid() bool {
	return s == Buy || s == Sell || s == Hold
}

// SignalSeries holds one signal per bar of the table it was generated for.
type SignalSeries []Signal

// Count returns how many signals of each kind the series holds.
func (s SignalSeries) Count() SignalCount {
	var c SignalCount
	for _, sig := range s {
		switch sig {
		case Buy:
			c.Buy++
		case Sell:
			c.Sell++
		default:
			c.Hold++
		}
	}
	return c
}

// MarshalJSON encodes signals as their integer values.
func (s SignalSeries) MarshalJSON() ([]byte, error) {
	ints := make([]int8, len(s))
	for i, sig := range s {
		ints[i] = int8(sig)
	}
	return json.Marshal(ints)
}

// SignalCount summarises a series.
type SignalCount struct {
	Buy  int `json:"buy"`
	Sell int `json:"sell"`
	Hold int `json:"hold"`
}

// RiskParams are the optional exit thresholds a strategy declares.
// Zero disables a threshold.
type RiskParams struct {
	StopLossPct   float64 `json:"stop_loss_pct"`
	TakeProfitPct float64 `json:"take_profit_pct"`
}

// Output is what a successful sandbox run yields.
type Output struct {
	Signals SignalSeries
	Risk    RiskParams
}
