package backtest

import (
	"math"

	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/market"
	"github.com/newthinker/prism/internal/strategy"
)

// SimulationConfig holds account settings for one simulation.
type SimulationConfig struct {
	InitialCapital float64
	CommissionRate float64
	Risk           strategy.RiskParams
}

// Simulation is the ledger and equity curve produced by Simulate.
type Simulation struct {
	Trades []Trade
	Equity []EquityPoint
}

// Simulate replays signals bar by bar with an all-in, all-out long-only
// policy. Fills happen at the bar close. Risk exits override the signal, stop
// loss first. A position still open after the last bar is sold at the final
// close and the last equity point is rewritten in place.
func Simulate(table *market.Table, signals strategy.SignalSeries, cfg SimulationConfig) (*Simulation, error) {
	n := table.Len()
	if len(signals) != n {
		return nil, core.Errorf(core.ErrContractViolation, "%d signals for %d bars", len(signals), n)
	}

	rate := cfg.CommissionRate
	cash := cfg.InitialCapital
	var pos Position
	trades := make([]Trade, 0)
	equity := make([]EquityPoint, 0, n)

	for i := 0; i < n; i++ {
		bar := table.Bar(i)
		price := bar.Close
		signal := signals[i]
		reason := ReasonSignal

		if pos.Long() && pos.EntryPrice > 0 {
			change := (price - pos.EntryPrice) / pos.EntryPrice
			if cfg.Risk.StopLossPct > 0 && change <= -cfg.Risk.StopLossPct {
				signal, reason = strategy.Sell, ReasonStopLoss
			} else if cfg.Risk.TakeProfitPct > 0 && change >= cfg.Risk.TakeProfitPct {
				signal, reason = strategy.Sell, ReasonTakeProfit
			}
		}

		switch {
		case signal == strategy.Buy && !pos.Long():
			if shares := affordableShares(cash, price, rate); shares > 0 {
				t := buy(bar, shares, rate)
				cash -= t.GrossValue
				pos = Position{Shares: shares, EntryPrice: price}
				trades = append(trades, t)
			}
		case signal == strategy.Sell && pos.Long():
			t := sell(bar, pos.Shares, rate, reason)
			cash += t.GrossValue
			pos = Position{}
			trades = append(trades, t)
		}

		equity = append(equity, equityPoint(bar, cash, pos))
	}

	if pos.Long() && n > 0 {
		last := table.Bar(n - 1)
		t := sell(last, pos.Shares, rate, ReasonEndOfData)
		cash += t.GrossValue
		pos = Position{}
		trades = append(trades, t)
		equity[n-1] = equityPoint(last, cash, pos)
	}

	return &Simulation{Trades: trades, Equity: equity}, nil
}

// affordableShares is floor(cash / (price * (1 + rate))), reduced further if
// rounding would overdraw cash.
func affordableShares(cash, price, rate float64) uint64 {
	if !(price > 0) || !(cash > 0) || math.IsInf(price, 0) || math.IsInf(cash, 0) {
		return 0
	}
	unit := price * (1 + rate)
	if !(unit > 0) {
		return 0
	}
	whole := math.Floor(cash / unit)
	if whole < 1 {
		return 0
	}
	if whole > 1<<53 {
		whole = 1 << 53
	}
	shares := uint64(whole)
	for shares > 0 && float64(shares)*price*(1+rate) > cash {
		shares--
	}
	return shares
}

func buy(bar market.Bar, shares uint64, rate float64) Trade {
	qty := float64(shares)
	return Trade{
		Timestamp:  bar.Time,
		Side:       SideBuy,
		Price:      bar.Close,
		Shares:     shares,
		GrossValue: qty * bar.Close * (1 + rate),
		Commission: qty * bar.Close * rate,
		Reason:     ReasonSignal,
	}
}

func sell(bar market.Bar, shares uint64, rate float64, reason Reason) Trade {
	qty := float64(shares)
	return Trade{
		Timestamp:  bar.Time,
		Side:       SideSell,
		Price:      bar.Close,
		Shares:     shares,
		GrossValue: qty * bar.Close * (1 - rate),
		Commission: qty * bar.Close * rate,
		Reason:     reason,
	}
}

func equityPoint(bar market.Bar, cash float64, pos Position) EquityPoint {
	value := float64(pos.Shares) * bar.Close
	return EquityPoint{
		Timestamp:     bar.Time,
		Cash:          cash,
		PositionValue: value,
		Equity:        cash + value,
	}
}
