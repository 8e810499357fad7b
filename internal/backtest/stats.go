package backtest

import (
	"math"

	"github.com/newthinker/prism/internal/core"
)

// tradingDays annualizes per-bar statistics.
const tradingDays = 252

// CalculateMetrics computes performance statistics from the equity curve and
// the trade ledger. The ledger must hold (BUY, SELL) pairs in order.
func CalculateMetrics(initialCapital float64, equity []EquityPoint, trades []Trade) (Metrics, error) {
	m := Metrics{
		InitialCapital: initialCapital,
		FinalEquity:    initialCapital,
	}
	if len(equity) > 0 {
		m.FinalEquity = equity[len(equity)-1].Equity
	}
	if initialCapital != 0 {
		m.TotalReturn = (m.FinalEquity - initialCapital) / initialCapital
	}

	values := make([]float64, len(equity))
	for i, p := range equity {
		values[i] = p.Equity
	}
	m.SharpeRatio = calculateSharpeRatio(periodReturns(values))
	m.MaxDrawdown = calculateMaxDrawdown(values)

	if len(trades)%2 != 0 {
		return Metrics{}, core.Errorf(core.ErrInternal, "ledger has %d trades; expected buy/sell pairs", len(trades))
	}

	var totalProfit, totalLoss float64
	for i := 0; i < len(trades); i += 2 {
		entry, exit := trades[i], trades[i+1]
		if entry.Side != SideBuy || exit.Side != SideSell {
			return Metrics{}, core.Errorf(core.ErrInternal, "trades %d and %d are %s/%s, expected BUY/SELL", i, i+1, entry.Side, exit.Side)
		}
		pnl := exit.GrossValue - entry.GrossValue
		if pnl > 0 {
			m.WinningTrades++
			totalProfit += pnl
		} else {
			m.LosingTrades++
			totalLoss += -pnl
		}
		m.TotalCommission += entry.Commission + exit.Commission
	}
	m.RoundTrips = len(trades) / 2

	if m.RoundTrips > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(m.RoundTrips)
	}
	if m.WinningTrades > 0 {
		m.AvgWin = totalProfit / float64(m.WinningTrades)
	}
	if m.LosingTrades > 0 {
		m.AvgLoss = totalLoss / float64(m.LosingTrades)
	}
	switch {
	case totalLoss > 0:
		m.ProfitFactor = totalProfit / totalLoss
	case totalProfit > 0:
		// no losing trades: unbounded, reported as the largest finite value
		m.ProfitFactor = math.MaxFloat64
	}

	m.TotalReturnPct = m.TotalReturn * 100
	m.MaxDrawdownPct = m.MaxDrawdown * 100
	m.WinRatePct = m.WinRate * 100

	return normalize(m), nil
}

// periodReturns returns e[t]/e[t-1] - 1; a zero base yields 0.
func periodReturns(values []float64) []float64 {
	if len(values) < 2 {
		return nil
	}
	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, values[i]/values[i-1]-1)
	}
	return returns
}

// calculateMaxDrawdown returns the most negative (value - running peak) / running peak.
func calculateMaxDrawdown(values []float64) float64 {
	var maxDD float64
	peak := math.Inf(-1)

	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			dd := (v - peak) / peak
			if dd < maxDD {
				maxDD = dd
			}
		}
	}

	return maxDD
}

// calculateSharpeRatio computes risk-adjusted return
// Assumes risk-free rate of 0 for simplicity
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	// Calculate mean return
	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	// Calculate standard deviation
	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	stdDev := math.Sqrt(variance / float64(len(returns)-1))

	if stdDev == 0 {
		return 0
	}

	return mean / stdDev * math.Sqrt(tradingDays)
}

func normalize(m Metrics) Metrics {
	for _, f := range []*float64{
		&m.InitialCapital, &m.FinalEquity, &m.TotalReturn, &m.TotalReturnPct,
		&m.SharpeRatio, &m.MaxDrawdown, &m.MaxDrawdownPct, &m.WinRate, &m.WinRatePct,
		&m.AvgWin, &m.AvgLoss, &m.ProfitFactor, &m.TotalCommission,
	} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}
	return m
}
