package backtest

import (
	"time"

	"github.com/newthinker/prism/internal/strategy"
)

// Side is the direction of a trade.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Reason explains why a trade happened.
type Reason string

const (
	ReasonSignal     Reason = "signal"
	ReasonStopLoss   Reason = "stop_loss"
	ReasonTakeProfit Reason = "take_profit"
	ReasonEndOfData  Reason = "end_of_data"
)

// Result holds the complete backtest output
type Result struct {
	Program     string               `json:"program"`
	Symbol      string               `json:"symbol,omitempty"`
	StartDate   time.Time            `json:"start_date"`
	EndDate     time.Time            `json:"end_date"`
	Bars        int                  `json:"bars"`
	Risk        strategy.RiskParams  `json:"risk"`
	Signals     strategy.SignalCount `json:"signals"`
	Metrics     Metrics              `json:"metrics"`
	EquityCurve []EquityPoint        `json:"equity_curve"`
	Trades      []Trade              `json:"trades"`
}

// Trade is one fill in the ledger.
type Trade struct {
	Timestamp  time.Time `json:"timestamp"`
	Side       Side      `json:"side"`
	Price      float64   `json:"price"`
	Shares     uint64    `json:"shares"`
	GrossValue float64   `json:"gross_value"` // cash that changed hands, commission included
	Commission float64   `json:"commission"`
	Reason     Reason    `json:"reason"`
}

// EquityPoint is the end-of-bar account state.
type EquityPoint struct {
	Timestamp     time.Time `json:"timestamp"`
	Cash          float64   `json:"cash"`
	PositionValue float64   `json:"position_value"`
	Equity        float64   `json:"equity"`
}

// Position is either flat (zero shares) or long.
type Position struct {
	Shares     uint64
	EntryPrice float64
}

// Long returns true if shares are held
func (p Position) Long() bool {
	return p.Shares > 0
}

// Metrics holds performance statistics.
//
// ProfitFactor is gross profit over gross loss. With winning round trips and
// no losing ones it is the sentinel math.MaxFloat64 rather than +Inf, which
// JSON cannot carry; check NoLosingTrades before doing arithmetic on it.
type Metrics struct {
	InitialCapital  float64 `json:"initial_capital"`
	FinalEquity     float64 `json:"final_equity"`
	TotalReturn     float64 `json:"total_return"`
	TotalReturnPct  float64 `json:"total_return_pct"`
	SharpeRatio     float64 `json:"sharpe_ratio"`     // annualized over 252 periods
	MaxDrawdown     float64 `json:"max_drawdown"`     // <= 0
	MaxDrawdownPct  float64 `json:"max_drawdown_pct"` // <= 0
	RoundTrips      int     `json:"round_trip_count"`
	WinningTrades   int     `json:"winning_trades"`
	LosingTrades    int     `json:"losing_trades"`
	WinRate         float64 `json:"win_rate"`
	WinRatePct      float64 `json:"win_rate_pct"`
	AvgWin          float64 `json:"avg_win"`
	AvgLoss         float64 `json:"avg_loss"`      // magnitude
	ProfitFactor    float64 `json:"profit_factor"` // math.MaxFloat64 when NoLosingTrades
	TotalCommission float64 `json:"total_commission"`
}

// NoLosingTrades reports the case where ProfitFactor is unbounded.
func (m Metrics) NoLosingTrades() bool {
	return m.RoundTrips > 0 && m.LosingTrades == 0
}
