package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/newthinker/prism/internal/backtest"
)

func money(v float64) string {
	d := decimal.NewFromFloat(v).Round(2)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

func pct(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

func ratio(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(3)
}

func profitFactor(m backtest.Metrics) string {
	if m.NoLosingTrades() {
		return "inf"
	}
	return ratio(m.ProfitFactor)
}

// writeReport prints a single backtest result, optionally with its trade ledger.
func writeReport(out io.Writer, r *backtest.Result, trades bool) {
	m := r.Metrics

	fmt.Fprintln(out, "=== PRISM Backtest ===")
	fmt.Fprintf(out, "Strategy: %s\n", r.Program)
	fmt.Fprintf(out, "Symbol:   %s\n", r.Symbol)
	fmt.Fprintf(out, "Period:   %s to %s (%d bars)\n",
		r.StartDate.Format(time.DateOnly), r.EndDate.Format(time.DateOnly), r.Bars)
	fmt.Fprintf(out, "Signals:  %d buy / %d sell / %d hold\n", r.Signals.Buy, r.Signals.Sell, r.Signals.Hold)
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Initial capital\t%s\t\n", money(m.InitialCapital))
	fmt.Fprintf(w, "Final equity\t%s\t\n", money(m.FinalEquity))
	fmt.Fprintf(w, "Total return\t%s (%s)\t\n", money(m.TotalReturn), pct(m.TotalReturnPct))
	fmt.Fprintf(w, "Sharpe ratio\t%s\t\n", ratio(m.SharpeRatio))
	fmt.Fprintf(w, "Max drawdown\t%s (%s)\t\n", money(m.MaxDrawdown), pct(m.MaxDrawdownPct))
	fmt.Fprintf(w, "Round trips\t%d (%d won, %d lost)\t\n", m.RoundTrips, m.WinningTrades, m.LosingTrades)
	fmt.Fprintf(w, "Win rate\t%s\t\n", pct(m.WinRatePct))
	fmt.Fprintf(w, "Avg win / loss\t%s / %s\t\n", money(m.AvgWin), money(m.AvgLoss))
	fmt.Fprintf(w, "Profit factor\t%s\t\n", profitFactor(m))
	fmt.Fprintf(w, "Commission\t%s\t\n", money(m.TotalCommission))
	w.Flush()

	if !trades || len(r.Trades) == 0 {
		return
	}

	fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tSIDE\tSHARES\tPRICE\tVALUE\tCOMMISSION\tREASON\t")
	fmt.Fprintln(w, "----\t----\t------\t-----\t-----\t----------\t------\t")
	for _, t := range r.Trades {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\t%s\t%s\t\n",
			t.Timestamp.Format(time.DateOnly), t.Side, t.Shares,
			money(t.Price), money(t.GrossValue), money(t.Commission), t.Reason)
	}
	w.Flush()
}

// writeSummary prints one line per batch result.
func writeSummary(out io.Writer, symbols []string, results []backtest.BatchResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tRETURN\tSHARPE\tMAX DD\tTRIPS\tWIN RATE\tERROR\t")
	fmt.Fprintln(w, "------\t------\t------\t------\t-----\t--------\t-----\t")
	for _, br := range results {
		if br.Err != nil {
			fmt.Fprintf(w, "%s\t-\t-\t-\t-\t-\t%s\t\n", symbols[br.Index], br.Err.Code)
			continue
		}
		m := br.Result.Metrics
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t\t\n",
			symbols[br.Index], pct(m.TotalReturnPct), ratio(m.SharpeRatio),
			pct(m.MaxDrawdownPct), m.RoundTrips, pct(m.WinRatePct))
	}
	w.Flush()
}
