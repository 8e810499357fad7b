// Package notifier delivers finished backtest jobs to external channels.
package notifier

import (
	"context"
	"time"

	"github.com/newthinker/prism/internal/backtest"
	"github.com/newthinker/prism/internal/core"
)

// Event describes one finished backtest job.
type Event struct {
	JobID      string    `json:"job_id"`
	Status     string    `json:"status"` // "complete" or "failed"
	Program    string    `json:"program,omitempty"`
	Symbol     string    `json:"symbol"`
	FinishedAt time.Time `json:"finished_at"`

	TotalReturnPct float64 `json:"total_return_pct,omitempty"`
	SharpeRatio    float64 `json:"sharpe_ratio,omitempty"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct,omitempty"`
	RoundTrips     int     `json:"round_trip_count,omitempty"`

	ErrorCode string `json:"error_code,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Failed reports whether the job ended in an error.
func (e Event) Failed() bool {
	return e.ErrorCode != ""
}

// BacktestEvent summarises a job outcome. Exactly one of result and err is set.
func BacktestEvent(jobID, symbol string, result *backtest.Result, err error, at time.Time) Event {
	e := Event{JobID: jobID, Symbol: symbol, FinishedAt: at.UTC()}
	if err != nil {
		ce := core.AsError(err)
		e.Status = "failed"
		e.ErrorCode = ce.Code
		e.Error = ce.Detail()
		return e
	}
	m := result.Metrics
	e.Status = "complete"
	e.Program = result.Program
	e.TotalReturnPct = m.TotalReturnPct
	e.SharpeRatio = m.SharpeRatio
	e.MaxDrawdownPct = m.MaxDrawdownPct
	e.RoundTrips = m.RoundTrips
	return e
}

// Notifier defines the interface for job notification
type Notifier interface {
	// Name returns the unique identifier for this notifier
	Name() string

	// Notify delivers a single event
	Notify(ctx context.Context, e Event) error
}
