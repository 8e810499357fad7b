package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/indicator"
	"github.com/newthinker/prism/internal/market"
	"github.com/newthinker/prism/internal/strategy"
)

// Outcome labels used for metrics.
const (
	OutcomeSuccess = "success"
)

// OHLCVProvider defines the interface for fetching historical OHLCV data
type OHLCVProvider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error)
}

// Executor runs a strategy program against a table.
type Executor interface {
	Execute(ctx context.Context, p strategy.Program, table *market.Table) (*strategy.Output, error)
}

// Recorder receives outcome and timing of each backtest.
type Recorder interface {
	RecordBacktest(outcome string, duration time.Duration)
	RecordSandbox(outcome string, duration time.Duration)
}

// Config holds account defaults applied when a request leaves them unset.
type Config struct {
	InitialCapital float64
	CommissionRate float64
	MinBars        int
}

// DefaultConfig returns 100000 capital, 0.1% commission and a two-bar minimum.
func DefaultConfig() Config {
	return Config{
		InitialCapital: 100000,
		CommissionRate: 0.001,
		MinBars:        2,
	}
}

// Request describes one backtest over an already loaded table.
type Request struct {
	Program        strategy.Program
	Table          *market.Table
	InitialCapital float64  // 0 uses the configured default; negative is a VALIDATION_ERROR
	CommissionRate *float64 // nil uses the configured default
	MinBars        int      // 0 uses the configured default
}

// SymbolRequest describes a backtest over market data fetched by symbol.
type SymbolRequest struct {
	Program        strategy.Program
	Symbol         string
	Start          time.Time
	End            time.Time
	Interval       string
	InitialCapital float64 // as in Request
	CommissionRate *float64
}

// Backtester runs strategy backtests against historical data
type Backtester struct {
	executor Executor
	provider OHLCVProvider
	recorder Recorder
	cfg      Config
	logger   *zap.Logger
}

// New creates a new Backtester around the given executor
func New(executor Executor, cfg Config, logger *zap.Logger) *Backtester {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = def.InitialCapital
	}
	if cfg.CommissionRate < 0 {
		cfg.CommissionRate = def.CommissionRate
	}
	if cfg.MinBars <= 0 {
		cfg.MinBars = def.MinBars
	}
	return &Backtester{
		executor: executor,
		cfg:      cfg,
		logger:   logger,
	}
}

// SetProvider sets the market data source used by RunSymbol.
func (b *Backtester) SetProvider(p OHLCVProvider) {
	b.provider = p
}

// SetRecorder sets the metrics sink.
func (b *Backtester) SetRecorder(r Recorder) {
	b.recorder = r
}

// Config returns the effective defaults.
func (b *Backtester) Config() Config {
	return b.cfg
}

// Run validates the program, executes it in the sandbox, simulates the
// resulting signals and computes metrics. Stages run in order and the first
// failure ends the run with a *core.Error and no partial result.
func (b *Backtester) Run(ctx context.Context, req Request) (result *Result, err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, core.Errorf(core.ErrInternal, "panic: %v", r)
		}
		b.finish(req, start, err)
	}()

	capital := req.InitialCapital
	if capital == 0 {
		capital = b.cfg.InitialCapital
	}
	rate := b.cfg.CommissionRate
	if req.CommissionRate != nil {
		rate = *req.CommissionRate
	}
	minBars := req.MinBars
	if minBars <= 0 {
		minBars = b.cfg.MinBars
	}

	if capital <= 0 {
		return nil, core.Errorf(core.ErrValidation, "initial capital must be positive, got %v", capital)
	}
	if rate < 0 || rate >= 1 {
		return nil, core.Errorf(core.ErrValidation, "commission rate must be in [0, 1), got %v", rate)
	}
	if req.Table == nil || req.Table.Len() == 0 {
		return nil, core.Errorf(core.ErrInsufficientData, "no bars to test")
	}
	if req.Table.Len() < minBars {
		return nil, core.Errorf(core.ErrInsufficientData, "%d bars, need at least %d", req.Table.Len(), minBars)
	}

	if err := strategy.Validate(req.Program); err != nil {
		return nil, err
	}

	sandboxStart := time.Now()
	out, err := b.executor.Execute(ctx, req.Program, req.Table)
	b.recordSandbox(sandboxStart, err)
	if err != nil {
		return nil, core.AsError(err)
	}
	if len(out.Signals) != req.Table.Len() {
		return nil, core.Errorf(core.ErrContractViolation, "%d signals for %d bars", len(out.Signals), req.Table.Len())
	}

	sim, err := Simulate(req.Table, out.Signals, SimulationConfig{
		InitialCapital: capital,
		CommissionRate: rate,
		Risk:           out.Risk,
	})
	if err != nil {
		return nil, err
	}

	metrics, err := CalculateMetrics(capital, sim.Equity, sim.Trades)
	if err != nil {
		return nil, err
	}

	return &Result{
		Program:     req.Program.Name,
		Symbol:      req.Table.Symbol(),
		StartDate:   req.Table.Start(),
		EndDate:     req.Table.End(),
		Bars:        req.Table.Len(),
		Risk:        out.Risk,
		Signals:     out.Signals.Count(),
		Metrics:     metrics,
		EquityCurve: sim.Equity,
		Trades:      sim.Trades,
	}, nil
}

// RunSymbol fetches history for a symbol, attaches the standard indicator
// columns and runs the backtest.
func (b *Backtester) RunSymbol(ctx context.Context, req SymbolRequest) (*Result, error) {
	table, err := b.LoadTable(ctx, req.Symbol, req.Start, req.End, req.Interval)
	if err != nil {
		return nil, err
	}

	return b.Run(ctx, Request{
		Program:        req.Program,
		Table:          table,
		InitialCapital: req.InitialCapital,
		CommissionRate: req.CommissionRate,
	})
}

// LoadTable fetches bars for symbol in [start, end] from the provider and
// builds a table with the standard indicator columns. interval defaults to 1d.
func (b *Backtester) LoadTable(ctx context.Context, symbol string, start, end time.Time, interval string) (*market.Table, error) {
	if b.provider == nil {
		return nil, core.Errorf(core.ErrConfigMissing, "no market data provider configured")
	}
	if symbol == "" {
		return nil, core.Errorf(core.ErrValidation, "symbol is required")
	}
	if !end.After(start) {
		return nil, core.Errorf(core.ErrValidation, "end %s is not after start %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if interval == "" {
		interval = string(core.Interval1d)
	}

	ohlcv, err := b.provider.FetchHistory(ctx, symbol, start, end, interval)
	if err != nil {
		return nil, core.AsError(err)
	}
	if len(ohlcv) == 0 {
		return nil, core.WrapError(core.ErrNoData, fmt.Errorf("no history for %s", symbol))
	}

	return market.FromOHLCV(symbol, ohlcv, indicator.Standard(core.Closes(ohlcv)))
}

func (b *Backtester) recordSandbox(start time.Time, err error) {
	if b.recorder == nil {
		return
	}
	b.recorder.RecordSandbox(outcome(err), time.Since(start))
}

func (b *Backtester) finish(req Request, start time.Time, err error) {
	elapsed := time.Since(start)
	if b.recorder != nil {
		b.recorder.RecordBacktest(outcome(err), elapsed)
	}

	fields := []zap.Field{
		zap.String("program", req.Program.Name),
		zap.Duration("elapsed", elapsed),
	}
	if req.Table != nil {
		fields = append(fields, zap.String("symbol", req.Table.Symbol()), zap.Int("bars", req.Table.Len()))
	}
	if err != nil {
		b.logger.Warn("backtest failed", append(fields, zap.String("code", outcome(err)), zap.Error(err))...)
		return
	}
	b.logger.Info("backtest completed", fields...)
}

// outcome maps an error to its code, or "success".
func outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return core.AsError(err).Code
}
