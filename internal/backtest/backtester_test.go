package backtest

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/market"
	"github.com/newthinker/prism/internal/strategy"
)

const buyHoldSell = `
series := import("series")

Strategy := func(data) {
	return {
		generate_signals: func() {
			signals := series.zeros(data.len)
			signals[0] = 1
			signals[data.len - 1] = -1
			return signals
		}
	}
}
`

const infiniteLoop = `
Strategy := func(data) {
	return {
		generate_signals: func() {
			for {}
			return []
		}
	}
}
`

// mockProvider implements OHLCVProvider for testing
type mockProvider struct {
	data []core.OHLCV
	err  error
}

func (m *mockProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.data, nil
}

// stubExecutor returns a fixed output or panics.
type stubExecutor struct {
	out   *strategy.Output
	panic bool
}

func (s *stubExecutor) Execute(ctx context.Context, p strategy.Program, table *market.Table) (*strategy.Output, error) {
	if s.panic {
		panic("executor exploded")
	}
	return s.out, nil
}

type recordedCall struct {
	kind, outcome string
}

type fakeRecorder struct {
	mu    sync.Mutex
	calls []recordedCall
}

func (f *fakeRecorder) RecordBacktest(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{"backtest", outcome})
}

func (f *fakeRecorder) RecordSandbox(outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{"sandbox", outcome})
}

func newTestBacktester(timeout time.Duration) (*Backtester, *strategy.Sandbox) {
	sb := strategy.NewSandbox(strategy.SandboxConfig{Timeout: timeout, MaxAllocs: 1_000_000}, nil)
	return New(sb, Config{InitialCapital: 1000, CommissionRate: 0}, nil), sb
}

func zero() *float64 {
	v := 0.0
	return &v
}

func TestBacktester_Run(t *testing.T) {
	bt, sb := newTestBacktester(time.Second)

	result, err := bt.Run(context.Background(), Request{
		Program: strategy.Program{Name: "buy-hold-sell", Source: buyHoldSell},
		Table:   closesTable(t, 100, 110, 90),
	})
	require.NoError(t, err)

	assert.Equal(t, "buy-hold-sell", result.Program)
	assert.Equal(t, "TEST", result.Symbol)
	assert.Equal(t, 3, result.Bars)
	assert.Equal(t, strategy.SignalCount{Buy: 1, Sell: 1, Hold: 1}, result.Signals)
	assert.Equal(t, -0.10, result.Metrics.TotalReturn)
	assert.Len(t, result.EquityCurve, 3)
	assert.Len(t, result.Trades, 2)
	assert.Equal(t, int64(1), sb.Executions())
}

func TestBacktester_Idempotent(t *testing.T) {
	bt, _ := newTestBacktester(time.Second)
	req := Request{
		Program: strategy.Program{Name: "p", Source: buyHoldSell},
		Table:   closesTable(t, 100, 104, 99, 120, 118),
	}

	first, err := bt.Run(context.Background(), req)
	require.NoError(t, err)
	second, err := bt.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBacktester_ValidationShortCircuits(t *testing.T) {
	bt, sb := newTestBacktester(time.Second)

	_, err := bt.Run(context.Background(), Request{
		Program: strategy.Program{Source: `os := import("os")` + buyHoldSell},
		Table:   closesTable(t, 100, 110, 90),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrValidation), "got %v", err)
	assert.Equal(t, int64(0), sb.Executions())
}

func TestBacktester_TimeoutKeepsEngineResponsive(t *testing.T) {
	bt, _ := newTestBacktester(300 * time.Millisecond)
	table := closesTable(t, 100, 110, 90)

	start := time.Now()
	result, err := bt.Run(context.Background(), Request{Program: strategy.Program{Source: infiniteLoop}, Table: table})
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.Is(err, core.ErrTimeout), "got %v", err)
	assert.Less(t, time.Since(start), 5*time.Second)

	next := time.Now()
	result, err = bt.Run(context.Background(), Request{Program: strategy.Program{Source: buyHoldSell}, Table: table})
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Less(t, time.Since(next), time.Second)
}

func TestBacktester_AllHold(t *testing.T) {
	bt, _ := newTestBacktester(time.Second)
	src := `
series := import("series")
Strategy := func(data) {
	return { generate_signals: func() { return series.zeros(data.len) } }
}
`
	result, err := bt.Run(context.Background(), Request{
		Program: strategy.Program{Source: src},
		Table:   closesTable(t, 100, 120, 80, 95),
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, result.Metrics.SharpeRatio)
	assert.Equal(t, 0.0, result.Metrics.MaxDrawdown)
	assert.Empty(t, result.Trades)
}

func TestBacktester_StopLossFromProgram(t *testing.T) {
	bt, _ := newTestBacktester(time.Second)
	src := `
Strategy := func(data) {
	return {
		stop_loss: 0.05,
		generate_signals: func() { return [1, 0, 0] }
	}
}
`
	result, err := bt.Run(context.Background(), Request{
		Program: strategy.Program{Source: src},
		Table:   closesTable(t, 100, 110, 90),
	})
	require.NoError(t, err)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, ReasonStopLoss, result.Trades[1].Reason)
	assert.Equal(t, 0.05, result.Risk.StopLossPct)
}

func TestBacktester_InputErrors(t *testing.T) {
	bt, sb := newTestBacktester(time.Second)
	prog := strategy.Program{Source: buyHoldSell}
	negative := -0.1

	tests := []struct {
		name string
		req  Request
		want *core.Error
	}{
		{"no table", Request{Program: prog}, core.ErrInsufficientData},
		{"too few bars", Request{Program: prog, Table: closesTable(t, 100), MinBars: 2}, core.ErrInsufficientData},
		{"custom minimum", Request{Program: prog, Table: closesTable(t, 1, 2, 3), MinBars: 20}, core.ErrInsufficientData},
		{"negative capital", Request{Program: prog, Table: closesTable(t, 1, 2), InitialCapital: -5}, core.ErrValidation},
		{"negative commission", Request{Program: prog, Table: closesTable(t, 1, 2), CommissionRate: &negative}, core.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bt.Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "expected %s, got %v", tt.want.Code, err)
		})
	}
	assert.Equal(t, int64(0), sb.Executions())
}

func TestBacktester_InitialCapital(t *testing.T) {
	bt, _ := newTestBacktester(time.Second)
	prog := strategy.Program{Source: buyHoldSell}

	tests := []struct {
		name    string
		capital float64
		want    float64
	}{
		{"zero uses configured default", 0, 1000},
		{"explicit", 5000, 5000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := bt.Run(context.Background(), Request{
				Program:        prog,
				Table:          closesTable(t, 100, 110, 90),
				InitialCapital: tt.capital,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Metrics.InitialCapital)
			assert.Equal(t, tt.want, result.EquityCurve[0].Equity)
		})
	}

	_, err := bt.Run(context.Background(), Request{Program: prog, Table: closesTable(t, 100, 110), InitialCapital: -0.01})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestBacktester_RecoversPanics(t *testing.T) {
	bt := New(&stubExecutor{panic: true}, DefaultConfig(), nil)

	result, err := bt.Run(context.Background(), Request{
		Program: strategy.Program{Source: buyHoldSell},
		Table:   closesTable(t, 1, 2),
	})
	assert.Nil(t, result)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrInternal))
	assert.Contains(t, err.Error(), "executor exploded")
}

func TestBacktester_ShortSignalSeriesIsContractViolation(t *testing.T) {
	bt := New(&stubExecutor{out: &strategy.Output{Signals: strategy.SignalSeries{strategy.Buy}}}, DefaultConfig(), nil)

	_, err := bt.Run(context.Background(), Request{
		Program: strategy.Program{Source: buyHoldSell},
		Table:   closesTable(t, 1, 2),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrContractViolation))
}

func TestBacktester_RecordsOutcomes(t *testing.T) {
	bt, _ := newTestBacktester(time.Second)
	rec := &fakeRecorder{}
	bt.SetRecorder(rec)

	_, err := bt.Run(context.Background(), Request{Program: strategy.Program{Source: buyHoldSell}, Table: closesTable(t, 1, 2)})
	require.NoError(t, err)
	_, err = bt.Run(context.Background(), Request{Program: strategy.Program{Source: "x := 1"}, Table: closesTable(t, 1, 2)})
	require.Error(t, err)

	assert.Equal(t, []recordedCall{
		{"sandbox", "success"},
		{"backtest", "success"},
		{"backtest", "VALIDATION_ERROR"},
	}, rec.calls)
}

func TestBacktester_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(&buf), zapcore.DebugLevel))

	sb := strategy.NewSandbox(strategy.DefaultSandboxConfig(), nil)
	bt := New(sb, DefaultConfig(), logger)
	_, err := bt.Run(context.Background(), Request{Program: strategy.Program{Name: "broken", Source: ""}, Table: closesTable(t, 1, 2)})
	require.Error(t, err)

	out := buf.String()
	assert.Contains(t, out, `"msg":"backtest failed"`)
	assert.Contains(t, out, `"program":"broken"`)
	assert.Contains(t, out, `"code":"VALIDATION_ERROR"`)
}

func TestBacktester_RunSymbol(t *testing.T) {
	bt, _ := newTestBacktester(time.Second)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var data []core.OHLCV
	for i := 0; i < 30; i++ {
		data = append(data, core.OHLCV{Symbol: "AAPL", Close: 100 + float64(i), Time: start.AddDate(0, 0, i)})
	}
	bt.SetProvider(&mockProvider{data: data})

	src := `
series := import("series")
Strategy := func(data) {
	return {
		generate_signals: func() {
			signals := series.zeros(data.len)
			for i := 0; i < data.len; i++ {
				if !series.is_nan(data.MA20[i]) && data.close[i] > data.MA20[i] {
					signals[i] = 1
				}
			}
			return signals
		}
	}
}
`
	result, err := bt.RunSymbol(context.Background(), SymbolRequest{
		Program:        strategy.Program{Name: "trend", Source: src},
		Symbol:         "AAPL",
		Start:          start,
		End:            start.AddDate(0, 1, 0),
		CommissionRate: zero(),
	})
	require.NoError(t, err)
	assert.Equal(t, "AAPL", result.Symbol)
	assert.Equal(t, 30, result.Bars)
	require.Len(t, result.Trades, 2)
	assert.Equal(t, data[19].Time, result.Trades[0].Timestamp)
	assert.Equal(t, ReasonEndOfData, result.Trades[1].Reason)
}

func TestBacktester_RunSymbolErrors(t *testing.T) {
	bt, _ := newTestBacktester(time.Second)
	req := SymbolRequest{Program: strategy.Program{Source: buyHoldSell}, Symbol: "AAPL", Start: time.Now().AddDate(0, -1, 0), End: time.Now()}

	_, err := bt.RunSymbol(context.Background(), req)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))

	bt.SetProvider(&mockProvider{err: core.WrapError(core.ErrSymbolNotFound, errors.New("XXXX"))})
	_, err = bt.RunSymbol(context.Background(), req)
	assert.True(t, errors.Is(err, core.ErrSymbolNotFound))

	bt.SetProvider(&mockProvider{})
	_, err = bt.RunSymbol(context.Background(), req)
	assert.True(t, errors.Is(err, core.ErrNoData))

	bad := req
	bad.End = bad.Start
	_, err = bt.RunSymbol(context.Background(), bad)
	assert.True(t, errors.Is(err, core.ErrValidation))
}

func TestBacktester_LoadTable(t *testing.T) {
	bt, _ := newTestBacktester(time.Second)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var data []core.OHLCV
	for i := 0; i < 25; i++ {
		data = append(data, core.OHLCV{Symbol: "MSFT", Close: 50 + float64(i), Time: start.AddDate(0, 0, i)})
	}
	bt.SetProvider(&mockProvider{data: data})

	table, err := bt.LoadTable(context.Background(), "MSFT", start, start.AddDate(0, 1, 0), "")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", table.Symbol())
	assert.Equal(t, 25, table.Len())
	assert.Contains(t, table.Columns(), "MA20")
	assert.Contains(t, table.Columns(), "BB_Lower")
}
