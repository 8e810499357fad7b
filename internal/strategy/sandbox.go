package strategy

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/market"
)

// harness instantiates the strategy and calls generate_signals exactly once.
// Results are left in globals for the host to read back.
const harness = `
__instance := Strategy(__data)
__signals := undefined
__invoked := false
__stop_loss := undefined
__take_profit := undefined
if is_error(__instance) {
	__signals = __instance
} else if is_map(__instance) || is_immutable_map(__instance) {
	if is_callable(__instance.generate_signals) {
		__signals = __instance.generate_signals()
		__invoked = true
	}
	__stop_loss = __instance.stop_loss
	__take_profit = __instance.take_profit
}
`

// SandboxConfig bounds a single strategy run.
type SandboxConfig struct {
	Timeout   time.Duration
	MaxAllocs int64 // object allocations per run, <= 0 for unlimited
}

// DefaultSandboxConfig returns a 5s deadline and a 10M allocation cap.
func DefaultSandboxConfig() SandboxConfig {
	return SandboxConfig{
		Timeout:   5 * time.Second,
		MaxAllocs: 10_000_000,
	}
}

// Sandbox runs strategy programs in a fresh tengo VM per call. Only the
// series, math and enum modules are bound; scripts get no I/O.
type Sandbox struct {
	cfg        SandboxConfig
	logger     *zap.Logger
	executions atomic.Int64
}

// NewSandbox creates a sandbox.
func NewSandbox(cfg SandboxConfig, logger *zap.Logger) *Sandbox {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSandboxConfig().Timeout
	}
	return &Sandbox{cfg: cfg, logger: logger}
}

// Timeout returns the per-run deadline.
func (s *Sandbox) Timeout() time.Duration { return s.cfg.Timeout }

// Executions reports how many runs have entered the sandbox.
func (s *Sandbox) Executions() int64 { return s.executions.Load() }

// Execute compiles and runs p against table and returns its signals and risk
// parameters. Every failure is a *core.Error.
func (s *Sandbox) Execute(ctx context.Context, p Program, table *market.Table) (*Output, error) {
	s.executions.Add(1)

	script := tengo.NewScript([]byte(p.Source + "\n" + harness))
	script.SetImports(modules())
	script.EnableFileImport(false)
	if s.cfg.MaxAllocs > 0 {
		script.SetMaxAllocs(s.cfg.MaxAllocs)
	}
	if err := script.Add("__data", tableObject(table)); err != nil {
		return nil, core.WrapError(core.ErrInternal, err)
	}

	compiled, err := script.Compile()
	if err != nil {
		return nil, core.WrapError(core.ErrCompile, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	err = compiled.RunContext(runCtx)
	elapsed := time.Since(start)
	if err != nil {
		s.logger.Debug("strategy run failed",
			zap.String("program", p.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, core.Errorf(core.ErrTimeout, "no result within %s", s.cfg.Timeout)
		case errors.Is(err, context.Canceled):
			return nil, core.WrapError(core.ErrTimeout, err)
		default:
			return nil, core.WrapError(core.ErrRuntime, err)
		}
	}

	s.logger.Debug("strategy run finished",
		zap.String("program", p.Name),
		zap.Int("bars", table.Len()),
		zap.Duration("elapsed", elapsed),
	)
	return collect(compiled, table.Len())
}

func modules() *tengo.ModuleMap {
	mods := tengo.NewModuleMap()
	mods.AddBuiltinModule("series", seriesModule())
	mods.AddBuiltinModule("math", stdlib.BuiltinModules["math"])
	mods.AddSourceModule("enum", []byte(stdlib.SourceModules["enum"]))
	return mods
}

// tableObject exposes the table as an immutable map of columns.
func tableObject(t *market.Table) tengo.Object {
	n := t.Len()
	stamps := make([]tengo.Object, n)
	for i := 0; i < n; i++ {
		stamps[i] = &tengo.Int{Value: t.Bar(i).Time.Unix()}
	}

	columns := t.Columns()
	names := make([]tengo.Object, len(columns))
	for i, c := range columns {
		names[i] = &tengo.String{Value: c}
	}

	attrs := map[string]tengo.Object{
		"len":       &tengo.Int{Value: int64(n)},
		"symbol":    &tengo.String{Value: t.Symbol()},
		"timestamp": &tengo.ImmutableArray{Value: stamps},
		"columns":   &tengo.ImmutableArray{Value: names},
	}
	for _, field := range []string{"open", "high", "low", "close", "volume"} {
		values, _ := t.Field(field)
		attrs[field] = immutableFloats(values)
	}
	for _, c := range columns {
		if _, taken := attrs[c]; taken {
			continue
		}
		attrs[c] = immutableFloats(t.Column(c))
	}
	return &tengo.ImmutableMap{Value: attrs}
}

func collect(c *tengo.Compiled, bars int) (*Output, error) {
	result := c.Get("__signals").Object()
	if e, ok := result.(*tengo.Error); ok {
		return nil, core.WrapError(core.ErrRuntime, errors.New(errorText(e)))
	}
	if !c.Get("__invoked").Bool() {
		return nil, core.Errorf(core.ErrContractViolation, "Strategy(data) must return a map with a generate_signals function")
	}

	signals, err := ParseSignals(result, bars)
	if err != nil {
		return nil, err
	}

	var risk RiskParams
	if risk.StopLossPct, err = riskValue("stop_loss", c.Get("__stop_loss").Object()); err != nil {
		return nil, err
	}
	if risk.TakeProfitPct, err = riskValue("take_profit", c.Get("__take_profit").Object()); err != nil {
		return nil, err
	}
	return &Output{Signals: signals, Risk: risk}, nil
}

// ParseSignals checks that o is an array of exactly bars elements, each one
// of 1, -1 or 0, and converts it.
func ParseSignals(o tengo.Object, bars int) (SignalSeries, error) {
	var items []tengo.Object
	switch v := o.(type) {
	case *tengo.Array:
		items = v.Value
	case *tengo.ImmutableArray:
		items = v.Value
	default:
		return nil, core.Errorf(core.ErrContractViolation, "generate_signals must return an array, got %s", o.TypeName())
	}
	if len(items) != bars {
		return nil, core.Errorf(core.ErrContractViolation, "generate_signals returned %d signals for %d bars", len(items), bars)
	}

	out := make(SignalSeries, bars)
	for i, item := range items {
		var v float64
		switch x := item.(type) {
		case *tengo.Int:
			v = float64(x.Value)
		case *tengo.Float:
			v = x.Value
		default:
			return nil, core.Errorf(core.ErrContractViolation, "signal %d is %s, expected 1, -1 or 0", i, item.TypeName())
		}
		switch v {
		case 1:
			out[i] = Buy
		case -1:
			out[i] = Sell
		case 0:
			out[i] = Hold
		default:
			return nil, core.Errorf(core.ErrContractViolation, "signal %d is %v, expected 1, -1 or 0", i, v)
		}
	}
	return out, nil
}

func riskValue(name string, o tengo.Object) (float64, error) {
	if _, undefined := o.(*tengo.Undefined); o == nil || undefined {
		return 0, nil
	}
	v, ok := tengo.ToFloat64(o)
	if !ok {
		return 0, core.Errorf(core.ErrContractViolation, "%s must be a number, got %s", name, o.TypeName())
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0, core.Errorf(core.ErrContractViolation, "%s must be a non-negative fraction, got %v", name, v)
	}
	return v, nil
}

func errorText(e *tengo.Error) string {
	if s, ok := tengo.ToString(e.Value); ok {
		return s
	}
	return e.String()
}
