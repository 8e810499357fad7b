// internal/api/handler/api/backtest.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/prism/internal/api/job"
	"github.com/newthinker/prism/internal/api/response"
	"github.com/newthinker/prism/internal/backtest"
	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/library"
	"github.com/newthinker/prism/internal/notifier"
	"github.com/newthinker/prism/internal/strategy"
)

const backtestTimeout = 5 * time.Minute

// BacktestRunner runs a backtest over fetched market data.
type BacktestRunner interface {
	RunSymbol(ctx context.Context, req backtest.SymbolRequest) (*backtest.Result, error)
}

// StrategySource resolves library keys to programs.
type StrategySource interface {
	Get(ctx context.Context, key string) (library.Entry, error)
}

// JobGauge publishes job counts by status.
type JobGauge interface {
	SetJobs(status string, count int)
}

// JobNotifier is told about every finished job.
type JobNotifier interface {
	NotifyAll(ctx context.Context, e notifier.Event) map[string]error
}

// BacktestRequest is the request body for starting a backtest.
type BacktestRequest struct {
	Symbol         string   `json:"symbol"`
	Strategy       string   `json:"strategy,omitempty"` // library key
	Code           string   `json:"code,omitempty"`     // inline program, wins over Strategy
	Name           string   `json:"name,omitempty"`
	Start          string   `json:"start,omitempty"`
	End            string   `json:"end,omitempty"`
	Interval       string   `json:"interval,omitempty"`
	InitialCapital float64  `json:"initial_capital,omitempty"`
	Commission     *float64 `json:"commission,omitempty"`
}

// BacktestHandler handles backtest API requests.
type BacktestHandler struct {
	jobs       *job.Store
	runner     BacktestRunner
	strategies StrategySource
	gauge      JobGauge
	notifier   JobNotifier
	timeout    time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewBacktestHandler creates a new backtest handler. gauge may be nil.
func NewBacktestHandler(
	jobs *job.Store,
	runner BacktestRunner,
	strategies StrategySource,
	gauge JobGauge,
	logger *zap.Logger,
) *BacktestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BacktestHandler{
		jobs:       jobs,
		runner:     runner,
		strategies: strategies,
		gauge:      gauge,
		timeout:    backtestTimeout,
		now:        time.Now,
		logger:     logger,
	}
}

// SetNotifier sets where finished jobs are reported.
func (h *BacktestHandler) SetNotifier(n JobNotifier) {
	h.notifier = n
}

// Create validates the request and starts a backtest job.
func (h *BacktestHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Fail(w, core.WrapError(core.ErrBadRequest, err))
		return
	}

	symReq, err := h.symbolRequest(r.Context(), req)
	if err != nil {
		response.Fail(w, err)
		return
	}

	// Reject bad programs before a job exists for them.
	if err := strategy.Validate(symReq.Program); err != nil {
		response.Fail(w, err)
		return
	}

	j := h.jobs.Create("backtest")
	h.publishCounts()

	go h.runBacktest(j.ID, symReq)

	response.JSON(w, http.StatusAccepted, map[string]any{
		"job_id": j.ID,
		"status": j.Status,
	})
}

func (h *BacktestHandler) symbolRequest(ctx context.Context, req BacktestRequest) (backtest.SymbolRequest, error) {
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	if symbol == "" {
		return backtest.SymbolRequest{}, core.Errorf(core.ErrValidation, "symbol is required")
	}

	program, err := h.program(ctx, req)
	if err != nil {
		return backtest.SymbolRequest{}, err
	}

	end := h.now().UTC().Truncate(24 * time.Hour)
	if req.End != "" {
		if end, err = time.Parse(time.DateOnly, req.End); err != nil {
			return backtest.SymbolRequest{}, core.Errorf(core.ErrValidation, "end: %v", err)
		}
	}
	start := end.AddDate(-1, 0, 0)
	if req.Start != "" {
		if start, err = time.Parse(time.DateOnly, req.Start); err != nil {
			return backtest.SymbolRequest{}, core.Errorf(core.ErrValidation, "start: %v", err)
		}
	}
	if req.InitialCapital < 0 {
		return backtest.SymbolRequest{}, core.Errorf(core.ErrValidation, "initial_capital must be positive")
	}
	if req.Commission != nil && (*req.Commission < 0 || *req.Commission >= 1) {
		return backtest.SymbolRequest{}, core.Errorf(core.ErrValidation, "commission must be in [0, 1)")
	}

	return backtest.SymbolRequest{
		Program:        program,
		Symbol:         symbol,
		Start:          start,
		End:            end,
		Interval:       req.Interval,
		InitialCapital: req.InitialCapital,
		CommissionRate: req.Commission,
	}, nil
}

func (h *BacktestHandler) program(ctx context.Context, req BacktestRequest) (strategy.Program, error) {
	if strings.TrimSpace(req.Code) != "" {
		name := req.Name
		if name == "" {
			name = "inline"
		}
		return strategy.Program{Name: name, Source: req.Code}, nil
	}
	if req.Strategy == "" {
		return strategy.Program{}, core.Errorf(core.ErrValidation, "either strategy or code is required")
	}
	entry, err := h.strategies.Get(ctx, req.Strategy)
	if err != nil {
		return strategy.Program{}, err
	}
	return entry.Program(), nil
}

// runBacktest executes the backtest and updates job status.
func (h *BacktestHandler) runBacktest(jobID string, req backtest.SymbolRequest) {
	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusRunning
	})
	h.publishCounts()
	defer h.publishCounts()

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()
	result, err := h.runner.RunSymbol(ctx, req)

	defer h.notify(jobID, req.Symbol, result, err)

	if err != nil {
		h.logger.Info("backtest job failed",
			zap.String("job_id", jobID),
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)
		h.jobs.Update(jobID, func(j *job.Job) {
			j.Status = job.StatusFailed
			j.Error = core.AsError(err)
		})
		return
	}

	h.jobs.Update(jobID, func(j *job.Job) {
		j.Status = job.StatusComplete
		j.Progress = 100
		j.Result = result
	})
}

const notifyTimeout = 30 * time.Second

func (h *BacktestHandler) notify(jobID, symbol string, result *backtest.Result, err error) {
	if h.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()

	event := notifier.BacktestEvent(jobID, symbol, result, err, h.now())
	for name, nerr := range h.notifier.NotifyAll(ctx, event) {
		h.logger.Warn("job notification failed",
			zap.String("notifier", name),
			zap.String("job_id", jobID),
			zap.Error(nerr),
		)
	}
}

func (h *BacktestHandler) publishCounts() {
	if h.gauge == nil {
		return
	}
	counts := h.jobs.Counts()
	for _, s := range []job.Status{job.StatusPending, job.StatusRunning, job.StatusComplete, job.StatusFailed} {
		h.gauge.SetJobs(string(s), counts[s])
	}
}

// GetStatus returns the status of the backtest job named by the {id} path value.
func (h *BacktestHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	j, err := h.jobs.Get(r.PathValue("id"))
	if err != nil {
		response.Fail(w, err)
		return
	}

	resp := map[string]any{
		"job_id":     j.ID,
		"status":     j.Status,
		"progress":   j.Progress,
		"created_at": j.CreatedAt,
		"updated_at": j.UpdatedAt,
	}

	if j.Status == job.StatusComplete {
		resp["result"] = j.Result
	}
	if j.Status == job.StatusFailed && j.Error != nil {
		resp["error"] = response.Detail(j.Error)
	}

	response.JSON(w, http.StatusOK, resp)
}
