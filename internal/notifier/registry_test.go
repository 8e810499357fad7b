package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/prism/internal/backtest"
	"github.com/newthinker/prism/internal/core"
)

type recordingNotifier struct {
	name  string
	fail  bool
	delay time.Duration

	mu       sync.Mutex
	received []Event
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Notify(ctx context.Context, e Event) error {
	if n.delay > 0 {
		select {
		case <-time.After(n.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	n.received = append(n.received, e)
	n.mu.Unlock()
	if n.fail {
		return errors.New("delivery refused")
	}
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.received)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(&recordingNotifier{name: "webhook"}))
	assert.Error(t, r.Register(&recordingNotifier{name: "webhook"}), "duplicate name")
	assert.Error(t, r.Register(&recordingNotifier{}), "empty name")
	assert.Equal(t, 1, r.Len())

	n, ok := r.Get("webhook")
	require.True(t, ok)
	assert.Equal(t, "webhook", n.Name())

	_, ok = r.Get("email")
	assert.False(t, ok)
}

func TestRegistry_GetAllSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&recordingNotifier{name: "webhook"})
	r.Register(&recordingNotifier{name: "telegram"})

	var names []string
	for _, n := range r.GetAll() {
		names = append(names, n.Name())
	}
	assert.Equal(t, []string{"telegram", "webhook"}, names)
}

func TestRegistry_NotifyAll(t *testing.T) {
	r := NewRegistry()
	ok := &recordingNotifier{name: "ok"}
	bad := &recordingNotifier{name: "bad", fail: true}
	r.Register(ok)
	r.Register(bad)

	errs := r.NotifyAll(context.Background(), Event{JobID: "j1", Status: "complete"})

	assert.Equal(t, 1, ok.count())
	assert.Equal(t, 1, bad.count())
	require.Len(t, errs, 1)
	assert.EqualError(t, errs["bad"], "delivery refused")
}

func TestRegistry_NotifyAllConcurrent(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"a", "b", "c"} {
		r.Register(&recordingNotifier{name: name, delay: 100 * time.Millisecond})
	}

	start := time.Now()
	errs := r.NotifyAll(context.Background(), Event{JobID: "j1"})
	assert.Empty(t, errs)
	assert.Less(t, time.Since(start), 250*time.Millisecond, "notifiers should run in parallel")
}

func TestRegistry_NotifyAllEmpty(t *testing.T) {
	assert.Empty(t, NewRegistry().NotifyAll(context.Background(), Event{}))
}

func TestBacktestEvent(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	e := BacktestEvent("j1", "AAPL", &backtest.Result{
		Program: "macd_trend",
		Metrics: backtest.Metrics{TotalReturnPct: 12.5, SharpeRatio: 1.1, MaxDrawdownPct: -4, RoundTrips: 3},
	}, nil, at)
	if e.Status != "complete" || e.Failed() {
		t.Errorf("expected complete event, got %+v", e)
	}
	if e.Program != "macd_trend" || e.TotalReturnPct != 12.5 || e.RoundTrips != 3 {
		t.Errorf("metrics not copied: %+v", e)
	}

	e = BacktestEvent("j2", "XXXX", nil, core.Errorf(core.ErrSymbolNotFound, "no such ticker"), at)
	if e.Status != "failed" || !e.Failed() {
		t.Errorf("expected failed event, got %+v", e)
	}
	if e.ErrorCode != "SYMBOL_NOT_FOUND" || e.Error != "no such ticker" {
		t.Errorf("unexpected error fields: %+v", e)
	}
}
