package app

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/prism/internal/config"
	"github.com/newthinker/prism/internal/core"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.Path = filepath.Join(t.TempDir(), "strategies")
	cfg.Collectors.Yahoo.Enabled = false
	cfg.Collectors.Parquet.Enabled = true
	cfg.Collectors.Parquet.Path = t.TempDir()
	return cfg
}

func TestNew(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Library())
	assert.NotNil(t, a.Backtester())
	assert.NotNil(t, a.Jobs())
	assert.NotNil(t, a.Metrics())
	assert.NotNil(t, a.Parquet())
	assert.False(t, a.Generator().Available())
	assert.Equal(t, 4, a.Parallelism())

	names := []string{}
	for _, c := range a.Collectors().GetAll() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"parquet"}, names)

	entries, err := a.Library().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, entries, 6)
}

func TestNew_CollectorOrder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Collectors.Yahoo.Enabled = true
	cfg.Collectors.Binance.Enabled = true
	cfg.Collectors.Eastmoney.Enabled = true

	a, err := New(cfg, nil)
	require.NoError(t, err)

	var names []string
	for _, c := range a.Collectors().GetAll() {
		names = append(names, c.Name())
	}
	assert.Equal(t, []string{"parquet", "eastmoney", "binance", "yahoo"}, names)
}

func TestNew_BacktestDefaults(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backtest.InitialCapital = 5000
	cfg.Backtest.Commission = 0

	a, err := New(cfg, nil)
	require.NoError(t, err)

	got := a.Backtester().Config()
	assert.Equal(t, 5000.0, got.InitialCapital)
	assert.Equal(t, 0.0, got.CommissionRate)
	assert.Equal(t, 2, got.MinBars)
}

func TestNew_SQLiteStorage(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Type = "sqlite"
	cfg.Storage.DSN = filepath.Join(t.TempDir(), "prism.db")

	a, err := New(cfg, nil)
	require.NoError(t, err)

	key, err := a.Library().Save(context.Background(), "Flat", "", `series := import("series")
Strategy := func(data) {
	return {generate_signals: func() { return series.zeros(data.len) }}
}`)
	require.NoError(t, err)
	assert.Equal(t, "flat", key)
	assert.NoError(t, a.Close())
}

func TestNew_WithLLMProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Provider = "ollama"

	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.True(t, a.Generator().Available())
}

func TestNew_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Enabled = false

	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Nil(t, a.Metrics())
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backtest.InitialCapital = -1

	_, err := New(cfg, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConfigInvalid))

	cfg = testConfig(t)
	cfg.LLM.Provider = "claude"
	_, err = New(cfg, nil)
	assert.True(t, errors.Is(err, core.ErrConfigMissing))
}

func TestNew_Notifiers(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, a.Notifiers().Len())

	cfg = testConfig(t)
	cfg.Notifications.Webhook.URL = "http://hooks.local/prism"
	cfg.Notifications.Telegram.BotToken = "123:xyz"
	cfg.Notifications.Telegram.ChatID = "42"
	a, err = New(cfg, nil)
	require.NoError(t, err)

	var names []string
	for _, n := range a.Notifiers().GetAll() {
		names = append(names, n.Name())
	}
	assert.Equal(t, []string{"telegram", "webhook"}, names)
}
