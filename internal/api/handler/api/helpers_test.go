package api

import (
	"context"
	"encoding/json"
	"math"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/newthinker/prism/internal/api/response"
	"github.com/newthinker/prism/internal/backtest"
	"github.com/newthinker/prism/internal/core"
	"github.com/newthinker/prism/internal/library"
	"github.com/newthinker/prism/internal/storage/archive"
	"github.com/newthinker/prism/internal/strategy"
)

// waveProvider serves a daily sine wave between start and end.
type waveProvider struct {
	err error
}

func (p *waveProvider) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	if p.err != nil {
		return nil, p.err
	}
	var bars []core.OHLCV
	for i, day := 0, start; !day.After(end); i, day = i+1, day.AddDate(0, 0, 1) {
		c := 100 + 10*math.Sin(2*math.Pi*float64(i)/40)
		bars = append(bars, core.OHLCV{Symbol: symbol, Time: day, Open: c, High: c + 1, Low: c - 1, Close: c, Volume: 1000})
	}
	return bars, nil
}

func newTestLibrary(t *testing.T) *library.Library {
	t.Helper()
	catalog, err := library.LoadCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	fs, err := archive.NewLocalFS(t.TempDir())
	if err != nil {
		t.Fatalf("local fs: %v", err)
	}
	return library.New(catalog, library.NewStore(fs, nil))
}

func newTestBacktester(provider backtest.OHLCVProvider) *backtest.Backtester {
	bt := backtest.New(strategy.NewSandbox(strategy.DefaultSandboxConfig(), nil), backtest.DefaultConfig(), nil)
	bt.SetProvider(provider)
	return bt
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp response.SuccessResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	data, ok := resp.Data.(map[string]any)
	if !ok {
		t.Fatalf("expected object data, got %T", resp.Data)
	}
	return data
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorDetail {
	t.Helper()
	var resp response.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return resp.Error
}
