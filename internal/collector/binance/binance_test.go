package binance

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/prism/internal/collector"
	"github.com/newthinker/prism/internal/core"
)

func TestBinance_ImplementsCollector(t *testing.T) {
	var _ collector.Collector = (*Binance)(nil)
}

func TestBinance_Name(t *testing.T) {
	b := New(collector.Config{})
	if b.Name() != "binance" {
		t.Errorf("expected 'binance', got '%s'", b.Name())
	}
}

func TestPair(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"BTCUSDT", "BTCUSDT", true},
		{"btc-usdt", "BTCUSDT", true},
		{"ETH/BTC", "ETHBTC", true},
		{"sol_usdc", "SOLUSDC", true},
		{"USDT", "", false},
		{"AAPL", "", false},
		{"600519.SH", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, ok := pair(tc.input)
		if got != tc.want || ok != tc.ok {
			t.Errorf("pair(%q) = (%s, %v), want (%s, %v)", tc.input, got, ok, tc.want, tc.ok)
		}
	}
}

func TestToInterval(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"1m", "1m"},
		{"4h", "4h"},
		{"1d", "1d"},
		{"1wk", "1w"},
		{"1mo", "1M"},
		{"unknown", "1d"},
	}
	for _, tc := range tests {
		if got := toInterval(tc.input); got != tc.expected {
			t.Errorf("toInterval(%s) = %s, want %s", tc.input, got, tc.expected)
		}
	}
}

func kline(openTime int64, close float64) []any {
	c := strconv.FormatFloat(close, 'f', 2, 64)
	return []any{openTime, c, c, c, c, "12.5", openTime + 59_999, "0", 10, "0", "0", "0"}
}

func TestBinance_FetchHistory(t *testing.T) {
	var gotSymbol, gotInterval string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSymbol = r.URL.Query().Get("symbol")
		gotInterval = r.URL.Query().Get("interval")
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		day := int64(24 * time.Hour / time.Millisecond)
		_ = json.NewEncoder(w).Encode([][]any{
			kline(start, 42000),
			kline(start+day, 43000),
			{"malformed"},
		})
	}))
	defer server.Close()

	b := New(collector.Config{BaseURL: server.URL, RequestsPerMinute: 6000})
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	data, err := b.FetchHistory(context.Background(), "btc-usdt", start, start.AddDate(0, 0, 7), "1d")
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", gotSymbol)
	assert.Equal(t, "1d", gotInterval)
	require.Len(t, data, 2)
	assert.Equal(t, "btc-usdt", data[0].Symbol)
	assert.Equal(t, "1d", data[0].Interval)
	assert.Equal(t, start, data[0].Time)
	assert.Equal(t, 43000.0, data[1].Close)
	assert.Equal(t, int64(12), data[1].Volume)
}

func TestBinance_FetchHistory_Pages(t *testing.T) {
	var calls int
	minute := int64(time.Minute / time.Millisecond)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		start, _ := strconv.ParseInt(r.URL.Query().Get("startTime"), 10, 64)
		n := pageLimit
		if calls > 1 {
			n = 10
		}
		rows := make([][]any, n)
		for i := range rows {
			rows[i] = kline(start+int64(i)*minute, 100)
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer server.Close()

	b := New(collector.Config{BaseURL: server.URL, RequestsPerMinute: 6000})
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	data, err := b.FetchHistory(context.Background(), "ETHUSDT", start, start.Add(24*time.Hour), "1m")
	require.NoError(t, err)

	assert.Equal(t, 2, calls)
	require.Len(t, data, pageLimit+10)
	for i := 1; i < len(data); i++ {
		if !data[i].Time.After(data[i-1].Time) {
			t.Fatalf("bars out of order at %d", i)
		}
	}
}

func TestBinance_Errors(t *testing.T) {
	tests := []struct {
		name   string
		symbol string
		status int
		body   string
		want   *core.Error
	}{
		{"not a pair", "AAPL", http.StatusOK, `[]`, core.ErrSymbolNotFound},
		{"unknown pair", "FOOUSDT", http.StatusBadRequest, `{"code":-1121,"msg":"Invalid symbol."}`, core.ErrSymbolNotFound},
		{"bad request", "BTCUSDT", http.StatusBadRequest, `{"code":-1100,"msg":"Illegal characters"}`, core.ErrCollectorFailed},
		{"server error", "BTCUSDT", http.StatusInternalServerError, ``, core.ErrCollectorFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			b := New(collector.Config{BaseURL: server.URL, RequestsPerMinute: 6000})
			_, err := b.FetchHistory(context.Background(), tt.symbol, time.Now().AddDate(0, -1, 0), time.Now(), "1d")
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %s, got %v", tt.want.Code, err)
			}
		})
	}
}
