package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/newthinker/prism/internal/collector"
	"github.com/newthinker/prism/internal/core"
)

const (
	defaultBaseURL = "https://api.binance.com"
	defaultRPM     = 600
	pageLimit      = 1000
)

// quoteCurrencies are checked in order when recognising a trading pair.
var quoteCurrencies = []string{"USDT", "BUSD", "USDC", "FDUSD", "BTC", "ETH", "BNB"}

// Binance serves spot klines for crypto trading pairs.
type Binance struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// New creates a Binance collector.
func New(cfg collector.Config) *Binance {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = defaultRPM
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Binance{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

func (b *Binance) Name() string {
	return "binance"
}

// pair normalises BTC-USDT, btc/usdt and BTCUSDT to BTCUSDT. It reports
// false for anything that does not end in a known quote currency.
func pair(symbol string) (string, bool) {
	s := strings.ToUpper(symbol)
	s = strings.NewReplacer("-", "", "/", "", "_", "").Replace(s)
	if s == "" || len(s) > 20 {
		return "", false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return "", false
		}
	}
	for _, q := range quoteCurrencies {
		if strings.HasSuffix(s, q) && len(s) > len(q) {
			return s, true
		}
	}
	return "", false
}

func toInterval(interval string) string {
	switch interval {
	case "1m", "5m", "15m", "30m", "1h", "2h", "4h", "1d":
		return interval
	case "1wk":
		return "1w"
	case "1mo":
		return "1M"
	default:
		return "1d"
	}
}

// FetchHistory pages through klines until end is covered.
func (b *Binance) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	p, ok := pair(symbol)
	if !ok {
		return nil, core.Errorf(core.ErrSymbolNotFound, "binance serves crypto pairs only, got %s", symbol)
	}

	var data []core.OHLCV
	from := start.UnixMilli()
	for from <= end.UnixMilli() {
		page, err := b.fetchPage(ctx, p, toInterval(interval), from, end.UnixMilli())
		if err != nil {
			return nil, err
		}
		for i := range page {
			page[i].Symbol = symbol
			page[i].Interval = interval
		}
		data = append(data, page...)
		if len(page) < pageLimit {
			break
		}
		from = page[len(page)-1].Time.UnixMilli() + 1
	}
	return data, nil
}

func (b *Binance) fetchPage(ctx context.Context, p, interval string, from, to int64) ([]core.OHLCV, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return nil, core.WrapError(core.ErrCollectorTimeout, err)
	}

	q := url.Values{}
	q.Set("symbol", p)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(from, 10))
	q.Set("endTime", strconv.FormatInt(to, 10))
	q.Set("limit", strconv.Itoa(pageLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching klines: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusBadRequest {
		// Binance answers unknown pairs with 400 and code -1121.
		var apiErr struct {
			Code int    `json:"code"`
			Msg  string `json:"msg"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Code == -1121 {
			return nil, core.Errorf(core.ErrSymbolNotFound, "binance: %s", apiErr.Msg)
		}
		return nil, core.Errorf(core.ErrCollectorFailed, "binance: %s", apiErr.Msg)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.Errorf(core.ErrCollectorFailed, "unexpected status: %d", resp.StatusCode)
	}

	var klines [][]any
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}

	bars := make([]core.OHLCV, 0, len(klines))
	for _, k := range klines {
		if bar, ok := parseKline(k); ok {
			bars = append(bars, bar)
		}
	}
	return bars, nil
}

// parseKline reads [openTime, open, high, low, close, volume, ...].
func parseKline(k []any) (core.OHLCV, bool) {
	if len(k) < 6 {
		return core.OHLCV{}, false
	}
	openTime, ok := k[0].(float64)
	if !ok {
		return core.OHLCV{}, false
	}
	var nums [5]float64
	for i := range nums {
		s, ok := k[i+1].(string)
		if !ok {
			return core.OHLCV{}, false
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return core.OHLCV{}, false
		}
		nums[i] = v
	}
	return core.OHLCV{
		Time:   time.UnixMilli(int64(openTime)).UTC(),
		Open:   nums[0],
		High:   nums[1],
		Low:    nums[2],
		Close:  nums[3],
		Volume: int64(nums[4]),
	}, true
}
