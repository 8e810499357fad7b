package eastmoney

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
	defaultBaseURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	defaultRPM     = 120
)

// Eastmoney serves daily and intraday klines for Shanghai and Shenzhen A-shares.
type Eastmoney struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// New creates an Eastmoney collector.
func New(cfg collector.Config) *Eastmoney {
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
	return &Eastmoney{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

func (e *Eastmoney) Name() string {
	return "eastmoney"
}

// secID converts 600519.SH to 1.600519. Shanghai is market 1, Shenzhen 0.
func secID(symbol string) (string, bool) {
	code, exchange, ok := strings.Cut(strings.ToUpper(symbol), ".")
	if !ok || len(code) != 6 {
		return "", false
	}
	if _, err := strconv.Atoi(code); err != nil {
		return "", false
	}
	switch exchange {
	case "SH", "SS":
		return "1." + code, true
	case "SZ":
		return "0." + code, true
	}
	return "", false
}

func klineType(interval string) string {
	switch interval {
	case "1m":
		return "1"
	case "5m":
		return "5"
	case "15m":
		return "15"
	case "30m":
		return "30"
	case "1h":
		return "60"
	case "1wk":
		return "102"
	case "1mo":
		return "103"
	default:
		return "101"
	}
}

// FetchHistory returns forward-adjusted bars. Symbols outside the two
// mainland exchanges are reported as not found so the registry moves on.
func (e *Eastmoney) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	id, ok := secID(symbol)
	if !ok {
		return nil, core.Errorf(core.ErrSymbolNotFound, "eastmoney serves .SH/.SZ symbols only, got %s", symbol)
	}
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, core.WrapError(core.ErrCollectorTimeout, err)
	}

	q := url.Values{}
	q.Set("secid", id)
	q.Set("klt", klineType(interval))
	q.Set("fqt", "1")
	q.Set("beg", start.Format("20060102"))
	q.Set("end", end.Format("20060102"))
	q.Set("fields1", "f1,f2,f3")
	q.Set("fields2", "f51,f52,f53,f54,f55,f56")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, core.Errorf(core.ErrCollectorFailed, "unexpected status: %d", resp.StatusCode)
	}

	var result historyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}
	if result.Data == nil {
		return nil, core.Errorf(core.ErrSymbolNotFound, "no data for symbol: %s", symbol)
	}

	data := make([]core.OHLCV, 0, len(result.Data.Klines))
	for _, line := range result.Data.Klines {
		bar, err := parseKline(line)
		if err != nil {
			continue
		}
		bar.Symbol = symbol
		bar.Interval = interval
		data = append(data, bar)
	}
	return data, nil
}

// parseKline reads "date,open,close,high,low,volume". Intraday rows carry
// a "2006-01-02 15:04" timestamp in China Standard Time.
func parseKline(line string) (core.OHLCV, error) {
	f := strings.Split(line, ",")
	if len(f) < 6 {
		return core.OHLCV{}, fmt.Errorf("short kline: %q", line)
	}

	layout := time.DateOnly
	if len(f[0]) > len(time.DateOnly) {
		layout = "2006-01-02 15:04"
	}
	t, err := time.ParseInLocation(layout, f[0], shanghai)
	if err != nil {
		return core.OHLCV{}, err
	}

	var nums [4]float64
	for i := range nums {
		if nums[i], err = strconv.ParseFloat(f[i+1], 64); err != nil {
			return core.OHLCV{}, err
		}
	}
	volume, err := strconv.ParseInt(f[5], 10, 64)
	if err != nil {
		return core.OHLCV{}, err
	}

	return core.OHLCV{
		Time:   t.UTC(),
		Open:   nums[0],
		Close:  nums[1],
		High:   nums[2],
		Low:    nums[3],
		Volume: volume,
	}, nil
}

var shanghai = time.FixedZone("CST", 8*60*60)

type historyResponse struct {
	Data *historyData `json:"data"`
}

type historyData struct {
	Code   string   `json:"code"`
	Name   string   `json:"name"`
	Klines []string `json:"klines"`
}
