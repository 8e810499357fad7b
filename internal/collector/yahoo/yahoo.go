package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/newthinker/prism/internal/collector"
	"github.com/newthinker/prism/internal/core"
)

const (
	defaultBaseURL = "https://query1.finance.yahoo.com/v8/finance/chart"
	defaultRPM     = 60
)

// validSymbol matches stock symbols like AAPL, MSFT, 600519.SH, 0700.HK, ^GSPC
var validSymbol = regexp.MustCompile(`^\^?[A-Za-z0-9-]{1,10}(\.[A-Za-z]{1,4})?$`)

// validateSymbol checks if a symbol has valid format
func validateSymbol(symbol string) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 20 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(symbol) {
		return fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return nil
}

// Yahoo implements the Yahoo Finance chart collector
type Yahoo struct {
	client  *http.Client
	baseURL string
	limiter *rate.Limiter
}

// New creates a new Yahoo collector. Requests are throttled to
// cfg.RequestsPerMinute (60 when unset).
func New(cfg collector.Config) *Yahoo {
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
	return &Yahoo{
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

func (y *Yahoo) Name() string {
	return "yahoo"
}

// toYahooSymbol converts internal symbol format to Yahoo format
func (y *Yahoo) toYahooSymbol(symbol string) string {
	// Shanghai stocks: 600519.SH -> 600519.SS
	if strings.HasSuffix(symbol, ".SH") {
		return strings.TrimSuffix(symbol, ".SH") + ".SS"
	}
	return symbol
}

// FetchHistory fetches historical OHLCV data
func (y *Yahoo) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.OHLCV, error) {
	if err := validateSymbol(symbol); err != nil {
		return nil, core.WrapError(core.ErrSymbolNotFound, err)
	}
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, core.WrapError(core.ErrCollectorTimeout, err)
	}

	url := fmt.Sprintf("%s/%s?interval=%s&period1=%d&period2=%d",
		y.baseURL, y.toYahooSymbol(symbol), y.toYahooInterval(interval), start.Unix(), end.Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; prism)")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching history: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, core.Errorf(core.ErrSymbolNotFound, "yahoo has no chart for %s", symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, core.Errorf(core.ErrCollectorFailed, "unexpected status: %d", resp.StatusCode)
	}

	var result chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}

	if result.Chart.Error != nil {
		return nil, core.Errorf(core.ErrCollectorFailed, "yahoo error: %s", result.Chart.Error.Description)
	}

	if len(result.Chart.Result) == 0 {
		return nil, core.Errorf(core.ErrSymbolNotFound, "no data for symbol: %s", symbol)
	}

	r := result.Chart.Result[0]
	if len(r.Indicators.Quote) == 0 {
		return nil, nil
	}
	quotes := r.Indicators.Quote[0]

	data := make([]core.OHLCV, 0, len(r.Timestamp))
	for i, ts := range r.Timestamp {
		open, high, low, closePrice, ok := quotes.at(i)
		if !ok {
			continue // Skip missing data
		}
		var volume int64
		if i < len(quotes.Volume) && quotes.Volume[i] != nil {
			volume = *quotes.Volume[i]
		}
		data = append(data, core.OHLCV{
			Symbol:   symbol,
			Interval: interval,
			Open:     open,
			High:     high,
			Low:      low,
			Close:    closePrice,
			Volume:   volume,
			Time:     time.Unix(ts, 0).UTC(),
		})
	}

	return data, nil
}

func (y *Yahoo) toYahooInterval(interval string) string {
	switch interval {
	case "1m", "5m", "15m", "1h", "1d", "1wk", "1mo":
		return interval
	default:
		return "1d"
	}
}

// Yahoo API response types
type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Timestamp  []int64    `json:"timestamp"`
	Indicators indicators `json:"indicators"`
}

type indicators struct {
	Quote []quoteIndicator `json:"quote"`
}

type quoteIndicator struct {
	Open   []*float64 `json:"open"`
	High   []*float64 `json:"high"`
	Low    []*float64 `json:"low"`
	Close  []*float64 `json:"close"`
	Volume []*int64   `json:"volume"`
}

// at returns the prices at i, false if any is missing.
func (q quoteIndicator) at(i int) (open, high, low, closePrice float64, ok bool) {
	cols := [][]*float64{q.Open, q.High, q.Low, q.Close}
	vals := make([]float64, len(cols))
	for j, col := range cols {
		if i >= len(col) || col[i] == nil {
			return 0, 0, 0, 0, false
		}
		vals[j] = *col[i]
	}
	return vals[0], vals[1], vals[2], vals[3], true
}
