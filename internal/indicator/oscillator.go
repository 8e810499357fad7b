package indicator

import "math"

// RSI computes the relative strength index with simple rolling means of gains
// and losses. The first period values are NaN. A window with no losses reads 100.
func RSI(prices []float64, period int) []float64 {
	n := len(prices)
	if period <= 0 || n <= period-1 {
		return Align(nil, n)
	}

	gains := make([]float64, n)
	losses := make([]float64, n)
	for i := 1; i < n; i++ {
		delta := prices[i] - prices[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	avgGain := Align(SMA(gains, period), n)
	avgLoss := Align(SMA(losses, period), n)

	out := make([]float64, n)
	for i := range out {
		switch {
		case math.IsNaN(avgGain[i]):
			out[i] = math.NaN()
		case avgLoss[i] == 0 && avgGain[i] == 0:
			out[i] = math.NaN()
		case avgLoss[i] == 0:
			out[i] = 100
		default:
			rs := avgGain[i] / avgLoss[i]
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}

// MACDResult holds the three MACD series, each aligned to the input.
type MACDResult struct {
	MACD      []float64
	Signal    []float64
	Histogram []float64
}

// MACD computes fast/slow EWM difference, its signal line and the histogram.
func MACD(prices []float64, fast, slow, signal int) MACDResult {
	fastEMA := EWM(prices, fast)
	slowEMA := EWM(prices, slow)

	line := make([]float64, len(prices))
	for i := range line {
		line[i] = fastEMA[i] - slowEMA[i]
	}
	sig := EWM(line, signal)

	hist := make([]float64, len(prices))
	for i := range hist {
		hist[i] = line[i] - sig[i]
	}
	return MACDResult{MACD: line, Signal: sig, Histogram: hist}
}
