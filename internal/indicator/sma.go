package indicator

import "math"

// SMA calculates Simple Moving Average
// Returns slice of length: len(prices) - period + 1
func SMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)

	// Calculate first SMA
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	result = append(result, sum/float64(period))

	// Rolling calculation
	for i := period; i < len(prices); i++ {
		sum = sum - prices[i-period] + prices[i]
		result = append(result, sum/float64(period))
	}

	return result
}

// EMA calculates Exponential Moving Average seeded with the SMA of the first period.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return []float64{}
	}

	result := make([]float64, 0, len(prices)-period+1)
	multiplier := 2.0 / float64(period+1)

	// Start with SMA as first EMA value
	var sum float64
	for i := 0; i < period; i++ {
		sum += prices[i]
	}
	ema := sum / float64(period)
	result = append(result, ema)

	// Calculate EMA for remaining prices
	for i := period; i < len(prices); i++ {
		ema = (prices[i]-ema)*multiplier + ema
		result = append(result, ema)
	}

	return result
}

// EWM is an exponentially weighted mean over the whole series, seeded with
// the first price (span smoothing, no bias adjustment). Output has the input length.
func EWM(prices []float64, span int) []float64 {
	result := make([]float64, len(prices))
	if len(prices) == 0 || span <= 0 {
		return Align(nil, len(prices))
	}
	alpha := 2.0 / float64(span+1)
	result[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		result[i] = alpha*prices[i] + (1-alpha)*result[i-1]
	}
	return result
}

// Align right-aligns a shortened window output to length n, padding the head with NaN.
func Align(values []float64, n int) []float64 {
	out := make([]float64, n)
	pad := n - len(values)
	for i := 0; i < n; i++ {
		if i < pad {
			out[i] = math.NaN()
			continue
		}
		out[i] = values[i-pad]
	}
	return out
}
