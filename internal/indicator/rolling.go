package indicator

import "math"

// RollingStd is the sample standard deviation over a trailing window,
// NaN-padded. A window holding a non-finite value yields NaN. Runs in O(n)
// from running sums taken around the first finite value.
func RollingStd(prices []float64, period int) []float64 {
	n := len(prices)
	out := Align(nil, n)
	if period < 2 || n < period {
		return out
	}

	var shift float64
	for _, v := range prices {
		if finite(v) {
			shift = v
			break
		}
	}

	var sum, sq float64
	bad := 0
	p := float64(period)
	for i, v := range prices {
		if finite(v) {
			d := v - shift
			sum += d
			sq += d * d
		} else {
			bad++
		}
		if i >= period {
			if old := prices[i-period]; finite(old) {
				d := old - shift
				sum -= d
				sq -= d * d
			} else {
				bad--
			}
		}
		if i < period-1 || bad > 0 {
			continue
		}
		out[i] = math.Sqrt(math.Max(0, (sq-sum*sum/p)/(p-1)))
	}
	return out
}

// RollingMax is the trailing window maximum, NaN-padded.
func RollingMax(prices []float64, period int) []float64 {
	return rollingExtreme(prices, period, func(a, b float64) bool { return a >= b })
}

// RollingMin is the trailing window minimum, NaN-padded.
func RollingMin(prices []float64, period int) []float64 {
	return rollingExtreme(prices, period, func(a, b float64) bool { return a <= b })
}

// rollingExtreme keeps a monotonic deque of indices whose values are not
// dominated by a later value, so each index is pushed and popped once.
// A window holding NaN yields NaN.
func rollingExtreme(prices []float64, period int, dominates func(a, b float64) bool) []float64 {
	n := len(prices)
	out := Align(nil, n)
	if period <= 0 || n < period {
		return out
	}

	deque := make([]int, 0, period)
	lastNaN := -1
	for i, v := range prices {
		if len(deque) > 0 && deque[0] <= i-period {
			deque = deque[1:]
		}
		if math.IsNaN(v) {
			lastNaN = i
		} else {
			for len(deque) > 0 && dominates(v, prices[deque[len(deque)-1]]) {
				deque = deque[:len(deque)-1]
			}
			deque = append(deque, i)
		}
		if i < period-1 || lastNaN > i-period {
			continue
		}
		out[i] = prices[deque[0]]
	}
	return out
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// BollingerResult holds upper, middle and lower bands aligned to the input.
type BollingerResult struct {
	Upper  []float64
	Middle []float64
	Lower  []float64
}

// Bollinger computes SMA bands at k sample standard deviations.
func Bollinger(prices []float64, period int, k float64) BollingerResult {
	n := len(prices)
	middle := Align(SMA(prices, period), n)
	std := RollingStd(prices, period)

	upper := make([]float64, n)
	lower := make([]float64, n)
	for i := 0; i < n; i++ {
		upper[i] = middle[i] + k*std[i]
		lower[i] = middle[i] - k*std[i]
	}
	return BollingerResult{Upper: upper, Middle: middle, Lower: lower}
}
