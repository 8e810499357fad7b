package indicator

import (
	"math"
	"math/rand"
	"testing"
	"time"
)

// scanWindow applies f to every full trailing window by brute force.
func scanWindow(prices []float64, period int, f func(w []float64) float64) []float64 {
	out := Align(nil, len(prices))
	for i := period - 1; i < len(prices); i++ {
		out[i] = f(prices[i-period+1 : i+1])
	}
	return out
}

func scanStd(w []float64) float64 {
	var sum float64
	for _, v := range w {
		sum += v
	}
	mean := sum / float64(len(w))
	var sq float64
	for _, v := range w {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(w)-1))
}

func scanMax(w []float64) float64 {
	best := w[0]
	for _, v := range w[1:] {
		if math.IsNaN(v) || v > best {
			best = v
		}
		if math.IsNaN(best) {
			return best
		}
	}
	return best
}

func scanMin(w []float64) float64 {
	best := w[0]
	for _, v := range w[1:] {
		if math.IsNaN(v) || v < best {
			best = v
		}
		if math.IsNaN(best) {
			return best
		}
	}
	return best
}

func sameSeries(t *testing.T, name string, got, want []float64, tolerance float64) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("%s: length %d, want %d", name, len(got), len(want))
	}
	for i := range want {
		if math.IsNaN(want[i]) != math.IsNaN(got[i]) {
			t.Fatalf("%s[%d] = %f, want %f", name, i, got[i], want[i])
		}
		if !math.IsNaN(want[i]) && !almostEqual(got[i], want[i], tolerance) {
			t.Fatalf("%s[%d] = %.12f, want %.12f", name, i, got[i], want[i])
		}
	}
}

func TestRollingStd(t *testing.T) {
	std := RollingStd([]float64{2, 4, 4, 4, 5, 5, 7, 9}, 8)

	for i := 0; i < 7; i++ {
		if !math.IsNaN(std[i]) {
			t.Errorf("std[%d] should be NaN, got %f", i, std[i])
		}
	}
	// sample std of the classic example: sqrt(32/7)
	if !almostEqual(std[7], math.Sqrt(32.0/7.0), 1e-12) {
		t.Errorf("std[7] = %f, want %f", std[7], math.Sqrt(32.0/7.0))
	}
}

func TestRollingMaxMin(t *testing.T) {
	prices := []float64{3, 1, 4, 1, 5}
	max := RollingMax(prices, 2)
	min := RollingMin(prices, 2)

	wantMax := []float64{math.NaN(), 3, 4, 4, 5}
	wantMin := []float64{math.NaN(), 1, 1, 1, 1}
	for i := 1; i < len(prices); i++ {
		if max[i] != wantMax[i] {
			t.Errorf("max[%d] = %f, want %f", i, max[i], wantMax[i])
		}
		if min[i] != wantMin[i] {
			t.Errorf("min[%d] = %f, want %f", i, min[i], wantMin[i])
		}
	}
	if !math.IsNaN(max[0]) || !math.IsNaN(min[0]) {
		t.Error("expected NaN warmup")
	}
}

func TestBollinger(t *testing.T) {
	prices := []float64{10, 10, 10, 13}
	bb := Bollinger(prices, 2, 2)

	if !math.IsNaN(bb.Middle[0]) {
		t.Errorf("middle[0] should be NaN, got %f", bb.Middle[0])
	}
	if bb.Middle[1] != 10 || bb.Upper[1] != 10 || bb.Lower[1] != 10 {
		t.Errorf("flat window should collapse bands, got %f/%f/%f", bb.Upper[1], bb.Middle[1], bb.Lower[1])
	}
	if !(bb.Upper[3] > bb.Middle[3] && bb.Middle[3] > bb.Lower[3]) {
		t.Errorf("expected upper > middle > lower at 3, got %f/%f/%f", bb.Upper[3], bb.Middle[3], bb.Lower[3])
	}
}

func TestStandard_ColumnsAligned(t *testing.T) {
	closes := make([]float64, 70)
	for i := range closes {
		closes[i] = 100 + math.Sin(float64(i))
	}
	cols := Standard(closes)

	want := []string{ColMA5, ColMA20, ColMA60, ColRSI, ColMACD, ColMACDSignal, ColMACDHist, ColBBUpper, ColBBMiddle, ColBBLower}
	if len(cols) != len(want) {
		t.Fatalf("expected %d columns, got %d", len(want), len(cols))
	}
	for _, name := range want {
		col, ok := cols[name]
		if !ok {
			t.Fatalf("missing column %s", name)
		}
		if len(col) != len(closes) {
			t.Errorf("column %s has %d values, want %d", name, len(col), len(closes))
		}
	}
	if !math.IsNaN(cols[ColMA60][58]) || math.IsNaN(cols[ColMA60][59]) {
		t.Error("MA60 should become valid at index 59")
	}
}

func TestRolling_MatchesWindowScan(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	prices := make([]float64, 500)
	price := 100.0
	for i := range prices {
		price += rng.NormFloat64()
		prices[i] = price
	}
	// repeated values exercise ties in the deque
	for i := 200; i < 210; i++ {
		prices[i] = 95
	}

	for _, period := range []int{1, 2, 3, 7, 20, 499, 500} {
		sameSeries(t, "max", RollingMax(prices, period), scanWindow(prices, period, scanMax), 0)
		sameSeries(t, "min", RollingMin(prices, period), scanWindow(prices, period, scanMin), 0)
		if period >= 2 {
			sameSeries(t, "std", RollingStd(prices, period), scanWindow(prices, period, scanStd), 1e-8)
		}
	}
}

func TestRolling_NaNInWindow(t *testing.T) {
	prices := []float64{1, 5, math.NaN(), 2, 3, 4}

	max := RollingMax(prices, 2)
	min := RollingMin(prices, 2)
	std := RollingStd(prices, 2)
	for _, i := range []int{0, 2, 3} {
		if !math.IsNaN(max[i]) || !math.IsNaN(min[i]) || !math.IsNaN(std[i]) {
			t.Errorf("index %d: expected NaN, got max=%f min=%f std=%f", i, max[i], min[i], std[i])
		}
	}
	if max[1] != 5 || min[1] != 1 {
		t.Errorf("index 1: max=%f min=%f", max[1], min[1])
	}
	if max[5] != 4 || min[4] != 2 {
		t.Errorf("after NaN leaves the window: max[5]=%f min[4]=%f", max[5], min[4])
	}
	if !almostEqual(std[5], math.Sqrt(0.5), 1e-12) {
		t.Errorf("std[5] = %f, want %f", std[5], math.Sqrt(0.5))
	}
}

func TestRollingStd_FlatWindowIsZero(t *testing.T) {
	prices := []float64{1e6 + 0.1, 1e6 + 0.1, 1e6 + 0.1, 1e6 + 0.1}
	for i, v := range RollingStd(prices, 3)[2:] {
		if math.IsNaN(v) || v < 0 || v > 1e-6 {
			t.Errorf("std[%d] = %g, want ~0", i+2, v)
		}
	}
}

func TestRolling_LargeWindowIsLinear(t *testing.T) {
	prices := make([]float64, 300_000)
	for i := range prices {
		prices[i] = float64(i % 977)
	}

	start := time.Now()
	max := RollingMax(prices, 150_000)
	min := RollingMin(prices, 150_000)
	std := RollingStd(prices, 150_000)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("rolling helpers took %s on 300k values", elapsed)
	}
	if max[len(max)-1] != 976 || min[len(min)-1] != 0 || math.IsNaN(std[len(std)-1]) {
		t.Errorf("unexpected tail: max=%f min=%f std=%f", max[len(max)-1], min[len(min)-1], std[len(std)-1])
	}
}
