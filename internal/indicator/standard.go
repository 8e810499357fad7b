package indicator

// Standard column names attached to every bar table built from market data.
const (
	ColMA5        = "MA5"
	ColMA20       = "MA20"
	ColMA60       = "MA60"
	ColRSI        = "RSI"
	ColMACD       = "MACD"
	ColMACDSignal = "MACD_Signal"
	ColMACDHist   = "MACD_Hist"
	ColBBUpper    = "BB_Upper"
	ColBBMiddle   = "BB_Middle"
	ColBBLower    = "BB_Lower"
)

// StandardWarmup is the longest window among the standard columns.
const StandardWarmup = 60

// Standard computes the default indicator set for a close series.
// Every column has len(closes) entries.
func Standard(closes []float64) map[string][]float64 {
	n := len(closes)
	macd := MACD(closes, 12, 26, 9)
	bb := Bollinger(closes, 20, 2)

	return map[string][]float64{
		ColMA5:        Align(SMA(closes, 5), n),
		ColMA20:       Align(SMA(closes, 20), n),
		ColMA60:       Align(SMA(closes, 60), n),
		ColRSI:        RSI(closes, 14),
		ColMACD:       macd.MACD,
		ColMACDSignal: macd.Signal,
		ColMACDHist:   macd.Histogram,
		ColBBUpper:    bb.Upper,
		ColBBMiddle:   bb.Middle,
		ColBBLower:    bb.Lower,
	}
}
