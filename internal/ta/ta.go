package ta

import "math"

// SMA is the simple average of the last n closes, NaN when there are fewer.
func SMA(closes []float64, n int) float64 {
	if len(closes) < n || n <= 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, c := range closes[len(closes)-n:] {
		sum += c
	}
	return sum / float64(n)
}

// ATR is the mean true range over the last period bars.
func ATR(highs, lows, closes []float64, period int) float64 {
	if len(highs) != len(lows) || len(lows) != len(closes) || period <= 0 {
		return math.NaN()
	}
	if len(closes) < period+1 {
		return math.NaN()
	}
	sum := 0.0
	for i := len(closes) - period; i < len(closes); i++ {
		tr := math.Max(highs[i]-lows[i],
			math.Max(math.Abs(highs[i]-closes[i-1]), math.Abs(lows[i]-closes[i-1])))
		sum += tr
	}
	return sum / float64(period)
}

// ATRPercent expresses ATR as a percentage of the last close.
func ATRPercent(highs, lows, closes []float64, period int) float64 {
	atr := ATR(highs, lows, closes, period)
	if math.IsNaN(atr) || closes[len(closes)-1] == 0 {
		return math.NaN()
	}
	return atr / closes[len(closes)-1] * 100
}
