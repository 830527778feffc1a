package indicators

import (
	"math"

	"github.com/touchsung/trading-bot/market"
)

// TrueRange is max(high-low, |high-prevClose|, |low-prevClose|). The first
// bar has no previous close and uses high-low.
func TrueRange(bars []market.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		tr := b.High - b.Low
		if i > 0 {
			prev := bars[i-1].Close
			tr = math.Max(tr, math.Max(math.Abs(b.High-prev), math.Abs(b.Low-prev)))
		}
		out[i] = tr
	}
	return out
}

// ATR is the trailing simple average of the true range over period bars.
func ATR(bars []market.Bar, period int) []float64 {
	return SMA(TrueRange(bars), period)
}
