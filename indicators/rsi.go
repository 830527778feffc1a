package indicators

// RSI computes the relative strength index from simple averages of gains
// and losses over the trailing period deltas. The first period entries are
// NaN since period deltas need period+1 closes.
//
// When the average loss is zero the index saturates at 100; a window with
// neither gains nor losses reads 50.
func RSI(closes []float64, period int) []float64 {
	out := nans(len(closes))
	if period <= 0 {
		return out
	}

	for i := period; i < len(closes); i++ {
		var gain, loss float64
		for j := i - period + 1; j <= i; j++ {
			d := closes[j] - closes[j-1]
			if d > 0 {
				gain += d
			} else {
				loss -= d
			}
		}

		switch {
		case loss == 0 && gain == 0:
			out[i] = 50
		case loss == 0:
			out[i] = 100
		default:
			rs := gain / loss
			out[i] = 100 - 100/(1+rs)
		}
	}
	return out
}
