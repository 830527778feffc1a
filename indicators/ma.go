package indicators

// SMA is the trailing simple moving average over window values.
// The first window-1 entries are NaN.
func SMA(values []float64, window int) []float64 {
	out := nans(len(values))
	if window <= 0 {
		return out
	}

	sum := 0.0
	for i, v := range values {
		sum += v
		if i >= window {
			sum -= values[i-window]
		}
		if i >= window-1 {
			out[i] = sum / float64(window)
		}
	}
	return out
}

// EMA is the recursive exponential moving average with smoothing factor
// 2/(span+1), seeded with the first defined value. Undefined inputs carry
// the previous average forward.
func EMA(values []float64, span int) []float64 {
	out := nans(len(values))
	if span <= 0 {
		return out
	}

	alpha := 2.0 / float64(span+1)
	var ema float64
	seeded := false
	for i, v := range values {
		switch {
		case !Defined(v):
		case !seeded:
			ema, seeded = v, true
		default:
			ema = alpha*v + (1-alpha)*ema
		}
		if seeded {
			out[i] = ema
		}
	}
	return out
}
