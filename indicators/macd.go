package indicators

// MACD returns the MACD line (fast EMA minus slow EMA) and its signal line.
func MACD(closes []float64, fast, slow, signal int) (macd, sig []float64) {
	ef := EMA(closes, fast)
	es := EMA(closes, slow)

	macd = make([]float64, len(closes))
	for i := range closes {
		macd[i] = ef[i] - es[i]
	}
	return macd, EMA(macd, signal)
}
