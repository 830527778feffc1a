package indicators

import (
	"fmt"
	"math"

	"github.com/touchsung/trading-bot/market"
)

// Params selects the look-back windows of the indicator set.
type Params struct {
	RSIPeriod  int `json:"rsi_period" yaml:"rsi_period" validate:"gt=0"`
	MACDFast   int `json:"macd_fast" yaml:"macd_fast" validate:"gt=0"`
	MACDSlow   int `json:"macd_slow" yaml:"macd_slow" validate:"gt=0"`
	MACDSignal int `json:"macd_signal" yaml:"macd_signal" validate:"gt=0"`
	SMAFast    int `json:"sma_fast" yaml:"sma_fast" validate:"gt=0"`
	SMASlow    int `json:"sma_slow" yaml:"sma_slow" validate:"gt=0"`
	ATRPeriod  int `json:"atr_period" yaml:"atr_period" validate:"gt=0"`
}

func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		SMAFast:    50,
		SMASlow:    200,
		ATRPeriod:  14,
	}
}

func (p Params) Validate() error {
	if p.SMAFast >= p.SMASlow {
		return fmt.Errorf("indicators: sma_fast (%d) must be below sma_slow (%d)", p.SMAFast, p.SMASlow)
	}
	if p.MACDFast >= p.MACDSlow {
		return fmt.Errorf("indicators: macd_fast (%d) must be below macd_slow (%d)", p.MACDFast, p.MACDSlow)
	}
	return nil
}

// Frame is a bar series annotated with derived indicator columns.
type Frame struct {
	Bars    []market.Bar
	RSI     []float64
	MACD    []float64
	Signal  []float64
	SMAFast []float64
	SMASlow []float64
	ATR     []float64
}

// Row is one date of a Frame.
type Row struct {
	Bar     market.Bar
	RSI     float64
	MACD    float64
	Signal  float64
	SMAFast float64
	SMASlow float64
	ATR     float64
}

// Compute annotates bars with the full indicator set.
func Compute(bars []market.Bar, p Params) *Frame {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	macd, sig := MACD(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	return &Frame{
		Bars:    bars,
		RSI:     RSI(closes, p.RSIPeriod),
		MACD:    macd,
		Signal:  sig,
		SMAFast: SMA(closes, p.SMAFast),
		SMASlow: SMA(closes, p.SMASlow),
		ATR:     ATR(bars, p.ATRPeriod),
	}
}

func (f *Frame) Len() int {
	if f == nil {
		return 0
	}
	return len(f.Bars)
}

// Upto returns the frame restricted to rows 0..i. Every column is causal,
// so the result equals Compute over bars[:i+1].
func (f *Frame) Upto(i int) *Frame {
	n := i + 1
	return &Frame{
		Bars:    f.Bars[:n],
		RSI:     f.RSI[:n],
		MACD:    f.MACD[:n],
		Signal:  f.Signal[:n],
		SMAFast: f.SMAFast[:n],
		SMASlow: f.SMASlow[:n],
		ATR:     f.ATR[:n],
	}
}

// Last returns the most recent row. An empty frame yields an all-NaN row.
func (f *Frame) Last() Row {
	n := f.Len()
	if n == 0 {
		nan := math.NaN()
		return Row{RSI: nan, MACD: nan, Signal: nan, SMAFast: nan, SMASlow: nan, ATR: nan}
	}
	i := n - 1
	return Row{
		Bar:     f.Bars[i],
		RSI:     f.RSI[i],
		MACD:    f.MACD[i],
		Signal:  f.Signal[i],
		SMAFast: f.SMAFast[i],
		SMASlow: f.SMASlow[i],
		ATR:     f.ATR[i],
	}
}
