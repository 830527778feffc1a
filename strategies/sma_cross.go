package strategies

import (
	"github.com/touchsung/trading-bot/indicators"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

// SMACross follows the fast/slow SMA regime, graded by RSI, with an ATR
// trailing stop below the entry price.
//
//   - buy 1.0 when fast > slow and RSI > 30, 0.5 when only fast > slow
//   - sell 1.0 when fast < slow and RSI < 70, 0.5 when only fast < slow
//   - stop when held and price < entry - StopATR*ATR
//
// Undefined indicators never produce a signal.
type SMACross struct {
	PriceBand
	Params  indicators.Params
	StopATR float64
}

func NewSMACross(band PriceBand, p indicators.Params, stopATR float64) *SMACross {
	if stopATR <= 0 {
		stopATR = 2
	}
	return &SMACross{PriceBand: band, Params: p, StopATR: stopATR}
}

func (s *SMACross) Name() string { return "sma-cross" }

func (s *SMACross) CalculateIndicators(bars []market.Bar) *indicators.Frame {
	return indicators.Compute(bars, s.Params)
}

func (s *SMACross) SignalBuy(f *indicators.Frame, _ float64) Signal {
	row := f.Last()
	if !indicators.Defined(row.SMAFast) || !indicators.Defined(row.SMASlow) || row.SMAFast <= row.SMASlow {
		return Signal{PositionType: market.NoBuy}
	}
	if indicators.Defined(row.RSI) && row.RSI > 30 {
		return Signal{Intensity: 1, PositionType: market.StrongBuy}
	}
	return Signal{Intensity: 0.5, PositionType: market.ModerateBuy}
}

func (s *SMACross) SignalSell(f *indicators.Frame, _ float64) Signal {
	row := f.Last()
	if !indicators.Defined(row.SMAFast) || !indicators.Defined(row.SMASlow) || row.SMAFast >= row.SMASlow {
		return Signal{PositionType: market.NoSell}
	}
	if indicators.Defined(row.RSI) && row.RSI < 70 {
		return Signal{Intensity: 1, PositionType: market.StrongSell}
	}
	return Signal{Intensity: 0.5, PositionType: market.ModerateSell}
}

func (s *SMACross) CheckStopLoss(_ string, price float64, f *indicators.Frame, pos portfolio.Position) bool {
	if !pos.Held() {
		return false
	}
	atr := f.Last().ATR
	if !indicators.Defined(atr) {
		return false
	}
	return StopTriggered(price, pos.EntryPrice, atr, s.StopATR)
}

// StopTriggered reports price < entry - k*atr.
func StopTriggered(price, entry, atr, k float64) bool {
	return price < entry-k*atr
}
