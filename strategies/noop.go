package strategies

import (
	"github.com/touchsung/trading-bot/indicators"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

// Noop never trades. Useful for dry runs of data and calendar wiring.
type Noop struct {
	PriceBand
	Params indicators.Params
}

func (Noop) Name() string { return "noop" }

func (n Noop) CalculateIndicators(bars []market.Bar) *indicators.Frame {
	return indicators.Compute(bars, n.Params)
}

func (Noop) SignalBuy(*indicators.Frame, float64) Signal {
	return Signal{PositionType: market.NoBuy}
}

func (Noop) SignalSell(*indicators.Frame, float64) Signal {
	return Signal{PositionType: market.NoSell}
}

func (Noop) CheckStopLoss(string, float64, *indicators.Frame, portfolio.Position) bool {
	return false
}
