package strategies

import (
	"fmt"
	"strings"

	"github.com/touchsung/trading-bot/indicators"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

// Strategy scores indicator-annotated history. The engine calls it once
// per symbol and date with a frame that ends on that date.
type Strategy interface {
	Name() string

	// CalculateIndicators annotates bars with the columns the strategy reads.
	CalculateIndicators(bars []market.Bar) *indicators.Frame

	SignalBuy(f *indicators.Frame, price float64) Signal
	SignalSell(f *indicators.Frame, price float64) Signal

	// CheckStopLoss reports whether a held position must be closed in full.
	CheckStopLoss(symbol string, price float64, f *indicators.Frame, pos portfolio.Position) bool

	IsPriceInRange(price float64) bool
}

// Signal is an intensity in [0,1] and the label recorded on the order.
type Signal struct {
	Intensity    float64
	PositionType market.PositionType
}

func (s Signal) Active() bool { return s.Intensity > 0 }

// Config selects and parameterizes a strategy.
type Config struct {
	Name       string            `json:"name" yaml:"name" validate:"required"`
	MinPrice   float64           `json:"min_price" yaml:"min_price" validate:"gte=0"`
	MaxPrice   float64           `json:"max_price" yaml:"max_price" validate:"gtfield=MinPrice"`
	StopATR    float64           `json:"stop_atr" yaml:"stop_atr" validate:"gt=0"`
	Indicators indicators.Params `json:"indicators" yaml:"indicators"`
}

func DefaultConfig() Config {
	return Config{
		Name:       "sma-cross",
		MinPrice:   10,
		MaxPrice:   1000,
		StopATR:    2,
		Indicators: indicators.DefaultParams(),
	}
}

// ByName builds the strategy named in cfg.
func ByName(cfg Config) (Strategy, error) {
	band := PriceBand{Min: cfg.MinPrice, Max: cfg.MaxPrice}

	switch strings.ToLower(strings.TrimSpace(cfg.Name)) {
	case "noop", "none":
		return Noop{PriceBand: band, Params: cfg.Indicators}, nil

	case "sma-cross", "smacross", "sma":
		if err := cfg.Indicators.Validate(); err != nil {
			return nil, err
		}
		return NewSMACross(band, cfg.Indicators, cfg.StopATR), nil

	default:
		return nil, fmt.Errorf("unknown strategy %q (supported: sma-cross, noop)", cfg.Name)
	}
}

// PriceBand rejects prices outside [Min, Max]. A zero Max disables the upper bound.
type PriceBand struct {
	Min float64
	Max float64
}

func (b PriceBand) IsPriceInRange(price float64) bool {
	if price < b.Min {
		return false
	}
	return b.Max <= 0 || price <= b.Max
}
