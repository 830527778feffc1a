// Package risk decides whether and how much to trade given the budget,
// the current position and the configured sizing policy.
package risk

import (
	"fmt"
	"time"
)

// Cooldown selects how recent trades gate new buys.
type Cooldown string

const (
	// CooldownNone never blocks a buy on trade recency.
	CooldownNone Cooldown = "none"
	// CooldownMinGap blocks a buy until more than CooldownDays have passed
	// since the symbol's last trade.
	CooldownMinGap Cooldown = "min-gap"
)

type Policy struct {
	// MaxTradeFraction caps one buy at this fraction of the initial budget.
	MaxTradeFraction float64 `json:"max_trade_fraction" yaml:"max_trade_fraction" validate:"gt=0,lte=1"`
	// DivideBySymbols further splits the cap across the traded symbols.
	DivideBySymbols bool `json:"divide_by_symbols" yaml:"divide_by_symbols"`

	AllowAveragingUp bool `json:"allow_averaging_up" yaml:"allow_averaging_up"`

	Cooldown     Cooldown `json:"cooldown" yaml:"cooldown" validate:"omitempty,oneof=none min-gap"`
	CooldownDays int      `json:"cooldown_days" yaml:"cooldown_days" validate:"gte=0"`
}

func DefaultPolicy() Policy {
	return Policy{
		MaxTradeFraction: 0.10,
		Cooldown:         CooldownNone,
		CooldownDays:     3,
	}
}

func (p Policy) Validate() error {
	if p.MaxTradeFraction <= 0 || p.MaxTradeFraction > 1 {
		return fmt.Errorf("risk: max_trade_fraction must be in (0,1] (got %v)", p.MaxTradeFraction)
	}
	switch p.Cooldown {
	case "", CooldownNone, CooldownMinGap:
	default:
		return fmt.Errorf("risk: unknown cooldown %q (supported: none, min-gap)", p.Cooldown)
	}
	return nil
}

// MaxTradeNotional is the largest buy in currency for one order.
func (p Policy) MaxTradeNotional(initial float64, symbols int) float64 {
	n := initial * p.MaxTradeFraction
	if p.DivideBySymbols && symbols > 0 {
		n /= float64(symbols)
	}
	return n
}

// CoolingDown reports whether last blocks a buy at now.
func (p Policy) CoolingDown(now, last time.Time) bool {
	if p.Cooldown != CooldownMinGap || last.IsZero() {
		return false
	}
	days := int(now.Sub(last).Hours() / 24)
	return days <= p.CooldownDays
}
