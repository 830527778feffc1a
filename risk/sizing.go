package risk

import (
	"math"
	"time"

	"github.com/touchsung/trading-bot/portfolio"
)

type Violation struct {
	Code string
	Msg  string
}

type Decision struct {
	Allowed    bool
	Shares     int64
	Cost       float64
	Violations []Violation
}

func (d *Decision) add(code, msg string) {
	d.Violations = append(d.Violations, Violation{Code: code, Msg: msg})
	d.Allowed = false
	d.Shares = 0
	d.Cost = 0
}

// BuyIntent is the state a buy is sized against.
type BuyIntent struct {
	Now       time.Time
	Symbol    string
	Price     float64
	Intensity float64
	Symbols   int

	Position portfolio.Position
	Budget   portfolio.Budget
	// LastTrade is the date of the symbol's latest fill, zero when none.
	LastTrade time.Time
}

// SizeBuy applies the sizing rule
//
//	shares = min(floor(maxNotional/price*intensity), floor(available/price))
//
// then trims shares until notional plus fees fits the available budget.
func SizeBuy(p Policy, fees portfolio.FeeSchedule, in BuyIntent) Decision {
	d := Decision{Allowed: true}

	if in.Price <= 0 {
		d.add("BAD_PRICE", "price must be > 0")
		return d
	}
	if in.Intensity <= 0 {
		d.add("NO_SIGNAL", "buy intensity is zero")
		return d
	}
	if in.Budget.Available <= 0 {
		d.add("NO_BUDGET", "available budget exhausted")
		return d
	}
	if in.Position.Held() && !p.AllowAveragingUp {
		d.add("POSITION_OPEN", "symbol already held")
		return d
	}
	if p.CoolingDown(in.Now, in.LastTrade) {
		d.add("COOLDOWN", "last trade too recent")
		return d
	}

	intensity := math.Min(in.Intensity, 1)
	maxNotional := p.MaxTradeNotional(in.Budget.Initial, in.Symbols)
	byCap := math.Floor(maxNotional / in.Price * intensity)
	byCash := math.Floor(in.Budget.Available / in.Price)
	shares := int64(math.Min(byCap, byCash))

	for shares > 0 && fees.Cost(in.Price, shares) > in.Budget.Available {
		shares--
	}
	if shares <= 0 {
		d.add("ZERO_SHARES", "sized to zero shares")
		return d
	}

	d.Shares = shares
	d.Cost = fees.Cost(in.Price, shares)
	return d
}

// SizeSell returns floor(held*intensity), clamped to [0, held].
func SizeSell(held int64, intensity float64) int64 {
	if held <= 0 || intensity <= 0 {
		return 0
	}
	n := int64(math.Floor(float64(held) * math.Min(intensity, 1)))
	if n > held {
		n = held
	}
	return n
}
