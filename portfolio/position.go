// Package portfolio keeps per-symbol positions and the run budget, applying
// fills with average-cost accounting. The same arithmetic serves the
// in-memory backtest book and the persisted live portfolio.
package portfolio

import (
	"errors"
	"fmt"
	"time"

	"github.com/touchsung/trading-bot/market"
)

var (
	ErrInsufficientBudget   = errors.New("portfolio: insufficient budget")
	ErrInsufficientPosition = errors.New("portfolio: insufficient position")
)

// Position is the holding of one symbol.
//
// AverageCost is zero exactly when Volume is zero. The cost basis includes
// the fees paid on buys.
type Position struct {
	Symbol           string    `json:"symbol"`
	Volume           int64     `json:"volume"`
	AverageCost      float64   `json:"average_cost"`
	EntryPrice       float64   `json:"entry_price"`
	EntryVolume      int64     `json:"entry_volume"`
	LastTradeDate    time.Time `json:"last_trade_date"`
	RealizedProfit   float64   `json:"realized_profit"`
	UnrealizedProfit float64   `json:"unrealized_profit"`
}

func (p Position) Held() bool { return p.Volume > 0 }

// MarketValue values the holding at price.
func (p Position) MarketValue(price float64) float64 {
	return float64(p.Volume) * price
}

// Budget is the cash side of a run.
type Budget struct {
	Initial   float64 `json:"initial"`
	Available float64 `json:"available"`
}

func NewBudget(initial float64) Budget {
	return Budget{Initial: initial, Available: initial}
}

// Fill is an executed quantity at a price, with its total fees.
type Fill struct {
	Side   market.Side
	Price  float64
	Volume int64
	Fees   float64
	Date   time.Time
}

func FillFromTrade(t market.Trade) Fill {
	return Fill{Side: t.Side, Price: t.Price, Volume: t.Volume, Fees: t.Fees(), Date: t.Date}
}

func (f Fill) validate() error {
	if f.Price <= 0 {
		return fmt.Errorf("portfolio: price must be > 0 (got %v)", f.Price)
	}
	if f.Volume <= 0 {
		return fmt.Errorf("portfolio: volume must be > 0 (got %d)", f.Volume)
	}
	if f.Fees < 0 {
		return fmt.Errorf("portfolio: fees must be >= 0 (got %v)", f.Fees)
	}
	return nil
}

// ApplyBuy adds a buy fill to pos and charges its cost to b.
func ApplyBuy(pos Position, b Budget, f Fill) (Position, Budget, error) {
	if err := f.validate(); err != nil {
		return pos, b, err
	}

	cost := f.Price*float64(f.Volume) + f.Fees
	if cost > b.Available {
		return pos, b, fmt.Errorf("%w: cost %.2f > available %.2f", ErrInsufficientBudget, cost, b.Available)
	}

	vol := pos.Volume + f.Volume
	pos.AverageCost = (pos.AverageCost*float64(pos.Volume) + f.Price*float64(f.Volume) + f.Fees) / float64(vol)
	pos.Volume = vol
	pos.EntryPrice = f.Price
	pos.EntryVolume = f.Volume
	pos.LastTradeDate = f.Date
	pos.UnrealizedProfit = (f.Price - pos.AverageCost) * float64(vol)

	b.Available -= cost
	return pos, b, nil
}

// ApplySell removes a sell fill from pos and credits the proceeds to b.
// It returns the realized profit of the fill.
func ApplySell(pos Position, b Budget, f Fill) (Position, Budget, float64, error) {
	if err := f.validate(); err != nil {
		return pos, b, 0, err
	}
	if f.Volume > pos.Volume {
		return pos, b, 0, fmt.Errorf("%w: sell %d > held %d", ErrInsufficientPosition, f.Volume, pos.Volume)
	}

	realized := (f.Price-pos.AverageCost)*float64(f.Volume) - f.Fees
	pos.RealizedProfit += realized
	pos.Volume -= f.Volume
	pos.LastTradeDate = f.Date

	if pos.Volume == 0 {
		pos.AverageCost = 0
		pos.EntryPrice = 0
		pos.EntryVolume = 0
		pos.UnrealizedProfit = 0
	} else {
		pos.UnrealizedProfit = (f.Price - pos.AverageCost) * float64(pos.Volume)
	}

	b.Available += f.Price*float64(f.Volume) - f.Fees
	return pos, b, realized, nil
}
