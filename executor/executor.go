// Package executor turns sized orders into fills. Backtest fills in memory
// at the bar close; Live round-trips through the store and a gateway.
package executor

import (
	"context"
	"errors"
	"time"

	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

// ErrOrderFailed is returned when every placement attempt failed.
var ErrOrderFailed = errors.New("executor: order failed")

// Order is a sized decision for one symbol on one date.
type Order struct {
	Symbol       string
	Side         market.Side
	Price        float64
	Volume       int64
	PositionType market.PositionType
	Date         time.Time
}

type Executor interface {
	// Load returns the book a run starts from.
	Load(ctx context.Context, symbols []string) (*portfolio.Book, error)

	// Execute fills o and applies it to book. A nil trade with a nil error
	// means the order was suppressed or rejected without harming the run.
	Execute(ctx context.Context, book *portfolio.Book, o Order) (*market.Trade, error)
}
