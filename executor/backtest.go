package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/touchsung/trading-bot/internal/id"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

// Backtest fills every order at its price with a zero-fee schedule unless
// Fees is set.
type Backtest struct {
	Initial float64
	Account string
	Fees    portfolio.FeeSchedule

	ids *id.Generator
	log *zap.Logger
}

func NewBacktest(initial float64, account string, log *zap.Logger) *Backtest {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backtest{Initial: initial, Account: account, ids: id.NewGenerator(1), log: log}
}

func (b *Backtest) Load(_ context.Context, _ []string) (*portfolio.Book, error) {
	if b.Initial <= 0 {
		return nil, fmt.Errorf("backtest: initial budget must be > 0 (got %v)", b.Initial)
	}
	return portfolio.NewBook(b.Initial), nil
}

func (b *Backtest) Execute(_ context.Context, book *portfolio.Book, o Order) (*market.Trade, error) {
	fees := b.Fees.For(o.Price, o.Volume)
	t := market.Trade{
		OrderNo:      b.ids.At(o.Date),
		Account:      b.Account,
		Symbol:       o.Symbol,
		Side:         o.Side,
		Price:        o.Price,
		Volume:       o.Volume,
		Commission:   fees.Commission,
		VAT:          fees.VAT,
		WHT:          fees.WHT,
		Date:         o.Date,
		PositionType: o.PositionType,
	}
	if err := book.Apply(t); err != nil {
		return nil, fmt.Errorf("backtest: %s %s on %s: %w", o.Side, o.Symbol, o.Date.Format(market.DateLayout), err)
	}

	b.log.Debug("fill",
		zap.String("symbol", t.Symbol),
		zap.String("side", string(t.Side)),
		zap.Int64("volume", t.Volume),
		zap.Float64("price", t.Price),
		zap.String("position_type", string(t.PositionType)),
		zap.Float64("available", book.Budget.Available),
	)
	return &t, nil
}
