// Package feed loads daily price history for the engine.
package feed

import (
	"context"
	"time"

	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/store"
)

// Source returns the full ordered, de-duplicated history of a symbol.
// An unknown symbol yields an empty series, not an error.
type Source interface {
	PriceHistory(ctx context.Context, symbol string) (*market.Series, error)
}

// Window trims s to the trailing years ending at anchor. A non-positive
// years keeps the whole history.
func Window(s *market.Series, years int, anchor time.Time) *market.Series {
	if s.Empty() || years <= 0 {
		return s
	}
	return s.Since(market.Day(anchor).AddDate(-years, 0, 0))
}

// StoreSource reads the OHLCV table of a repository.
type StoreSource struct {
	Repo store.Repository
}

func (s StoreSource) PriceHistory(ctx context.Context, symbol string) (*market.Series, error) {
	bars, err := s.Repo.PriceHistory(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return market.NewSeries(symbol, bars), nil
}
