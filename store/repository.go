// Package store persists bots, portfolios, signals, trades and price
// history. Repository is the narrow port the live executor depends on;
// Memory and Gorm implement it.
package store

import (
	"context"
	"errors"

	"github.com/touchsung/trading-bot/market"
)

var (
	ErrNotFound        = errors.New("store: not found")
	ErrDuplicateSignal = errors.New("store: duplicate pending signal")
)

type Repository interface {
	// EnsureBot returns the bot named in spec, creating its account,
	// strategy and bot rows on first use.
	EnsureBot(ctx context.Context, spec BotSpec) (Bot, error)
	GetBot(ctx context.Context, botID uint) (Bot, error)
	UpdateBot(ctx context.Context, b Bot) error

	GetPortfolio(ctx context.Context, botID uint, symbol string) (Portfolio, error)
	ListPortfolios(ctx context.Context, botID uint) ([]Portfolio, error)
	// UpdatePortfolio inserts or replaces the row for (BotID, Symbol).
	UpdatePortfolio(ctx context.Context, p *Portfolio) error

	// AddSignal persists s and assigns its ID. A pending signal whose key
	// is already pending fails with ErrDuplicateSignal.
	AddSignal(ctx context.Context, s *Signal) error
	FindPendingSignal(ctx context.Context, key SignalKey) (Signal, error)
	UpdateSignalStatus(ctx context.Context, signalID uint, status market.OrderStatus) error
	// PendingSignals lists the bot's Pending signals, oldest first.
	PendingSignals(ctx context.Context, botID uint) ([]Signal, error)
	// SignalTrade returns the trade linked to the signal by a transaction.
	SignalTrade(ctx context.Context, signalID uint) (Trade, error)

	AddTrade(ctx context.Context, t *Trade) error
	AddTransaction(ctx context.Context, tx *Transaction) error
	LastTrade(ctx context.Context, botID uint, symbol string) (Trade, error)
	Trades(ctx context.Context, botID uint) ([]Trade, error)

	PriceHistory(ctx context.Context, symbol string) ([]market.Bar, error)
	SaveBars(ctx context.Context, bars []market.Bar) error

	// Atomic runs fn against a transactional view. Every write made through
	// that view is kept if fn returns nil and discarded otherwise.
	Atomic(ctx context.Context, fn func(Repository) error) error

	Close() error
}

func pendingKey(s *Signal) *string {
	if s.Status != market.Pending {
		return nil
	}
	k := s.Key().String()
	return &k
}
