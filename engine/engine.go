// Package engine drives a strategy over dates and symbols. Backtest walks
// stored history once; Live polls the market calendar and evaluates each
// symbol once per trading date.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/touchsung/trading-bot/executor"
	"github.com/touchsung/trading-bot/feed"
	"github.com/touchsung/trading-bot/indicators"
	"github.com/touchsung/trading-bot/lock"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/metrics"
	"github.com/touchsung/trading-bot/notify"
	"github.com/touchsung/trading-bot/portfolio"
	"github.com/touchsung/trading-bot/risk"
	"github.com/touchsung/trading-bot/strategies"
)

type Config struct {
	Name    string
	Symbols []string
	Policy  risk.Policy
	// Fees is the schedule sizing reserves for. It should match what the
	// executor charges.
	Fees portfolio.FeeSchedule
	// HistoryYears trims history to a trailing window. Zero keeps it all.
	HistoryYears int

	PollInterval time.Duration
	// TradePhases are the market phases during which a live pass trades.
	TradePhases []market.Phase
	LockTTL     time.Duration
}

type Engine struct {
	cfg      Config
	strategy strategies.Strategy
	source   feed.Source
	exec     executor.Executor

	cal     *market.Calendar
	log     *zap.Logger
	alert   notify.Notifier
	metrics *metrics.Metrics
	lock    lock.DistributedLock
	now     func() time.Time

	// done is the last target date evaluated per symbol in live mode.
	done map[string]time.Time
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func WithNotifier(n notify.Notifier) Option { return func(e *Engine) { e.alert = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithLock(l lock.DistributedLock) Option { return func(e *Engine) { e.lock = l } }

func WithCalendar(c *market.Calendar) Option { return func(e *Engine) { e.cal = c } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

func New(cfg Config, s strategies.Strategy, src feed.Source, exec executor.Executor, opts ...Option) (*Engine, error) {
	if s == nil {
		return nil, fmt.Errorf("engine: strategy is required")
	}
	if src == nil {
		return nil, fmt.Errorf("engine: price source is required")
	}
	if exec == nil {
		return nil, fmt.Errorf("engine: executor is required")
	}
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("engine: at least one symbol is required")
	}
	if err := cfg.Policy.Validate(); err != nil {
		return nil, err
	}
	if cfg.Name == "" {
		cfg.Name = s.Name()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * cfg.PollInterval
	}

	e := &Engine{
		cfg:      cfg,
		strategy: s,
		source:   src,
		exec:     exec,
		log:      zap.NewNop(),
		alert:    notify.Nop{},
		metrics:  metrics.NewDiscard(),
		lock:     lock.NopLock{},
		now:      time.Now,
		done:     make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cal == nil {
		cal, err := market.NewCalendar("", nil, nil)
		if err != nil {
			return nil, err
		}
		e.cal = cal
	}
	return e, nil
}

// bar is one symbol on one date with the indicators known at that date.
type bar struct {
	symbol string
	date   time.Time
	price  float64
	frame  *indicators.Frame
}

// step runs the per-symbol state machine for one date. A stop-loss exit
// ends the step; otherwise a buy is considered before a sell.
func (e *Engine) step(ctx context.Context, book *portfolio.Book, b bar) error {
	log := e.log.With(zap.String("symbol", b.symbol), zap.String("date", b.date.Format(market.DateLayout)))

	if !e.strategy.IsPriceInRange(b.price) {
		log.Debug("price out of range", zap.Float64("price", b.price))
		return nil
	}

	pos := book.Position(b.symbol)
	if pos.Held() && e.strategy.CheckStopLoss(b.symbol, b.price, b.frame, pos) {
		log.Info("stop loss", zap.Float64("price", b.price), zap.Float64("entry", pos.EntryPrice))
		_, err := e.exec.Execute(ctx, book, executor.Order{
			Symbol:       b.symbol,
			Side:         market.Sell,
			Price:        b.price,
			Volume:       pos.Volume,
			PositionType: market.StopLoss,
			Date:         b.date,
		})
		return err
	}

	if sig := e.strategy.SignalBuy(b.frame, b.price); sig.Active() && book.Budget.Available > 0 {
		d := risk.SizeBuy(e.cfg.Policy, e.cfg.Fees, risk.BuyIntent{
			Now:       b.date,
			Symbol:    b.symbol,
			Price:     b.price,
			Intensity: sig.Intensity,
			Symbols:   len(e.cfg.Symbols),
			Position:  pos,
			Budget:    book.Budget,
			LastTrade: pos.LastTradeDate,
		})
		if d.Allowed {
			if _, err := e.exec.Execute(ctx, book, executor.Order{
				Symbol:       b.symbol,
				Side:         market.Buy,
				Price:        b.price,
				Volume:       d.Shares,
				PositionType: sig.PositionType,
				Date:         b.date,
			}); err != nil {
				return err
			}
		} else {
			log.Debug("buy refused", zap.Any("violations", d.Violations))
		}
	}

	pos = book.Position(b.symbol)
	if sig := e.strategy.SignalSell(b.frame, b.price); sig.Active() && pos.Held() {
		if n := risk.SizeSell(pos.Volume, sig.Intensity); n > 0 {
			if _, err := e.exec.Execute(ctx, book, executor.Order{
				Symbol:       b.symbol,
				Side:         market.Sell,
				Price:        b.price,
				Volume:       n,
				PositionType: sig.PositionType,
				Date:         b.date,
			}); err != nil {
				return err
			}
		}
	}
	return nil
}
