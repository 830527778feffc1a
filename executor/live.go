package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/touchsung/trading-bot/broker"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/metrics"
	"github.com/touchsung/trading-bot/notify"
	"github.com/touchsung/trading-bot/portfolio"
	"github.com/touchsung/trading-bot/store"
)

type LiveConfig struct {
	Attempts        int           `json:"order_attempts" yaml:"order_attempts" validate:"gte=1,lte=10"`
	RetryDelay      time.Duration `json:"retry_delay" yaml:"retry_delay"`
	OrdersPerSecond float64       `json:"orders_per_second" yaml:"orders_per_second" validate:"gte=0"`
	// PendingTimeout is how long a signal may stay Pending before Load
	// resolves it.
	PendingTimeout time.Duration `json:"pending_timeout" yaml:"pending_timeout" validate:"gte=0"`
}

func DefaultLiveConfig() LiveConfig {
	return LiveConfig{Attempts: 3, RetryDelay: time.Second, OrdersPerSecond: 5, PendingTimeout: 24 * time.Hour}
}

// Live persists a Pending signal before each order, places it with bounded
// retries and books the fill, the signal, the portfolio and the bot budget
// in one store transaction. The book is re-read from the store after every
// fill.
type Live struct {
	repo    store.Repository
	gateway broker.Gateway
	bot     store.Bot
	cfg     LiveConfig

	limiter *rate.Limiter
	log     *zap.Logger
	alert   notify.Notifier
	metrics *metrics.Metrics
	sleep   func(ctx context.Context, d time.Duration) error
	now     func() time.Time
}

type Option func(*Live)

func WithClock(now func() time.Time) Option { return func(x *Live) { x.now = now } }

func WithLogger(l *zap.Logger) Option { return func(x *Live) { x.log = l } }

func WithNotifier(n notify.Notifier) Option { return func(x *Live) { x.alert = n } }

func WithMetrics(m *metrics.Metrics) Option { return func(x *Live) { x.metrics = m } }

// WithSleep replaces the wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(x *Live) { x.sleep = fn }
}

func NewLive(repo store.Repository, gw broker.Gateway, bot store.Bot, cfg LiveConfig, opts ...Option) *Live {
	if cfg.Attempts <= 0 {
		cfg.Attempts = 1
	}
	if cfg.PendingTimeout <= 0 {
		cfg.PendingTimeout = DefaultLiveConfig().PendingTimeout
	}
	limit := rate.Inf
	if cfg.OrdersPerSecond > 0 {
		limit = rate.Limit(cfg.OrdersPerSecond)
	}

	l := &Live{
		repo:    repo,
		gateway: gw,
		bot:     bot,
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
		log:     zap.NewNop(),
		alert:   notify.Nop{},
		metrics: metrics.NewDiscard(),
		sleep:   sleepCtx,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Load resolves stale Pending signals, then rebuilds the book from the bot
// budget and persisted portfolios.
func (l *Live) Load(ctx context.Context, symbols []string) (*portfolio.Book, error) {
	if err := l.reconcile(ctx); err != nil {
		return nil, err
	}

	bot, err := l.repo.GetBot(ctx, l.bot.ID)
	if err != nil {
		return nil, fmt.Errorf("live: load bot: %w", err)
	}
	book := portfolio.NewBook(bot.InitialBudget)
	book.Budget = bot.Budget()

	ps, err := l.repo.ListPortfolios(ctx, bot.ID)
	if err != nil {
		return nil, fmt.Errorf("live: load portfolios: %w", err)
	}
	for _, p := range ps {
		book.Set(p.Position())
	}

	for _, sym := range symbols {
		pos := book.Position(sym)
		if !pos.LastTradeDate.IsZero() {
			continue
		}
		last, err := l.repo.LastTrade(ctx, bot.ID, sym)
		switch {
		case err == nil:
			pos.LastTradeDate = last.TradeDate
			book.Set(pos)
		case errors.Is(err, store.ErrNotFound):
		default:
			return nil, fmt.Errorf("live: last trade %s: %w", sym, err)
		}
	}

	l.metrics.AvailableBudget.WithLabelValues(bot.Name).Set(bot.AvailableBudget)
	return book, nil
}

// reconcile settles signals left Pending longer than PendingTimeout, e.g.
// after a fill that could not be booked or a crash mid-order. A signal with a
// linked trade is Matched; any other is Rejected and alerted for review.
func (l *Live) reconcile(ctx context.Context) error {
	pending, err := l.repo.PendingSignals(ctx, l.bot.ID)
	if err != nil {
		return fmt.Errorf("live: pending signals: %w", err)
	}

	cutoff := l.now().Add(-l.cfg.PendingTimeout)
	for _, sig := range pending {
		if sig.CreatedAt.After(cutoff) {
			continue
		}

		status := market.Rejected
		if _, err := l.repo.SignalTrade(ctx, sig.ID); err == nil {
			status = market.Matched
		} else if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("live: signal %d trade: %w", sig.ID, err)
		}
		if err := l.repo.UpdateSignalStatus(ctx, sig.ID, status); err != nil {
			return fmt.Errorf("live: resolve signal %d: %w", sig.ID, err)
		}

		l.log.Warn("stale pending signal resolved",
			zap.Uint("signal_id", sig.ID),
			zap.String("symbol", sig.Symbol),
			zap.String("side", string(sig.Side)),
			zap.String("resolved", string(status)),
		)
		if status == market.Rejected {
			_ = l.alert.Notify(ctx, fmt.Sprintf("[%s] stale pending signal %d (%s %s %d @ %.2f) rejected; check the broker for an unbooked fill",
				l.bot.Name, sig.ID, sig.Side, sig.Symbol, sig.Volume, sig.Price))
		}
	}
	return nil
}

func (l *Live) Execute(ctx context.Context, book *portfolio.Book, o Order) (*market.Trade, error) {
	side := string(o.Side)
	log := l.log.With(
		zap.String("symbol", o.Symbol),
		zap.String("side", side),
		zap.Int64("volume", o.Volume),
		zap.Float64("price", o.Price),
		zap.String("position_type", string(o.PositionType)),
	)

	req := broker.NewOrder(l.bot.AccountNo, o.Symbol, o.Side, o.Price, o.Volume)
	req.PositionType = o.PositionType
	if err := req.Validate(); err != nil {
		return nil, err
	}

	sig := &store.Signal{
		BotID:     l.bot.ID,
		AccountNo: l.bot.AccountNo,
		Symbol:    o.Symbol,
		Side:      o.Side,
		Type:      o.PositionType,
		Price:     o.Price,
		Volume:    o.Volume,
		Status:    market.Pending,
	}

	if _, err := l.repo.FindPendingSignal(ctx, sig.Key()); err == nil {
		l.duplicate(log, o)
		return nil, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("live: pending signal lookup: %w", err)
	}
	if err := l.repo.AddSignal(ctx, sig); err != nil {
		if errors.Is(err, store.ErrDuplicateSignal) {
			l.duplicate(log, o)
			return nil, nil
		}
		return nil, fmt.Errorf("live: add signal: %w", err)
	}

	start := time.Now()
	tr, err := l.place(ctx, req, log)
	l.metrics.ObserveOrder(o.Symbol, side, start)

	// Bookkeeping below must finish even if the run is being stopped.
	persistCtx := context.WithoutCancel(ctx)

	if err != nil {
		l.metrics.OrdersFailed.WithLabelValues(o.Symbol, side).Inc()
		if uerr := l.repo.UpdateSignalStatus(persistCtx, sig.ID, market.Rejected); uerr != nil {
			log.Error("mark signal rejected", zap.Uint("signal_id", sig.ID), zap.Error(uerr))
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn("order rejected", zap.Error(err))
		_ = l.alert.Notify(persistCtx, fmt.Sprintf("[%s] order rejected: %s %s %d @ %.2f: %v",
			l.bot.Name, o.Side, o.Symbol, o.Volume, o.Price, err))
		return nil, nil
	}

	if tr.PositionType == "" {
		tr.PositionType = o.PositionType
	}
	// Trades carry the trading date they were decided on, as in a backtest.
	// The booking time is kept in the row's CreatedAt.
	if !o.Date.IsZero() {
		tr.Date = o.Date
	}
	if tr.Account == "" {
		tr.Account = l.bot.AccountNo
	}

	if err := l.book(persistCtx, sig, tr); err != nil {
		// The signal stays Pending so the same order is not sent again
		// before the fill is reconciled.
		_ = l.alert.Notify(persistCtx, fmt.Sprintf("[%s] fill %s not persisted: %v", l.bot.Name, tr.OrderNo, err))
		return nil, fmt.Errorf("live: persist fill %s: %w", tr.OrderNo, err)
	}

	if err := l.sync(persistCtx, book, tr); err != nil {
		return nil, err
	}

	l.metrics.OrdersPlaced.WithLabelValues(o.Symbol, side).Inc()
	l.metrics.TradeVolume.WithLabelValues(o.Symbol, side).Add(float64(tr.Volume))
	log.Info("fill",
		zap.String("order_no", tr.OrderNo),
		zap.Float64("fees", tr.Fees()),
		zap.Float64("available", book.Budget.Available),
	)
	return &tr, nil
}

func (l *Live) duplicate(log *zap.Logger, o Order) {
	l.metrics.DuplicateOrders.WithLabelValues(o.Symbol, string(o.Side)).Inc()
	log.Info("duplicate pending signal, order suppressed")
}

func (l *Live) place(ctx context.Context, req broker.PlaceOrder, log *zap.Logger) (market.Trade, error) {
	side := string(req.Side)
	var lastErr error

	for attempt := 1; attempt <= l.cfg.Attempts; attempt++ {
		if err := l.limiter.Wait(ctx); err != nil {
			return market.Trade{}, err
		}

		tr, err := l.gateway.PlaceOrder(ctx, req)
		if err == nil {
			if tr.OrderNo == "" {
				err = fmt.Errorf("gateway returned a fill without order number")
			} else {
				l.metrics.OrderAttempts.WithLabelValues(req.Symbol, side, "filled").Inc()
				return tr, nil
			}
		}

		lastErr = err
		l.metrics.OrderAttempts.WithLabelValues(req.Symbol, side, "failed").Inc()
		log.Warn("order attempt failed", zap.Int("attempt", attempt), zap.Int("of", l.cfg.Attempts), zap.Error(err))

		if attempt < l.cfg.Attempts {
			if err := l.sleep(ctx, l.cfg.RetryDelay); err != nil {
				return market.Trade{}, err
			}
		}
	}
	return market.Trade{}, fmt.Errorf("%w after %d attempts: %v", ErrOrderFailed, l.cfg.Attempts, lastErr)
}

// book records the fill and everything it changes in one transaction.
func (l *Live) book(ctx context.Context, sig *store.Signal, tr market.Trade) error {
	return l.repo.Atomic(ctx, func(tx store.Repository) error {
		row := store.TradeFromMarket(l.bot.ID, tr)
		if err := tx.AddTrade(ctx, &row); err != nil {
			return fmt.Errorf("add trade: %w", err)
		}
		if err := tx.AddTransaction(ctx, &store.Transaction{TradeID: row.ID, SignalID: sig.ID}); err != nil {
			return fmt.Errorf("add transaction: %w", err)
		}
		if err := tx.UpdateSignalStatus(ctx, sig.ID, market.Matched); err != nil {
			return fmt.Errorf("match signal: %w", err)
		}

		bot, err := tx.GetBot(ctx, l.bot.ID)
		if err != nil {
			return err
		}
		p, err := tx.GetPortfolio(ctx, l.bot.ID, tr.Symbol)
		if errors.Is(err, store.ErrNotFound) {
			p = store.Portfolio{BotID: l.bot.ID, AccountNo: l.bot.AccountNo, Symbol: tr.Symbol}
		} else if err != nil {
			return err
		}

		pos, budget := p.Position(), bot.Budget()
		fill := portfolio.FillFromTrade(tr)
		switch tr.Side {
		case market.Buy:
			pos, budget, err = portfolio.ApplyBuy(pos, budget, fill)
		case market.Sell:
			var realized float64
			pos, budget, realized, err = portfolio.ApplySell(pos, budget, fill)
			bot.TotalProfitLoss += realized
		default:
			err = fmt.Errorf("unknown side %q", tr.Side)
		}
		if err != nil {
			return err
		}

		p.Apply(pos)
		if err := tx.UpdatePortfolio(ctx, &p); err != nil {
			return fmt.Errorf("update portfolio: %w", err)
		}
		bot.AvailableBudget = budget.Available
		if err := tx.UpdateBot(ctx, bot); err != nil {
			return fmt.Errorf("update bot: %w", err)
		}
		return nil
	})
}

// sync replaces the in-memory budget and position with the stored ones.
func (l *Live) sync(ctx context.Context, book *portfolio.Book, tr market.Trade) error {
	bot, err := l.repo.GetBot(ctx, l.bot.ID)
	if err != nil {
		return fmt.Errorf("live: reload bot: %w", err)
	}
	p, err := l.repo.GetPortfolio(ctx, l.bot.ID, tr.Symbol)
	if err != nil {
		return fmt.Errorf("live: reload portfolio: %w", err)
	}

	book.Budget = bot.Budget()
	book.Set(p.Position())
	book.Record(tr)

	l.metrics.AvailableBudget.WithLabelValues(bot.Name).Set(bot.AvailableBudget)
	l.metrics.RealizedProfit.WithLabelValues(bot.Name).Set(bot.TotalProfitLoss)
	return nil
}
