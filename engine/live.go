package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/touchsung/trading-bot/feed"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

// Live polls until ctx is cancelled. Each poll is one Tick; a failing pass
// is logged and alerted but never stops the loop.
func (e *Engine) Live(ctx context.Context) error {
	e.log.Info("live start",
		zap.String("bot", e.cfg.Name),
		zap.Strings("symbols", e.cfg.Symbols),
		zap.Duration("poll_interval", e.cfg.PollInterval),
	)
	e.notify(ctx, fmt.Sprintf("[%s] live trading started for %d symbols", e.cfg.Name, len(e.cfg.Symbols)))
	defer func() {
		e.notify(context.WithoutCancel(ctx), fmt.Sprintf("[%s] live trading stopped", e.cfg.Name))
		e.log.Info("live stop", zap.String("bot", e.cfg.Name))
	}()

	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := e.Tick(ctx, e.now()); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.log.Error("live pass failed", zap.Error(err))
			e.notify(ctx, fmt.Sprintf("[%s] live pass failed: %v", e.cfg.Name, err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one live pass at now. Outside trading days and trade phases it
// does nothing. Each symbol is evaluated at most once per target date;
// per-symbol failures are logged and alerted and the symbol is retried on
// the next pass.
func (e *Engine) Tick(ctx context.Context, now time.Time) error {
	open, phase := e.cal.IsOpen(now)
	if !open || !e.tradePhase(phase) {
		e.metrics.Passes.WithLabelValues("closed").Inc()
		e.log.Debug("market closed", zap.String("phase", string(phase)))
		return nil
	}

	key := "bot:" + e.cfg.Name
	ok, err := e.lock.TryLock(ctx, key, e.cfg.LockTTL)
	if err != nil {
		e.metrics.Passes.WithLabelValues("error").Inc()
		return fmt.Errorf("engine: acquire lock: %w", err)
	}
	if !ok {
		e.metrics.Passes.WithLabelValues("locked").Inc()
		e.log.Info("another instance holds the bot lock", zap.String("key", key))
		return nil
	}
	defer func() {
		if err := e.lock.Unlock(context.WithoutCancel(ctx), key); err != nil {
			e.log.Warn("release lock", zap.String("key", key), zap.Error(err))
		}
	}()

	book, err := e.exec.Load(ctx, e.cfg.Symbols)
	if err != nil {
		e.metrics.Passes.WithLabelValues("error").Inc()
		return err
	}

	target := e.cal.TargetDate(now)
	failed := 0
	for _, sym := range e.cfg.Symbols {
		if err := ctx.Err(); err != nil {
			return err
		}
		if d, ok := e.done[sym]; ok && d.Equal(target) {
			continue
		}

		done, err := e.evaluate(ctx, book, sym, target, now)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			e.metrics.SymbolErrors.WithLabelValues(sym).Inc()
			e.log.Error("symbol failed",
				zap.String("symbol", sym),
				zap.String("date", target.Format(market.DateLayout)),
				zap.Error(err),
			)
			e.notify(ctx, fmt.Sprintf("[%s] %s on %s failed: %v", e.cfg.Name, sym, target.Format(market.DateLayout), err))
			continue
		}
		if done {
			e.done[sym] = target
		}
	}

	if failed > 0 {
		e.metrics.Passes.WithLabelValues("partial").Inc()
	} else {
		e.metrics.Passes.WithLabelValues("ok").Inc()
	}
	return nil
}

// evaluate runs the state machine for sym on target. It reports false when
// the target bar is not available yet.
func (e *Engine) evaluate(ctx context.Context, book *portfolio.Book, sym string, target, now time.Time) (bool, error) {
	s, err := e.source.PriceHistory(ctx, sym)
	if err != nil {
		return false, fmt.Errorf("history: %w", err)
	}
	s = feed.Window(s, e.cfg.HistoryYears, now)

	i := s.IndexOn(target)
	if i < 0 {
		e.log.Debug("no bar for target date", zap.String("symbol", sym), zap.String("date", target.Format(market.DateLayout)))
		return false, nil
	}

	frame := e.strategy.CalculateIndicators(s.Bars[:i+1])
	err = e.step(ctx, book, bar{symbol: sym, date: target, price: s.Bars[i].Close, frame: frame})
	return err == nil, err
}

func (e *Engine) tradePhase(p market.Phase) bool {
	if len(e.cfg.TradePhases) == 0 {
		return p == market.MarketOpen
	}
	return slices.Contains(e.cfg.TradePhases, p)
}

func (e *Engine) notify(ctx context.Context, msg string) {
	if err := e.alert.Notify(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
		e.log.Warn("alert failed", zap.Error(err))
	}
}
