package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/touchsung/trading-bot/feed"
	"github.com/touchsung/trading-bot/indicators"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/performance"
	"github.com/touchsung/trading-bot/portfolio"
)

// Result is the outcome of a backtest run.
type Result struct {
	Start     time.Time
	End       time.Time
	Initial   float64
	Cash      float64
	Equity    float64
	Positions []portfolio.Position
	Trades    []market.Trade
	Summary   performance.Summary
}

type history struct {
	series *market.Series
	frame  *indicators.Frame
}

// Backtest replays stored history between from and to (inclusive, either
// may be nil) and returns the performance of the resulting ledger. The
// first error aborts the run.
func (e *Engine) Backtest(ctx context.Context, from, to *time.Time) (Result, error) {
	book, err := e.exec.Load(ctx, e.cfg.Symbols)
	if err != nil {
		return Result{}, err
	}

	hist := make(map[string]history, len(e.cfg.Symbols))
	seen := make(map[time.Time]struct{})
	for _, sym := range e.cfg.Symbols {
		s, err := e.source.PriceHistory(ctx, sym)
		if err != nil {
			return Result{}, fmt.Errorf("engine: history %s: %w", sym, err)
		}
		if s.Empty() {
			e.log.Warn("no price history", zap.String("symbol", sym))
			continue
		}
		// Anchored at the last bar so a replay of old data keeps its history.
		s = feed.Window(s, e.cfg.HistoryYears, s.Last())
		hist[sym] = history{series: s, frame: e.strategy.CalculateIndicators(s.Bars)}
		for _, b := range s.Bars {
			seen[market.Day(b.Date)] = struct{}{}
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		if from != nil && d.Before(market.Day(*from)) {
			continue
		}
		if to != nil && d.After(market.Day(*to)) {
			continue
		}
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	if len(dates) == 0 {
		return Result{}, fmt.Errorf("engine: no price data in the requested period")
	}

	e.log.Info("backtest start",
		zap.String("strategy", e.strategy.Name()),
		zap.Strings("symbols", e.cfg.Symbols),
		zap.Time("start", dates[0]),
		zap.Time("end", dates[len(dates)-1]),
	)

	marks := make(map[string]float64, len(hist))
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		for _, sym := range e.cfg.Symbols {
			h, ok := hist[sym]
			if !ok {
				continue
			}
			i := h.series.IndexOn(d)
			if i < 0 {
				continue
			}
			price := h.series.Bars[i].Close
			marks[sym] = price

			if err := e.step(ctx, book, bar{symbol: sym, date: d, price: price, frame: h.frame.Upto(i)}); err != nil {
				return Result{}, fmt.Errorf("engine: %s on %s: %w", sym, d.Format(market.DateLayout), err)
			}
		}
	}

	ledger := book.Ledger()
	res := Result{
		Start:     dates[0],
		End:       dates[len(dates)-1],
		Initial:   book.Budget.Initial,
		Cash:      book.Budget.Available,
		Equity:    book.Equity(marks),
		Positions: book.Positions(),
		Trades:    ledger,
		Summary:   performance.Evaluate(ledger, book.Budget.Initial),
	}

	e.log.Info("backtest done",
		zap.Int("fills", len(ledger)),
		zap.Int("trades", res.Summary.TotalTrades),
		zap.Float64("profit_loss", res.Summary.TotalProfitLoss),
		zap.Float64("roi", res.Summary.ROI),
	)
	return res, nil
}
