// Package journal records backtest runs and their fills for later review.
package journal

import (
	"context"
	"time"

	"github.com/touchsung/trading-bot/market"
)

// Run is the summary row of one backtest.
type Run struct {
	RunID    string
	Created  time.Time
	Strategy string
	Symbols  []string

	Start time.Time
	End   time.Time

	InitialBudget float64
	FinalCash     float64
	FinalEquity   float64

	Fills      int
	Trades     int
	Wins       int
	ProfitLoss float64
	WinRate    float64
	ROI        float64
}

type Journal interface {
	RecordRun(ctx context.Context, r Run) error
	RecordFill(ctx context.Context, runID string, t market.Trade) error
	Close() error
}

// Record writes r and every fill of its ledger.
func Record(ctx context.Context, j Journal, r Run, ledger []market.Trade) error {
	if err := j.RecordRun(ctx, r); err != nil {
		return err
	}
	for _, t := range ledger {
		if err := j.RecordFill(ctx, r.RunID, t); err != nil {
			return err
		}
	}
	return nil
}
