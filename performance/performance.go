// Package performance reduces a trade ledger to profitability metrics.
package performance

import (
	"sort"
	"time"

	"github.com/touchsung/trading-bot/market"
)

// Pair is a buy closed by the first sell that follows it.
type Pair struct {
	Symbol     string
	BuyDate    time.Time
	SellDate   time.Time
	BuyPrice   float64
	SellPrice  float64
	Volume     int64
	ProfitLoss float64
}

func (p Pair) Win() bool { return p.ProfitLoss > 0 }

type SymbolSummary struct {
	Symbol     string
	Trades     int
	Wins       int
	ProfitLoss float64
}

type Summary struct {
	TotalProfitLoss float64
	TotalTrades     int
	WinningTrades   int
	// WinRate and ROI are percentages.
	WinRate  float64
	ROI      float64
	Pairs    []Pair
	BySymbol []SymbolSummary
}

// Pairs matches, per symbol and in ledger order, every open buy with the
// next sell. Buys still open at the end of the ledger are not paired and
// sells with no open buy are ignored.
func Pairs(ledger []market.Trade) []Pair {
	open := make(map[string][]market.Trade)
	var out []Pair

	for _, t := range ledger {
		switch t.Side {
		case market.Buy:
			open[t.Symbol] = append(open[t.Symbol], t)
		case market.Sell:
			for _, b := range open[t.Symbol] {
				out = append(out, Pair{
					Symbol:     t.Symbol,
					BuyDate:    b.Date,
					SellDate:   t.Date,
					BuyPrice:   b.Price,
					SellPrice:  t.Price,
					Volume:     b.Volume,
					ProfitLoss: (t.Price - b.Price) * float64(b.Volume),
				})
			}
			delete(open, t.Symbol)
		}
	}
	return out
}

// Evaluate summarizes ledger against the run's initial budget.
func Evaluate(ledger []market.Trade, initialBudget float64) Summary {
	var s Summary
	s.Pairs = Pairs(ledger)

	bySym := make(map[string]*SymbolSummary)
	for _, p := range s.Pairs {
		s.TotalProfitLoss += p.ProfitLoss
		s.TotalTrades++

		ss, ok := bySym[p.Symbol]
		if !ok {
			ss = &SymbolSummary{Symbol: p.Symbol}
			bySym[p.Symbol] = ss
		}
		ss.Trades++
		ss.ProfitLoss += p.ProfitLoss

		if p.Win() {
			s.WinningTrades++
			ss.Wins++
		}
	}

	if s.TotalTrades > 0 {
		s.WinRate = 100 * float64(s.WinningTrades) / float64(s.TotalTrades)
	}
	if initialBudget > 0 {
		s.ROI = 100 * s.TotalProfitLoss / initialBudget
	}

	for _, ss := range bySym {
		s.BySymbol = append(s.BySymbol, *ss)
	}
	sort.Slice(s.BySymbol, func(i, j int) bool { return s.BySymbol[i].Symbol < s.BySymbol[j].Symbol })
	return s
}
