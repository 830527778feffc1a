package portfolio

import (
	"fmt"
	"sort"

	"github.com/touchsung/trading-bot/market"
)

// Book is the process-local state of one run: a budget, positions keyed by
// symbol and the ledger of fills in execution order.
type Book struct {
	Budget    Budget
	positions map[string]Position
	ledger    []market.Trade
}

func NewBook(initial float64) *Book {
	return &Book{
		Budget:    NewBudget(initial),
		positions: make(map[string]Position),
	}
}

// Position returns the holding for symbol, zero-valued when flat.
func (b *Book) Position(symbol string) Position {
	if p, ok := b.positions[symbol]; ok {
		return p
	}
	return Position{Symbol: symbol}
}

// Set replaces the holding for a symbol.
func (b *Book) Set(p Position) {
	b.positions[p.Symbol] = p
}

// Positions returns every tracked holding sorted by symbol.
func (b *Book) Positions() []Position {
	out := make([]Position, 0, len(b.positions))
	for _, p := range b.positions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Apply books an executed trade against the position and budget and
// appends it to the ledger. State is unchanged on error.
func (b *Book) Apply(t market.Trade) error {
	pos := b.Position(t.Symbol)
	fill := FillFromTrade(t)

	switch t.Side {
	case market.Buy:
		p, budget, err := ApplyBuy(pos, b.Budget, fill)
		if err != nil {
			return err
		}
		b.positions[t.Symbol], b.Budget = p, budget
	case market.Sell:
		p, budget, _, err := ApplySell(pos, b.Budget, fill)
		if err != nil {
			return err
		}
		b.positions[t.Symbol], b.Budget = p, budget
	default:
		return fmt.Errorf("portfolio: unknown side %q", t.Side)
	}

	b.ledger = append(b.ledger, t)
	return nil
}

// Record appends a trade to the ledger without touching positions. Live
// runs use it after reloading positions from the store.
func (b *Book) Record(t market.Trade) {
	b.ledger = append(b.ledger, t)
}

func (b *Book) Ledger() []market.Trade {
	out := make([]market.Trade, len(b.ledger))
	copy(out, b.ledger)
	return out
}

// Equity is available cash plus every holding valued at marks. Holdings
// without a mark are valued at average cost.
func (b *Book) Equity(marks map[string]float64) float64 {
	eq := b.Budget.Available
	for sym, p := range b.positions {
		price, ok := marks[sym]
		if !ok {
			price = p.AverageCost
		}
		eq += p.MarketValue(price)
	}
	return eq
}
