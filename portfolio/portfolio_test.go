package portfolio

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchsung/trading-bot/market"
)

var d1 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestApplyBuy_AverageCostIncludesFees(t *testing.T) {
	t.Parallel()

	pos, b, err := ApplyBuy(Position{Symbol: "PTT"}, NewBudget(10000), Fill{Side: market.Buy, Price: 100, Volume: 10, Fees: 10, Date: d1})
	require.NoError(t, err)
	assert.Equal(t, int64(10), pos.Volume)
	assert.InDelta(t, 101.0, pos.AverageCost, 1e-9)
	assert.InDelta(t, 100.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 8990.0, b.Available, 1e-9)

	pos, b, err = ApplyBuy(pos, b, Fill{Side: market.Buy, Price: 110, Volume: 10, Date: d1.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, int64(20), pos.Volume)
	// (101*10 + 110*10) / 20
	assert.InDelta(t, 105.5, pos.AverageCost, 1e-9)
	assert.InDelta(t, 110.0, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 7890.0, b.Available, 1e-9)
}

func TestApplyBuy_RejectsOverBudget(t *testing.T) {
	t.Parallel()

	pos := Position{Symbol: "PTT"}
	b := NewBudget(1000)
	gotPos, gotB, err := ApplyBuy(pos, b, Fill{Price: 100, Volume: 10, Fees: 1})
	assert.True(t, errors.Is(err, ErrInsufficientBudget))
	assert.Equal(t, pos, gotPos)
	assert.Equal(t, b, gotB)
}

func TestApplySell(t *testing.T) {
	t.Parallel()

	pos := Position{Symbol: "PTT", Volume: 10, AverageCost: 100, EntryPrice: 100, EntryVolume: 10}
	b := Budget{Initial: 1000, Available: 0}

	pos, b, realized, err := ApplySell(pos, b, Fill{Price: 110, Volume: 4, Fees: 2})
	require.NoError(t, err)
	assert.InDelta(t, 38.0, realized, 1e-9)
	assert.Equal(t, int64(6), pos.Volume)
	assert.InDelta(t, 100.0, pos.AverageCost, 1e-9)
	assert.InDelta(t, 60.0, pos.UnrealizedProfit, 1e-9)
	assert.InDelta(t, 438.0, b.Available, 1e-9)

	pos, b, realized, err = ApplySell(pos, b, Fill{Price: 90, Volume: 6})
	require.NoError(t, err)
	assert.InDelta(t, -60.0, realized, 1e-9)
	assert.Equal(t, int64(0), pos.Volume)
	assert.Zero(t, pos.AverageCost)
	assert.Zero(t, pos.EntryPrice)
	assert.Zero(t, pos.UnrealizedProfit)
	assert.InDelta(t, -22.0, pos.RealizedProfit, 1e-9)
	assert.InDelta(t, 978.0, b.Available, 1e-9)
}

func TestApplySell_RejectsMoreThanHeld(t *testing.T) {
	t.Parallel()

	_, _, _, err := ApplySell(Position{Volume: 3, AverageCost: 10}, Budget{}, Fill{Price: 10, Volume: 4})
	assert.True(t, errors.Is(err, ErrInsufficientPosition))
}

func TestFill_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fill Fill
	}{
		{"zero price", Fill{Price: 0, Volume: 1}},
		{"zero volume", Fill{Price: 1, Volume: 0}},
		{"negative fees", Fill{Price: 1, Volume: 1, Fees: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ApplyBuy(Position{}, NewBudget(100), tt.fill)
			assert.Error(t, err)
		})
	}
}

func TestAverageCostZeroIffFlat(t *testing.T) {
	t.Parallel()

	r := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		book := NewBook(100000)
		for step := 0; step < 40; step++ {
			price := 10 + r.Float64()*90
			pos := book.Position("X")
			var tr market.Trade
			if pos.Volume > 0 && r.Intn(2) == 0 {
				vol := 1 + r.Int63n(pos.Volume)
				tr = market.Trade{Symbol: "X", Side: market.Sell, Price: price, Volume: vol, Commission: r.Float64()}
			} else {
				tr = market.Trade{Symbol: "X", Side: market.Buy, Price: price, Volume: 1 + r.Int63n(50), Commission: r.Float64()}
			}
			// Over-budget buys are refused and leave state unchanged.
			_ = book.Apply(tr)

			p := book.Position("X")
			assert.GreaterOrEqual(t, p.Volume, int64(0))
			assert.GreaterOrEqual(t, p.AverageCost, 0.0)
			assert.Equal(t, p.Volume == 0, p.AverageCost == 0, "trial %d step %d: %+v", trial, step, p)
			assert.GreaterOrEqual(t, book.Budget.Available, 0.0)
		}
	}
}

func TestBook_ApplyAndLedger(t *testing.T) {
	t.Parallel()

	book := NewBook(1000)
	require.NoError(t, book.Apply(market.Trade{Symbol: "B", Side: market.Buy, Price: 10, Volume: 10}))
	require.NoError(t, book.Apply(market.Trade{Symbol: "A", Side: market.Buy, Price: 20, Volume: 5}))
	require.NoError(t, book.Apply(market.Trade{Symbol: "B", Side: market.Sell, Price: 12, Volume: 10}))

	err := book.Apply(market.Trade{Symbol: "A", Side: market.Sell, Price: 20, Volume: 6})
	assert.True(t, errors.Is(err, ErrInsufficientPosition))
	assert.Error(t, book.Apply(market.Trade{Symbol: "A", Side: "hold", Price: 20, Volume: 1}))

	assert.Len(t, book.Ledger(), 3)
	assert.InDelta(t, 920.0, book.Budget.Available, 1e-9)

	ps := book.Positions()
	require.Len(t, ps, 2)
	assert.Equal(t, "A", ps[0].Symbol)
	assert.Equal(t, "B", ps[1].Symbol)

	assert.InDelta(t, 920.0+5*25, book.Equity(map[string]float64{"A": 25}), 1e-9)
	assert.InDelta(t, 1020.0, book.Equity(nil), 1e-9)
}

func TestFeeSchedule(t *testing.T) {
	t.Parallel()

	s := FeeSchedule{CommissionRate: 0.001, VATRate: 0.07}
	f := s.For(33.25, 300)
	// notional 9975 -> commission 9.975 -> 9.98
	assert.InDelta(t, 9.98, f.Commission, 1e-9)
	assert.InDelta(t, 0.70, f.VAT, 1e-9)
	assert.Zero(t, f.WHT)
	assert.InDelta(t, 10.68, f.Total(), 1e-9)
	assert.InDelta(t, 9985.68, s.Cost(33.25, 300), 1e-9)

	assert.Zero(t, FeeSchedule{}.For(100, 100).Total())
}
