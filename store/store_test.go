package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

var spec = BotSpec{
	Name:          "bot-1",
	AccountNo:     "ACC-1",
	Broker:        "sim",
	Strategy:      "sma-cross",
	Symbols:       []string{"PTT", "AOT"},
	InitialBudget: 100000,
}

func repos(t *testing.T) map[string]Repository {
	t.Helper()

	g, err := OpenGorm(Config{Type: "sqlite", DSN: filepath.Join(t.TempDir(), "trader.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	return map[string]Repository{
		"memory": NewMemory(),
		"sqlite": g,
	}
}

func forEachRepo(t *testing.T, fn func(t *testing.T, r Repository)) {
	for name, r := range repos(t) {
		t.Run(name, func(t *testing.T) { fn(t, r) })
	}
}

func TestEnsureBot_Idempotent(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()

		b1, err := r.EnsureBot(ctx, spec)
		require.NoError(t, err)
		assert.NotZero(t, b1.ID)
		assert.Equal(t, []string{"PTT", "AOT"}, b1.Symbols())
		assert.InDelta(t, 100000.0, b1.AvailableBudget, 1e-9)

		b1.AvailableBudget = 5000
		b1.TotalProfitLoss = 12.5
		require.NoError(t, r.UpdateBot(ctx, b1))

		b2, err := r.EnsureBot(ctx, spec)
		require.NoError(t, err)
		assert.Equal(t, b1.ID, b2.ID)
		assert.InDelta(t, 5000.0, b2.AvailableBudget, 1e-9)
		assert.InDelta(t, 12.5, b2.TotalProfitLoss, 1e-9)

		_, err = r.GetBot(ctx, 9999)
		assert.True(t, errors.Is(err, ErrNotFound))
		assert.True(t, errors.Is(r.UpdateBot(ctx, Bot{ID: 9999}), ErrNotFound))
	})
}

func TestPortfolio_Upsert(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		bot, err := r.EnsureBot(ctx, spec)
		require.NoError(t, err)

		_, err = r.GetPortfolio(ctx, bot.ID, "PTT")
		assert.True(t, errors.Is(err, ErrNotFound))

		day := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
		p := Portfolio{BotID: bot.ID, AccountNo: bot.AccountNo}
		p.Apply(portfolio.Position{Symbol: "PTT", Volume: 100, AverageCost: 33.1, EntryPrice: 33, EntryVolume: 100, LastTradeDate: day})
		require.NoError(t, r.UpdatePortfolio(ctx, &p))
		id := p.ID

		p.Apply(portfolio.Position{Symbol: "PTT", RealizedProfit: 50, LastTradeDate: day.AddDate(0, 0, 1)})
		require.NoError(t, r.UpdatePortfolio(ctx, &p))
		assert.Equal(t, id, p.ID)

		got, err := r.GetPortfolio(ctx, bot.ID, "PTT")
		require.NoError(t, err)
		pos := got.Position()
		assert.Equal(t, int64(0), pos.Volume)
		assert.Zero(t, pos.AverageCost)
		assert.InDelta(t, 50.0, pos.RealizedProfit, 1e-9)
		assert.True(t, pos.LastTradeDate.Equal(day.AddDate(0, 0, 1)))

		all, err := r.ListPortfolios(ctx, bot.ID)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestSignal_PendingUniqueness(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		bot, err := r.EnsureBot(ctx, spec)
		require.NoError(t, err)

		mk := func() *Signal {
			return &Signal{BotID: bot.ID, Symbol: "PTT", Side: market.Buy, Type: market.StrongBuy, Price: 33, Volume: 100, Status: market.Pending}
		}

		first := mk()
		require.NoError(t, r.AddSignal(ctx, first))
		assert.NotZero(t, first.ID)

		err = r.AddSignal(ctx, mk())
		assert.True(t, errors.Is(err, ErrDuplicateSignal))

		found, err := r.FindPendingSignal(ctx, first.Key())
		require.NoError(t, err)
		assert.Equal(t, first.ID, found.ID)

		// A different position type is a different key.
		other := mk()
		other.Type = market.ModerateBuy
		require.NoError(t, r.AddSignal(ctx, other))

		// Resolving the first frees the key.
		require.NoError(t, r.UpdateSignalStatus(ctx, first.ID, market.Matched))
		_, err = r.FindPendingSignal(ctx, first.Key())
		assert.True(t, errors.Is(err, ErrNotFound))
		require.NoError(t, r.AddSignal(ctx, mk()))

		// Terminal signals never collide.
		done := mk()
		done.Status = market.Rejected
		require.NoError(t, r.AddSignal(ctx, done))
		done2 := mk()
		done2.Status = market.Rejected
		require.NoError(t, r.AddSignal(ctx, done2))

		assert.True(t, errors.Is(r.UpdateSignalStatus(ctx, 9999, market.Matched), ErrNotFound))
	})
}

func TestSignal_PendingListAndTradeLink(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		bot, err := r.EnsureBot(ctx, spec)
		require.NoError(t, err)

		open := &Signal{BotID: bot.ID, Symbol: "PTT", Side: market.Buy, Type: market.StrongBuy, Price: 33, Volume: 100, Status: market.Pending}
		require.NoError(t, r.AddSignal(ctx, open))
		filled := &Signal{BotID: bot.ID, Symbol: "AOT", Side: market.Sell, Type: market.StrongSell, Price: 60, Volume: 10, Status: market.Pending}
		require.NoError(t, r.AddSignal(ctx, filled))
		require.NoError(t, r.AddSignal(ctx, &Signal{BotID: bot.ID, Symbol: "PTT", Side: market.Sell, Type: market.StopLoss, Status: market.Rejected}))

		pending, err := r.PendingSignals(ctx, bot.ID)
		require.NoError(t, err)
		require.Len(t, pending, 2)
		assert.Equal(t, open.ID, pending[0].ID)
		assert.Equal(t, filled.ID, pending[1].ID)

		tr := TradeFromMarket(bot.ID, market.Trade{OrderNo: "o-1", Symbol: "AOT", Side: market.Sell, Price: 60, Volume: 10, Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)})
		require.NoError(t, r.AddTrade(ctx, &tr))
		require.NoError(t, r.AddTransaction(ctx, &Transaction{TradeID: tr.ID, SignalID: filled.ID}))

		got, err := r.SignalTrade(ctx, filled.ID)
		require.NoError(t, err)
		assert.Equal(t, "o-1", got.OrderNo)

		_, err = r.SignalTrade(ctx, open.ID)
		assert.True(t, errors.Is(err, ErrNotFound))

		require.NoError(t, r.UpdateSignalStatus(ctx, filled.ID, market.Matched))
		pending, err = r.PendingSignals(ctx, bot.ID)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.Equal(t, open.ID, pending[0].ID)

		none, err := r.PendingSignals(ctx, 9999)
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestTrades_LastAndOrder(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		bot, err := r.EnsureBot(ctx, spec)
		require.NoError(t, err)

		d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		for i, no := range []string{"o-2", "o-1", "o-3"} {
			tr := TradeFromMarket(bot.ID, market.Trade{OrderNo: no, Symbol: "PTT", Side: market.Buy, Price: 10 + float64(i), Volume: 1, Date: d.AddDate(0, 0, 2-i)})
			require.NoError(t, r.AddTrade(ctx, &tr))
		}
		dup := TradeFromMarket(bot.ID, market.Trade{OrderNo: "o-1", Symbol: "PTT", Side: market.Buy, Price: 1, Volume: 1, Date: d})
		assert.Error(t, r.AddTrade(ctx, &dup))

		last, err := r.LastTrade(ctx, bot.ID, "PTT")
		require.NoError(t, err)
		assert.Equal(t, "o-2", last.OrderNo)

		_, err = r.LastTrade(ctx, bot.ID, "AOT")
		assert.True(t, errors.Is(err, ErrNotFound))

		ts, err := r.Trades(ctx, bot.ID)
		require.NoError(t, err)
		require.Len(t, ts, 3)
		assert.Equal(t, "o-3", ts[0].OrderNo)
		assert.Equal(t, "o-2", ts[2].OrderNo)
		assert.Equal(t, market.Buy, ts[0].Market().Side)
	})
}

func TestAtomic_RollsBackOnError(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		bot, err := r.EnsureBot(ctx, spec)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = r.Atomic(ctx, func(tx Repository) error {
			tr := TradeFromMarket(bot.ID, market.Trade{OrderNo: "x-1", Symbol: "PTT", Side: market.Buy, Price: 10, Volume: 5, Date: time.Now()})
			if err := tx.AddTrade(ctx, &tr); err != nil {
				return err
			}
			b, err := tx.GetBot(ctx, bot.ID)
			if err != nil {
				return err
			}
			b.AvailableBudget = 1
			if err := tx.UpdateBot(ctx, b); err != nil {
				return err
			}
			return boom
		})
		assert.ErrorIs(t, err, boom)

		ts, err := r.Trades(ctx, bot.ID)
		require.NoError(t, err)
		assert.Empty(t, ts)
		b, err := r.GetBot(ctx, bot.ID)
		require.NoError(t, err)
		assert.InDelta(t, 100000.0, b.AvailableBudget, 1e-9)

		err = r.Atomic(ctx, func(tx Repository) error {
			tr := TradeFromMarket(bot.ID, market.Trade{OrderNo: "x-2", Symbol: "PTT", Side: market.Buy, Price: 10, Volume: 5, Date: time.Now()})
			if err := tx.AddTrade(ctx, &tr); err != nil {
				return err
			}
			return tx.AddTransaction(ctx, &Transaction{TradeID: tr.ID, SignalID: 1})
		})
		require.NoError(t, err)
		ts, err = r.Trades(ctx, bot.ID)
		require.NoError(t, err)
		assert.Len(t, ts, 1)
	})
}

func TestBars_SaveAndHistory(t *testing.T) {
	forEachRepo(t, func(t *testing.T, r Repository) {
		ctx := context.Background()
		d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

		require.NoError(t, r.SaveBars(ctx, []market.Bar{
			{Symbol: "PTT", Date: d.AddDate(0, 0, 1), Open: 1, High: 2, Low: 1, Close: 2},
			{Symbol: "PTT", Date: d, Open: 1, High: 1, Low: 1, Close: 1},
			{Symbol: "AOT", Date: d, Open: 5, High: 5, Low: 5, Close: 5},
		}))
		require.NoError(t, r.SaveBars(ctx, []market.Bar{
			{Symbol: "PTT", Date: d.AddDate(0, 0, 1), Open: 1, High: 3, Low: 1, Close: 3},
		}))

		bars, err := r.PriceHistory(ctx, "PTT")
		require.NoError(t, err)
		require.Len(t, bars, 2)
		assert.True(t, bars[0].Date.Equal(d))
		assert.InDelta(t, 3.0, bars[1].Close, 1e-9)

		none, err := r.PriceHistory(ctx, "BBL")
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()

	r, err := Open(Config{Type: "memory"})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, r)

	_, err = Open(Config{Type: "oracle", DSN: "x"})
	assert.Error(t, err)
}
