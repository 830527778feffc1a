package executor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touchsung/trading-bot/broker"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/metrics"
	"github.com/touchsung/trading-bot/portfolio"
	"github.com/touchsung/trading-bot/store"
)

var day = time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)

func noSleep(context.Context, time.Duration) error { return nil }

type scripted struct {
	fails int
	calls int
	fees  portfolio.FeeSchedule
	hook  func()
}

func (s *scripted) PlaceOrder(_ context.Context, o broker.PlaceOrder) (market.Trade, error) {
	s.calls++
	if s.hook != nil {
		s.hook()
	}
	if s.calls <= s.fails {
		return market.Trade{}, broker.ErrOrderRejected
	}
	f := s.fees.For(o.Price, o.Volume)
	return market.Trade{
		OrderNo:    fmt.Sprintf("ord-%d", s.calls),
		Account:    o.Account,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Price:      o.Price,
		Volume:     o.Volume,
		Commission: f.Commission,
		VAT:        f.VAT,
		WHT:        f.WHT,
		Date:       day,
	}, nil
}

type alerts struct{ msgs []string }

func (a *alerts) Notify(_ context.Context, msg string) error {
	a.msgs = append(a.msgs, msg)
	return nil
}

func setup(t *testing.T) (*store.Memory, store.Bot) {
	t.Helper()
	repo := store.NewMemory()
	bot, err := repo.EnsureBot(context.Background(), store.BotSpec{
		Name: "bot-1", AccountNo: "ACC-1", Strategy: "sma-cross", Symbols: []string{"PTT"}, InitialBudget: 10000,
	})
	require.NoError(t, err)
	return repo, bot
}

func buy(vol int64) Order {
	return Order{Symbol: "PTT", Side: market.Buy, Price: 100, Volume: vol, PositionType: market.StrongBuy, Date: day}
}

func TestBacktest_Execute(t *testing.T) {
	t.Parallel()

	ex := NewBacktest(10000, "ACC", nil)
	book, err := ex.Load(context.Background(), []string{"PTT"})
	require.NoError(t, err)

	tr, err := ex.Execute(context.Background(), book, buy(50))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.NotEmpty(t, tr.OrderNo)
	assert.Zero(t, tr.Fees())
	assert.InDelta(t, 5000.0, book.Budget.Available, 1e-9)
	assert.Equal(t, int64(50), book.Position("PTT").Volume)

	_, err = ex.Execute(context.Background(), book, buy(51))
	assert.ErrorIs(t, err, portfolio.ErrInsufficientBudget)

	sell := Order{Symbol: "PTT", Side: market.Sell, Price: 110, Volume: 50, PositionType: market.StrongSell, Date: day.AddDate(0, 0, 1)}
	_, err = ex.Execute(context.Background(), book, sell)
	require.NoError(t, err)
	assert.InDelta(t, 10500.0, book.Budget.Available, 1e-9)
	assert.Len(t, book.Ledger(), 2)

	_, err = NewBacktest(0, "", nil).Load(context.Background(), nil)
	assert.Error(t, err)
}

func TestLive_RetryThenFill(t *testing.T) {
	t.Parallel()

	repo, bot := setup(t)
	gw := &scripted{fails: 2, fees: portfolio.FeeSchedule{CommissionRate: 0.001}}
	m := metrics.NewDiscard()
	live := NewLive(repo, gw, bot, LiveConfig{Attempts: 3, RetryDelay: time.Millisecond}, WithSleep(noSleep), WithMetrics(m))

	book, err := live.Load(context.Background(), []string{"PTT"})
	require.NoError(t, err)

	tr, err := live.Execute(context.Background(), book, buy(10))
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, 3, gw.calls)

	trades, err := repo.Trades(context.Background(), bot.ID)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, tr.OrderNo, trades[0].OrderNo)
	assert.Equal(t, market.StrongBuy, trades[0].PositionType)

	sigs := repo.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, market.Matched, sigs[0].Status)
	assert.Nil(t, sigs[0].PendingKey)

	txs := repo.Transactions()
	require.Len(t, txs, 1)
	assert.Equal(t, trades[0].ID, txs[0].TradeID)
	assert.Equal(t, sigs[0].ID, txs[0].SignalID)

	// 1000 notional + 1.00 commission
	stored, err := repo.GetBot(context.Background(), bot.ID)
	require.NoError(t, err)
	assert.InDelta(t, 8999.0, stored.AvailableBudget, 1e-9)
	assert.InDelta(t, 8999.0, book.Budget.Available, 1e-9)

	p, err := repo.GetPortfolio(context.Background(), bot.ID, "PTT")
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.HoldingVolume)
	assert.InDelta(t, 100.1, p.AverageCost, 1e-9)
	assert.Equal(t, p.Position(), book.Position("PTT"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrderAttempts.WithLabelValues("PTT", "buy", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersPlaced.WithLabelValues("PTT", "buy")))
}

func TestLive_ExhaustedAttemptsReject(t *testing.T) {
	t.Parallel()

	repo, bot := setup(t)
	gw := &scripted{fails: 100}
	al := &alerts{}
	live := NewLive(repo, gw, bot, LiveConfig{Attempts: 3}, WithSleep(noSleep), WithNotifier(al))

	book, err := live.Load(context.Background(), nil)
	require.NoError(t, err)

	tr, err := live.Execute(context.Background(), book, buy(10))
	assert.NoError(t, err)
	assert.Nil(t, tr)
	assert.Equal(t, 3, gw.calls)

	sigs := repo.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, market.Rejected, sigs[0].Status)

	trades, err := repo.Trades(context.Background(), bot.ID)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.InDelta(t, 10000.0, book.Budget.Available, 1e-9)
	require.Len(t, al.msgs, 1)
	assert.Contains(t, al.msgs[0], "order rejected")

	// The key is free again once the signal is terminal.
	gw.fails = 0
	tr, err = live.Execute(context.Background(), book, buy(10))
	require.NoError(t, err)
	assert.NotNil(t, tr)
}

func TestLive_DuplicatePendingSuppressed(t *testing.T) {
	t.Parallel()

	repo, bot := setup(t)
	gw := &scripted{}
	m := metrics.NewDiscard()
	live := NewLive(repo, gw, bot, DefaultLiveConfig(), WithSleep(noSleep), WithMetrics(m))
	book, err := live.Load(context.Background(), nil)
	require.NoError(t, err)

	// A second identical request arriving while the first is in flight.
	var inner *market.Trade
	var innerErr error
	gw.hook = func() {
		gw.hook = nil
		inner, innerErr = live.Execute(context.Background(), book, buy(10))
	}

	tr, err := live.Execute(context.Background(), book, buy(10))
	require.NoError(t, err)
	assert.NotNil(t, tr)

	assert.NoError(t, innerErr)
	assert.Nil(t, inner)
	assert.Equal(t, 1, gw.calls)
	assert.Len(t, repo.Signals(), 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DuplicateOrders.WithLabelValues("PTT", "buy")))
}

func TestLive_StoreLevelDuplicateGuard(t *testing.T) {
	t.Parallel()

	repo, bot := setup(t)
	ctx := context.Background()
	require.NoError(t, repo.AddSignal(ctx, &store.Signal{
		BotID: bot.ID, Symbol: "PTT", Side: market.Buy, Type: market.StrongBuy, Status: market.Pending,
	}))

	gw := &scripted{}
	live := NewLive(repo, gw, bot, DefaultLiveConfig(), WithSleep(noSleep))
	book, err := live.Load(ctx, nil)
	require.NoError(t, err)

	tr, err := live.Execute(ctx, book, buy(10))
	assert.NoError(t, err)
	assert.Nil(t, tr)
	assert.Zero(t, gw.calls)
	assert.Len(t, repo.Signals(), 1)
}

func TestLive_SellBooksProfit(t *testing.T) {
	t.Parallel()

	repo, bot := setup(t)
	gw := &scripted{}
	live := NewLive(repo, gw, bot, DefaultLiveConfig(), WithSleep(noSleep))
	ctx := context.Background()
	book, err := live.Load(ctx, nil)
	require.NoError(t, err)

	_, err = live.Execute(ctx, book, buy(10))
	require.NoError(t, err)

	sell := Order{Symbol: "PTT", Side: market.Sell, Price: 120, Volume: 4, PositionType: market.ModerateSell, Date: day}
	_, err = live.Execute(ctx, book, sell)
	require.NoError(t, err)

	stored, err := repo.GetBot(ctx, bot.ID)
	require.NoError(t, err)
	assert.InDelta(t, 80.0, stored.TotalProfitLoss, 1e-9)
	assert.InDelta(t, 10000.0-1000+480, stored.AvailableBudget, 1e-9)

	pos := book.Position("PTT")
	assert.Equal(t, int64(6), pos.Volume)
	assert.InDelta(t, 80.0, pos.RealizedProfit, 1e-9)
	assert.InDelta(t, 120.0, pos.UnrealizedProfit, 1e-9)
	assert.Len(t, book.Ledger(), 2)
}

type failingTx struct {
	store.Repository
}

func (f failingTx) UpdatePortfolio(context.Context, *store.Portfolio) error {
	return errors.New("disk full")
}

type failingRepo struct {
	*store.Memory
}

func (f failingRepo) Atomic(ctx context.Context, fn func(store.Repository) error) error {
	return f.Memory.Atomic(ctx, func(tx store.Repository) error {
		return fn(failingTx{tx})
	})
}

func TestLive_PersistFailureRollsBack(t *testing.T) {
	t.Parallel()

	mem, bot := setup(t)
	al := &alerts{}
	live := NewLive(failingRepo{mem}, &scripted{}, bot, DefaultLiveConfig(), WithSleep(noSleep), WithNotifier(al))
	ctx := context.Background()
	book, err := live.Load(ctx, nil)
	require.NoError(t, err)

	tr, err := live.Execute(ctx, book, buy(10))
	assert.Error(t, err)
	assert.Nil(t, tr)

	trades, err := mem.Trades(ctx, bot.ID)
	require.NoError(t, err)
	assert.Empty(t, trades)
	assert.Empty(t, mem.Transactions())

	sigs := mem.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, market.Pending, sigs[0].Status)

	stored, err := mem.GetBot(ctx, bot.ID)
	require.NoError(t, err)
	assert.InDelta(t, 10000.0, stored.AvailableBudget, 1e-9)
	assert.InDelta(t, 10000.0, book.Budget.Available, 1e-9)
	assert.Len(t, al.msgs, 1)
}

func TestLive_StalePendingSignalIsRejectedOnLoad(t *testing.T) {
	t.Parallel()

	mem, bot := setup(t)
	ctx := context.Background()
	al := &alerts{}
	gw := &scripted{}

	broken := NewLive(failingRepo{mem}, gw, bot, DefaultLiveConfig(), WithSleep(noSleep), WithNotifier(al))
	book, err := broken.Load(ctx, nil)
	require.NoError(t, err)
	_, err = broken.Execute(ctx, book, buy(10))
	require.Error(t, err)
	require.Equal(t, 1, gw.calls)

	// Same process, within the timeout: the order is still held back.
	sameDay := NewLive(mem, gw, bot, DefaultLiveConfig(), WithSleep(noSleep), WithNotifier(al))
	book, err = sameDay.Load(ctx, nil)
	require.NoError(t, err)
	tr, err := sameDay.Execute(ctx, book, buy(10))
	assert.NoError(t, err)
	assert.Nil(t, tr)
	assert.Equal(t, 1, gw.calls)

	// The store has recovered and a day has passed.
	tomorrow := func() time.Time { return time.Now().Add(25 * time.Hour) }
	next := NewLive(mem, gw, bot, DefaultLiveConfig(), WithSleep(noSleep), WithNotifier(al), WithClock(tomorrow))
	book, err = next.Load(ctx, nil)
	require.NoError(t, err)

	sigs := mem.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, market.Rejected, sigs[0].Status)
	assert.Nil(t, sigs[0].PendingKey)
	require.Len(t, al.msgs, 2)
	assert.Contains(t, al.msgs[1], "stale pending signal")

	o := buy(10)
	o.Date = day.AddDate(0, 0, 1)
	tr, err = next.Execute(ctx, book, o)
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, 2, gw.calls)
}

func TestLive_StalePendingSignalWithTradeIsMatched(t *testing.T) {
	t.Parallel()

	repo, bot := setup(t)
	ctx := context.Background()

	sig := &store.Signal{BotID: bot.ID, Symbol: "PTT", Side: market.Buy, Type: market.StrongBuy, Status: market.Pending}
	require.NoError(t, repo.AddSignal(ctx, sig))
	row := store.TradeFromMarket(bot.ID, market.Trade{OrderNo: "o-9", Symbol: "PTT", Side: market.Buy, Price: 100, Volume: 10, Date: day})
	require.NoError(t, repo.AddTrade(ctx, &row))
	require.NoError(t, repo.AddTransaction(ctx, &store.Transaction{TradeID: row.ID, SignalID: sig.ID}))

	al := &alerts{}
	later := func() time.Time { return time.Now().Add(time.Hour) }
	live := NewLive(repo, &scripted{}, bot, LiveConfig{Attempts: 1, PendingTimeout: time.Minute}, WithNotifier(al), WithClock(later))
	_, err := live.Load(ctx, nil)
	require.NoError(t, err)

	sigs := repo.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, market.Matched, sigs[0].Status)
	assert.Empty(t, al.msgs)

	pending, err := repo.PendingSignals(ctx, bot.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestLive_CancelDuringRetry(t *testing.T) {
	t.Parallel()

	repo, bot := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	sleep := func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}
	live := NewLive(repo, &scripted{fails: 5}, bot, LiveConfig{Attempts: 3}, WithSleep(sleep))
	book, err := live.Load(context.Background(), nil)
	require.NoError(t, err)

	_, err = live.Execute(ctx, book, buy(10))
	assert.ErrorIs(t, err, context.Canceled)

	sigs := repo.Signals()
	require.Len(t, sigs, 1)
	assert.Equal(t, market.Rejected, sigs[0].Status)
}

func TestLive_LoadFromStore(t *testing.T) {
	t.Parallel()

	repo, bot := setup(t)
	ctx := context.Background()

	p := store.Portfolio{BotID: bot.ID, AccountNo: bot.AccountNo}
	p.Apply(portfolio.Position{Symbol: "PTT", Volume: 20, AverageCost: 50, EntryPrice: 50, EntryVolume: 20})
	require.NoError(t, repo.UpdatePortfolio(ctx, &p))

	tr := store.TradeFromMarket(bot.ID, market.Trade{OrderNo: "o-1", Symbol: "AOT", Side: market.Sell, Price: 60, Volume: 1, Date: day})
	require.NoError(t, repo.AddTrade(ctx, &tr))

	bot.AvailableBudget = 9000
	require.NoError(t, repo.UpdateBot(ctx, bot))

	live := NewLive(repo, &scripted{}, bot, DefaultLiveConfig())
	book, err := live.Load(ctx, []string{"PTT", "AOT"})
	require.NoError(t, err)

	assert.InDelta(t, 10000.0, book.Budget.Initial, 1e-9)
	assert.InDelta(t, 9000.0, book.Budget.Available, 1e-9)
	assert.Equal(t, int64(20), book.Position("PTT").Volume)
	assert.True(t, book.Position("AOT").LastTradeDate.Equal(day))
	assert.False(t, book.Position("AOT").Held())
}

func TestLive_InvalidOrder(t *testing.T) {
	t.Parallel()

	repo, bot := setup(t)
	live := NewLive(repo, &scripted{}, bot, DefaultLiveConfig())
	book, err := live.Load(context.Background(), nil)
	require.NoError(t, err)

	_, err = live.Execute(context.Background(), book, buy(0))
	assert.Error(t, err)
	assert.Empty(t, repo.Signals())
}
