package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/touchsung/trading-bot/market"
)

// Memory is an in-process Repository. Atomic works on a copy of the state
// and publishes it only when the callback succeeds.
type Memory struct {
	mu    sync.Mutex
	state *memState
	now   func() time.Time
}

type memState struct {
	seq          uint
	accounts     map[string]Account
	strategies   map[string]StrategyRecord
	bots         map[uint]Bot
	portfolios   map[string]Portfolio
	signals      map[uint]Signal
	pending      map[string]uint
	trades       []Trade
	orderNos     map[string]bool
	transactions []Transaction
	bars         map[string][]market.Bar
}

func newMemState() *memState {
	return &memState{
		accounts:   make(map[string]Account),
		strategies: make(map[string]StrategyRecord),
		bots:       make(map[uint]Bot),
		portfolios: make(map[string]Portfolio),
		signals:    make(map[uint]Signal),
		pending:    make(map[string]uint),
		orderNos:   make(map[string]bool),
		bars:       make(map[string][]market.Bar),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:          s.seq,
		accounts:     make(map[string]Account, len(s.accounts)),
		strategies:   make(map[string]StrategyRecord, len(s.strategies)),
		bots:         make(map[uint]Bot, len(s.bots)),
		portfolios:   make(map[string]Portfolio, len(s.portfolios)),
		signals:      make(map[uint]Signal, len(s.signals)),
		pending:      make(map[string]uint, len(s.pending)),
		trades:       append([]Trade(nil), s.trades...),
		orderNos:     make(map[string]bool, len(s.orderNos)),
		transactions: append([]Transaction(nil), s.transactions...),
		bars:         make(map[string][]market.Bar, len(s.bars)),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.strategies {
		c.strategies[k] = v
	}
	for k, v := range s.bots {
		c.bots[k] = v
	}
	for k, v := range s.portfolios {
		c.portfolios[k] = v
	}
	for k, v := range s.signals {
		c.signals[k] = v
	}
	for k, v := range s.pending {
		c.pending[k] = v
	}
	for k, v := range s.orderNos {
		c.orderNos[k] = v
	}
	for k, v := range s.bars {
		c.bars[k] = append([]market.Bar(nil), v...)
	}
	return c
}

func (s *memState) nextID() uint {
	s.seq++
	return s.seq
}

func NewMemory() *Memory {
	return &Memory{state: newMemState(), now: time.Now}
}

// memTx operates on one state without locking; Memory serializes access.
type memTx struct {
	st  *memState
	now func() time.Time
}

func (m *Memory) with(fn func(tx *memTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{st: m.state, now: m.now})
}

func (m *Memory) Atomic(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := m.state.clone()
	if err := fn(&memTx{st: work, now: m.now}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *Memory) Close() error { return nil }

func (m *Memory) EnsureBot(ctx context.Context, spec BotSpec) (b Bot, err error) {
	err = m.with(func(tx *memTx) error {
		b, err = tx.EnsureBot(ctx, spec)
		return err
	})
	return b, err
}

func (m *Memory) GetBot(ctx context.Context, botID uint) (b Bot, err error) {
	err = m.with(func(tx *memTx) error {
		b, err = tx.GetBot(ctx, botID)
		return err
	})
	return b, err
}

func (m *Memory) UpdateBot(ctx context.Context, b Bot) error {
	return m.with(func(tx *memTx) error { return tx.UpdateBot(ctx, b) })
}

func (m *Memory) GetPortfolio(ctx context.Context, botID uint, symbol string) (p Portfolio, err error) {
	err = m.with(func(tx *memTx) error {
		p, err = tx.GetPortfolio(ctx, botID, symbol)
		return err
	})
	return p, err
}

func (m *Memory) ListPortfolios(ctx context.Context, botID uint) (ps []Portfolio, err error) {
	err = m.with(func(tx *memTx) error {
		ps, err = tx.ListPortfolios(ctx, botID)
		return err
	})
	return ps, err
}

func (m *Memory) UpdatePortfolio(ctx context.Context, p *Portfolio) error {
	return m.with(func(tx *memTx) error { return tx.UpdatePortfolio(ctx, p) })
}

func (m *Memory) AddSignal(ctx context.Context, s *Signal) error {
	return m.with(func(tx *memTx) error { return tx.AddSignal(ctx, s) })
}

func (m *Memory) FindPendingSignal(ctx context.Context, key SignalKey) (s Signal, err error) {
	err = m.with(func(tx *memTx) error {
		s, err = tx.FindPendingSignal(ctx, key)
		return err
	})
	return s, err
}

func (m *Memory) UpdateSignalStatus(ctx context.Context, signalID uint, status market.OrderStatus) error {
	return m.with(func(tx *memTx) error { return tx.UpdateSignalStatus(ctx, signalID, status) })
}

func (m *Memory) PendingSignals(ctx context.Context, botID uint) (ss []Signal, err error) {
	err = m.with(func(tx *memTx) error {
		ss, err = tx.PendingSignals(ctx, botID)
		return err
	})
	return ss, err
}

func (m *Memory) SignalTrade(ctx context.Context, signalID uint) (t Trade, err error) {
	err = m.with(func(tx *memTx) error {
		t, err = tx.SignalTrade(ctx, signalID)
		return err
	})
	return t, err
}

func (m *Memory) AddTrade(ctx context.Context, t *Trade) error {
	return m.with(func(tx *memTx) error { return tx.AddTrade(ctx, t) })
}

func (m *Memory) AddTransaction(ctx context.Context, t *Transaction) error {
	return m.with(func(tx *memTx) error { return tx.AddTransaction(ctx, t) })
}

func (m *Memory) LastTrade(ctx context.Context, botID uint, symbol string) (t Trade, err error) {
	err = m.with(func(tx *memTx) error {
		t, err = tx.LastTrade(ctx, botID, symbol)
		return err
	})
	return t, err
}

func (m *Memory) Trades(ctx context.Context, botID uint) (ts []Trade, err error) {
	err = m.with(func(tx *memTx) error {
		ts, err = tx.Trades(ctx, botID)
		return err
	})
	return ts, err
}

func (m *Memory) PriceHistory(ctx context.Context, symbol string) (bars []market.Bar, err error) {
	err = m.with(func(tx *memTx) error {
		bars, err = tx.PriceHistory(ctx, symbol)
		return err
	})
	return bars, err
}

func (m *Memory) SaveBars(ctx context.Context, bars []market.Bar) error {
	return m.with(func(tx *memTx) error { return tx.SaveBars(ctx, bars) })
}

// Signals returns every persisted signal ordered by id.
func (m *Memory) Signals() []Signal {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Signal, 0, len(m.state.signals))
	for _, s := range m.state.signals {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Transactions returns every persisted signal/trade link.
func (m *Memory) Transactions() []Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transaction(nil), m.state.transactions...)
}

func (tx *memTx) EnsureBot(_ context.Context, spec BotSpec) (Bot, error) {
	for _, b := range tx.st.bots {
		if b.Name == spec.Name {
			return b, nil
		}
	}

	now := tx.now()
	if _, ok := tx.st.accounts[spec.AccountNo]; !ok {
		tx.st.accounts[spec.AccountNo] = Account{ID: tx.st.nextID(), No: spec.AccountNo, Broker: spec.Broker, CreatedAt: now, UpdatedAt: now}
	}
	if _, ok := tx.st.strategies[spec.Strategy]; !ok {
		tx.st.strategies[spec.Strategy] = StrategyRecord{ID: tx.st.nextID(), Name: spec.Strategy, CreatedAt: now}
	}

	b := Bot{
		ID:              tx.st.nextID(),
		Name:            spec.Name,
		AccountNo:       spec.AccountNo,
		StrategyName:    spec.Strategy,
		TradeSymbols:    strings.Join(spec.Symbols, ","),
		InitialBudget:   spec.InitialBudget,
		AvailableBudget: spec.InitialBudget,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	tx.st.bots[b.ID] = b
	return b, nil
}

func (tx *memTx) GetBot(_ context.Context, botID uint) (Bot, error) {
	b, ok := tx.st.bots[botID]
	if !ok {
		return Bot{}, fmt.Errorf("bot %d: %w", botID, ErrNotFound)
	}
	return b, nil
}

func (tx *memTx) UpdateBot(_ context.Context, b Bot) error {
	if _, ok := tx.st.bots[b.ID]; !ok {
		return fmt.Errorf("bot %d: %w", b.ID, ErrNotFound)
	}
	b.UpdatedAt = tx.now()
	tx.st.bots[b.ID] = b
	return nil
}

func portfolioKey(botID uint, symbol string) string {
	return fmt.Sprintf("%d|%s", botID, symbol)
}

func (tx *memTx) GetPortfolio(_ context.Context, botID uint, symbol string) (Portfolio, error) {
	p, ok := tx.st.portfolios[portfolioKey(botID, symbol)]
	if !ok {
		return Portfolio{}, fmt.Errorf("portfolio %d/%s: %w", botID, symbol, ErrNotFound)
	}
	return p, nil
}

func (tx *memTx) ListPortfolios(_ context.Context, botID uint) ([]Portfolio, error) {
	var out []Portfolio
	for _, p := range tx.st.portfolios {
		if p.BotID == botID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (tx *memTx) UpdatePortfolio(_ context.Context, p *Portfolio) error {
	k := portfolioKey(p.BotID, p.Symbol)
	if cur, ok := tx.st.portfolios[k]; ok {
		p.ID = cur.ID
	} else {
		p.ID = tx.st.nextID()
	}
	p.UpdatedAt = tx.now()
	tx.st.portfolios[k] = *p
	return nil
}

func (tx *memTx) AddSignal(_ context.Context, s *Signal) error {
	key := pendingKey(s)
	if key != nil {
		if _, taken := tx.st.pending[*key]; taken {
			return fmt.Errorf("%s: %w", *key, ErrDuplicateSignal)
		}
	}

	now := tx.now()
	s.ID = tx.st.nextID()
	s.PendingKey = key
	s.CreatedAt, s.UpdatedAt = now, now
	tx.st.signals[s.ID] = *s
	if key != nil {
		tx.st.pending[*key] = s.ID
	}
	return nil
}

func (tx *memTx) FindPendingSignal(_ context.Context, key SignalKey) (Signal, error) {
	id, ok := tx.st.pending[key.String()]
	if !ok {
		return Signal{}, fmt.Errorf("pending signal %s: %w", key, ErrNotFound)
	}
	return tx.st.signals[id], nil
}

func (tx *memTx) UpdateSignalStatus(_ context.Context, signalID uint, status market.OrderStatus) error {
	s, ok := tx.st.signals[signalID]
	if !ok {
		return fmt.Errorf("signal %d: %w", signalID, ErrNotFound)
	}
	if s.PendingKey != nil {
		delete(tx.st.pending, *s.PendingKey)
	}
	s.Status = status
	s.PendingKey = pendingKey(&s)
	if s.PendingKey != nil {
		tx.st.pending[*s.PendingKey] = s.ID
	}
	s.UpdatedAt = tx.now()
	tx.st.signals[signalID] = s
	return nil
}

func (tx *memTx) PendingSignals(_ context.Context, botID uint) ([]Signal, error) {
	var out []Signal
	for _, id := range tx.st.pending {
		if s := tx.st.signals[id]; s.BotID == botID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (tx *memTx) SignalTrade(_ context.Context, signalID uint) (Trade, error) {
	for _, link := range tx.st.transactions {
		if link.SignalID != signalID {
			continue
		}
		for _, t := range tx.st.trades {
			if t.ID == link.TradeID {
				return t, nil
			}
		}
	}
	return Trade{}, fmt.Errorf("trade for signal %d: %w", signalID, ErrNotFound)
}

func (tx *memTx) AddTrade(_ context.Context, t *Trade) error {
	if t.OrderNo == "" {
		return fmt.Errorf("store: trade order number is required")
	}
	if tx.st.orderNos[t.OrderNo] {
		return fmt.Errorf("store: duplicate order number %s", t.OrderNo)
	}
	t.ID = tx.st.nextID()
	t.CreatedAt = tx.now()
	tx.st.trades = append(tx.st.trades, *t)
	tx.st.orderNos[t.OrderNo] = true
	return nil
}

func (tx *memTx) AddTransaction(_ context.Context, t *Transaction) error {
	t.ID = tx.st.nextID()
	t.CreatedAt = tx.now()
	tx.st.transactions = append(tx.st.transactions, *t)
	return nil
}

func (tx *memTx) LastTrade(ctx context.Context, botID uint, symbol string) (Trade, error) {
	ts, _ := tx.Trades(ctx, botID)
	for i := len(ts) - 1; i >= 0; i-- {
		if ts[i].Symbol == symbol {
			return ts[i], nil
		}
	}
	return Trade{}, fmt.Errorf("last trade %d/%s: %w", botID, symbol, ErrNotFound)
}

func (tx *memTx) Trades(_ context.Context, botID uint) ([]Trade, error) {
	var out []Trade
	for _, t := range tx.st.trades {
		if t.BotID == botID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].TradeDate.Equal(out[j].TradeDate) {
			return out[i].TradeDate.Before(out[j].TradeDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (tx *memTx) PriceHistory(_ context.Context, symbol string) ([]market.Bar, error) {
	return append([]market.Bar(nil), tx.st.bars[symbol]...), nil
}

func (tx *memTx) SaveBars(_ context.Context, bars []market.Bar) error {
	bySymbol := make(map[string][]market.Bar)
	for _, b := range bars {
		bySymbol[b.Symbol] = append(bySymbol[b.Symbol], b)
	}
	for sym, add := range bySymbol {
		// New bars win over stored bars for the same day.
		merged := market.NewSeries(sym, append(add, tx.st.bars[sym]...))
		tx.st.bars[sym] = merged.Bars
	}
	return nil
}

func (tx *memTx) Atomic(_ context.Context, fn func(Repository) error) error {
	return fn(tx)
}

func (tx *memTx) Close() error { return nil }
