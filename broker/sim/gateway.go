// Package sim is an in-process order gateway that fills orders at the
// requested price with a configurable probability.
package sim

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/touchsung/trading-bot/broker"
	"github.com/touchsung/trading-bot/internal/id"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

type Config struct {
	FillProbability float64               `json:"fill_probability" yaml:"fill_probability" validate:"gte=0,lte=1"`
	Seed            int64                 `json:"seed" yaml:"seed"`
	Fees            portfolio.FeeSchedule `json:"-" yaml:"-"`
}

func DefaultConfig() Config {
	return Config{
		FillProbability: 0.9,
		Seed:            1,
		Fees:            portfolio.FeeSchedule{CommissionRate: 0.001},
	}
}

type Gateway struct {
	mu  sync.Mutex
	cfg Config
	rng *rand.Rand
	ids *id.Generator
	now func() time.Time
}

type Option func(*Gateway)

// WithClock sets the source of trade dates.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

func New(cfg Config, opts ...Option) *Gateway {
	g := &Gateway{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
		ids: id.NewGenerator(cfg.Seed),
		now: time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) PlaceOrder(ctx context.Context, o broker.PlaceOrder) (market.Trade, error) {
	if err := ctx.Err(); err != nil {
		return market.Trade{}, err
	}
	if err := o.Validate(); err != nil {
		return market.Trade{}, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rng.Float64() >= g.cfg.FillProbability {
		return market.Trade{}, fmt.Errorf("%w: %s %s %d@%.2f", broker.ErrOrderRejected, o.Side, o.Symbol, o.Volume, o.Price)
	}

	now := g.now()
	fees := g.cfg.Fees.For(o.Price, o.Volume)
	return market.Trade{
		OrderNo:      g.ids.At(now),
		Account:      o.Account,
		Symbol:       o.Symbol,
		Side:         o.Side,
		Price:        o.Price,
		Volume:       o.Volume,
		Commission:   fees.Commission,
		VAT:          fees.VAT,
		WHT:          fees.WHT,
		Date:         now,
		PositionType: o.PositionType,
	}, nil
}
