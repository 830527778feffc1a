package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

type Account struct {
	ID        uint   `gorm:"primaryKey"`
	No        string `gorm:"size:64;uniqueIndex"`
	Broker    string `gorm:"size:64"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type StrategyRecord struct {
	ID          uint   `gorm:"primaryKey"`
	Name        string `gorm:"size:64;uniqueIndex"`
	Description string
	CreatedAt   time.Time
}

func (StrategyRecord) TableName() string { return "strategies" }

type Bot struct {
	ID              uint   `gorm:"primaryKey"`
	Name            string `gorm:"size:64;uniqueIndex"`
	AccountNo       string `gorm:"size:64;index"`
	StrategyName    string `gorm:"size:64"`
	TradeSymbols    string
	InitialBudget   float64
	AvailableBudget float64
	TotalProfitLoss float64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (b Bot) Symbols() []string {
	if b.TradeSymbols == "" {
		return nil
	}
	return strings.Split(b.TradeSymbols, ",")
}

func (b Bot) Budget() portfolio.Budget {
	return portfolio.Budget{Initial: b.InitialBudget, Available: b.AvailableBudget}
}

// BotSpec describes the bot a live run trades as.
type BotSpec struct {
	Name          string
	AccountNo     string
	Broker        string
	Strategy      string
	Symbols       []string
	InitialBudget float64
}

// Portfolio is the durable position of one bot in one symbol.
type Portfolio struct {
	ID               uint   `gorm:"primaryKey"`
	BotID            uint   `gorm:"uniqueIndex:idx_portfolio_bot_symbol"`
	Symbol           string `gorm:"size:32;uniqueIndex:idx_portfolio_bot_symbol"`
	AccountNo        string `gorm:"size:64"`
	EntryPrice       float64
	EntryVolume      int64
	AverageCost      float64
	HoldingVolume    int64
	Profit           float64
	UnrealizedProfit float64
	LastTradeDate    *time.Time
	UpdatedAt        time.Time
}

func (p Portfolio) Position() portfolio.Position {
	pos := portfolio.Position{
		Symbol:           p.Symbol,
		Volume:           p.HoldingVolume,
		AverageCost:      p.AverageCost,
		EntryPrice:       p.EntryPrice,
		EntryVolume:      p.EntryVolume,
		RealizedProfit:   p.Profit,
		UnrealizedProfit: p.UnrealizedProfit,
	}
	if p.LastTradeDate != nil {
		pos.LastTradeDate = *p.LastTradeDate
	}
	return pos
}

// Apply copies pos onto the record, keeping its identity.
func (p *Portfolio) Apply(pos portfolio.Position) {
	p.Symbol = pos.Symbol
	p.EntryPrice = pos.EntryPrice
	p.EntryVolume = pos.EntryVolume
	p.AverageCost = pos.AverageCost
	p.HoldingVolume = pos.Volume
	p.Profit = pos.RealizedProfit
	p.UnrealizedProfit = pos.UnrealizedProfit
	p.LastTradeDate = nil
	if !pos.LastTradeDate.IsZero() {
		d := pos.LastTradeDate
		p.LastTradeDate = &d
	}
}

// SignalKey identifies orders that must not be pending twice.
type SignalKey struct {
	BotID        uint
	Symbol       string
	Side         market.Side
	PositionType market.PositionType
}

func (k SignalKey) String() string {
	return fmt.Sprintf("%d|%s|%s|%s", k.BotID, k.Symbol, k.Side, k.PositionType)
}

// Signal is an order intent. PendingKey is set only while the status is
// Pending; its unique index rejects a second pending signal for the same key.
type Signal struct {
	ID         uint                `gorm:"primaryKey"`
	BotID      uint                `gorm:"index"`
	AccountNo  string              `gorm:"size:64"`
	Symbol     string              `gorm:"size:32;index"`
	Side       market.Side         `gorm:"size:8"`
	Type       market.PositionType `gorm:"size:32"`
	Price      float64
	Volume     int64
	Status     market.OrderStatus `gorm:"size:32;index"`
	PendingKey *string            `gorm:"size:160;uniqueIndex"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (s Signal) Key() SignalKey {
	return SignalKey{BotID: s.BotID, Symbol: s.Symbol, Side: s.Side, PositionType: s.Type}
}

type Trade struct {
	ID           uint        `gorm:"primaryKey"`
	OrderNo      string      `gorm:"size:64;uniqueIndex"`
	BotID        uint        `gorm:"index"`
	AccountNo    string      `gorm:"size:64"`
	Symbol       string      `gorm:"size:32;index"`
	Side         market.Side `gorm:"size:8"`
	Price        float64
	Volume       int64
	Commission   float64
	VAT          float64
	WHT          float64
	TradeDate    time.Time           `gorm:"index"`
	PositionType market.PositionType `gorm:"size:32"`
	Status       market.OrderStatus  `gorm:"size:32"`
	CreatedAt    time.Time
}

func TradeFromMarket(botID uint, t market.Trade) Trade {
	return Trade{
		OrderNo:      t.OrderNo,
		BotID:        botID,
		AccountNo:    t.Account,
		Symbol:       t.Symbol,
		Side:         t.Side,
		Price:        t.Price,
		Volume:       t.Volume,
		Commission:   t.Commission,
		VAT:          t.VAT,
		WHT:          t.WHT,
		TradeDate:    t.Date,
		PositionType: t.PositionType,
		Status:       market.Matched,
	}
}

func (t Trade) Market() market.Trade {
	return market.Trade{
		OrderNo:      t.OrderNo,
		Account:      t.AccountNo,
		Symbol:       t.Symbol,
		Side:         t.Side,
		Price:        t.Price,
		Volume:       t.Volume,
		Commission:   t.Commission,
		VAT:          t.VAT,
		WHT:          t.WHT,
		Date:         t.TradeDate,
		PositionType: t.PositionType,
	}
}

// Transaction links a trade to the signal that produced it.
type Transaction struct {
	ID        uint `gorm:"primaryKey"`
	TradeID   uint `gorm:"index"`
	SignalID  uint `gorm:"index"`
	CreatedAt time.Time
}

type OHLCV struct {
	ID     uint      `gorm:"primaryKey"`
	Symbol string    `gorm:"size:32;uniqueIndex:idx_ohlcv_symbol_date"`
	Date   time.Time `gorm:"uniqueIndex:idx_ohlcv_symbol_date"`
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

func (OHLCV) TableName() string { return "ohlcv" }

func (o OHLCV) Bar() market.Bar {
	return market.Bar{Symbol: o.Symbol, Date: o.Date, Open: o.Open, High: o.High, Low: o.Low, Close: o.Close, Volume: o.Volume}
}

func ohlcvFromBar(b market.Bar) OHLCV {
	return OHLCV{Symbol: b.Symbol, Date: market.Day(b.Date), Open: b.Open, High: b.High, Low: b.Low, Close: b.Close, Volume: b.Volume}
}
