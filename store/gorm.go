package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/touchsung/trading-bot/market"
)

type Config struct {
	Type            string        `json:"type" yaml:"type" validate:"oneof=memory sqlite postgres postgresql mysql"`
	DSN             string        `json:"dsn" yaml:"dsn" validate:"required_unless=Type memory"`
	MaxOpenConns    int           `json:"max_open_conns" yaml:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `json:"max_idle_conns" yaml:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	LogLevel        string        `json:"log_level" yaml:"log_level" validate:"omitempty,oneof=silent error warn info"`
}

// Open returns the repository selected by cfg.Type.
func Open(cfg Config) (Repository, error) {
	if cfg.Type == "memory" {
		return NewMemory(), nil
	}
	return OpenGorm(cfg)
}

type Gorm struct {
	db *gorm.DB
}

func OpenGorm(cfg Config) (*Gorm, error) {
	var dialector gorm.Dialector

	switch cfg.Type {
	case "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres", "postgresql":
		dialector = postgres.Open(cfg.DSN)
	case "mysql":
		dialector = mysql.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("store: unsupported database type %q", cfg.Type)
	}

	logLevel := logger.Silent
	switch cfg.LogLevel {
	case "error":
		logLevel = logger.Error
	case "warn":
		logLevel = logger.Warn
	case "info":
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", cfg.Type, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("store: sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(
		&Account{},
		&StrategyRecord{},
		&Bot{},
		&Portfolio{},
		&Signal{},
		&Trade{},
		&Transaction{},
		&OHLCV{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Gorm{db: db}, nil
}

func (g *Gorm) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (g *Gorm) Atomic(ctx context.Context, fn func(Repository) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Gorm{db: tx})
	})
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf(format+": %w", append(args, ErrNotFound)...)
	}
	return err
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}

func (g *Gorm) EnsureBot(ctx context.Context, spec BotSpec) (Bot, error) {
	var bot Bot
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("name = ?", spec.Name).First(&bot).Error
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		acct := Account{No: spec.AccountNo, Broker: spec.Broker}
		if err := tx.Where(Account{No: spec.AccountNo}).FirstOrCreate(&acct).Error; err != nil {
			return err
		}
		strat := StrategyRecord{Name: spec.Strategy}
		if err := tx.Where(StrategyRecord{Name: spec.Strategy}).FirstOrCreate(&strat).Error; err != nil {
			return err
		}

		bot = Bot{
			Name:            spec.Name,
			AccountNo:       spec.AccountNo,
			StrategyName:    spec.Strategy,
			TradeSymbols:    strings.Join(spec.Symbols, ","),
			InitialBudget:   spec.InitialBudget,
			AvailableBudget: spec.InitialBudget,
		}
		return tx.Create(&bot).Error
	})
	if err != nil {
		return Bot{}, fmt.Errorf("store: ensure bot %s: %w", spec.Name, err)
	}
	return bot, nil
}

func (g *Gorm) GetBot(ctx context.Context, botID uint) (Bot, error) {
	var b Bot
	if err := g.db.WithContext(ctx).First(&b, botID).Error; err != nil {
		return Bot{}, notFound(err, "bot %d", botID)
	}
	return b, nil
}

func (g *Gorm) UpdateBot(ctx context.Context, b Bot) error {
	res := g.db.WithContext(ctx).Model(&Bot{}).Where("id = ?", b.ID).Updates(map[string]any{
		"available_budget":  b.AvailableBudget,
		"total_profit_loss": b.TotalProfitLoss,
		"trade_symbols":     b.TradeSymbols,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("bot %d: %w", b.ID, ErrNotFound)
	}
	return nil
}

func (g *Gorm) GetPortfolio(ctx context.Context, botID uint, symbol string) (Portfolio, error) {
	var p Portfolio
	err := g.db.WithContext(ctx).Where("bot_id = ? AND symbol = ?", botID, symbol).First(&p).Error
	if err != nil {
		return Portfolio{}, notFound(err, "portfolio %d/%s", botID, symbol)
	}
	return p, nil
}

func (g *Gorm) ListPortfolios(ctx context.Context, botID uint) ([]Portfolio, error) {
	var ps []Portfolio
	if err := g.db.WithContext(ctx).Where("bot_id = ?", botID).Order("symbol").Find(&ps).Error; err != nil {
		return nil, err
	}
	return ps, nil
}

func (g *Gorm) UpdatePortfolio(ctx context.Context, p *Portfolio) error {
	var cur Portfolio
	err := g.db.WithContext(ctx).Select("id").Where("bot_id = ? AND symbol = ?", p.BotID, p.Symbol).First(&cur).Error
	switch {
	case err == nil:
		p.ID = cur.ID
	case errors.Is(err, gorm.ErrRecordNotFound):
		p.ID = 0
	default:
		return err
	}
	// Save writes zero values too, so a closed position is persisted flat.
	return g.db.WithContext(ctx).Save(p).Error
}

func (g *Gorm) AddSignal(ctx context.Context, s *Signal) error {
	s.PendingKey = pendingKey(s)
	if err := g.db.WithContext(ctx).Create(s).Error; err != nil {
		if s.PendingKey != nil && isDuplicate(err) {
			return fmt.Errorf("%s: %w", *s.PendingKey, ErrDuplicateSignal)
		}
		return err
	}
	return nil
}

func (g *Gorm) FindPendingSignal(ctx context.Context, key SignalKey) (Signal, error) {
	var s Signal
	err := g.db.WithContext(ctx).Where("pending_key = ?", key.String()).First(&s).Error
	if err != nil {
		return Signal{}, notFound(err, "pending signal %s", key)
	}
	return s, nil
}

func (g *Gorm) UpdateSignalStatus(ctx context.Context, signalID uint, status market.OrderStatus) error {
	var s Signal
	if err := g.db.WithContext(ctx).First(&s, signalID).Error; err != nil {
		return notFound(err, "signal %d", signalID)
	}
	s.Status = status

	res := g.db.WithContext(ctx).Model(&Signal{}).Where("id = ?", signalID).Updates(map[string]any{
		"status":      status,
		"pending_key": pendingKey(&s),
	})
	if res.Error != nil {
		if isDuplicate(res.Error) {
			return fmt.Errorf("signal %d: %w", signalID, ErrDuplicateSignal)
		}
		return res.Error
	}
	return nil
}

func (g *Gorm) PendingSignals(ctx context.Context, botID uint) ([]Signal, error) {
	var ss []Signal
	err := g.db.WithContext(ctx).
		Where("bot_id = ? AND pending_key IS NOT NULL", botID).
		Order("id").Find(&ss).Error
	if err != nil {
		return nil, err
	}
	return ss, nil
}

func (g *Gorm) SignalTrade(ctx context.Context, signalID uint) (Trade, error) {
	var t Trade
	err := g.db.WithContext(ctx).
		Joins("JOIN transactions ON transactions.trade_id = trades.id").
		Where("transactions.signal_id = ?", signalID).
		First(&t).Error
	if err != nil {
		return Trade{}, notFound(err, "trade for signal %d", signalID)
	}
	return t, nil
}

func (g *Gorm) AddTrade(ctx context.Context, t *Trade) error {
	if t.OrderNo == "" {
		return fmt.Errorf("store: trade order number is required")
	}
	return g.db.WithContext(ctx).Create(t).Error
}

func (g *Gorm) AddTransaction(ctx context.Context, tx *Transaction) error {
	return g.db.WithContext(ctx).Create(tx).Error
}

func (g *Gorm) LastTrade(ctx context.Context, botID uint, symbol string) (Trade, error) {
	var t Trade
	err := g.db.WithContext(ctx).
		Where("bot_id = ? AND symbol = ?", botID, symbol).
		Order("trade_date DESC").Order("id DESC").
		First(&t).Error
	if err != nil {
		return Trade{}, notFound(err, "last trade %d/%s", botID, symbol)
	}
	return t, nil
}

func (g *Gorm) Trades(ctx context.Context, botID uint) ([]Trade, error) {
	var ts []Trade
	err := g.db.WithContext(ctx).Where("bot_id = ?", botID).Order("trade_date").Order("id").Find(&ts).Error
	if err != nil {
		return nil, err
	}
	return ts, nil
}

func (g *Gorm) PriceHistory(ctx context.Context, symbol string) ([]market.Bar, error) {
	var rows []OHLCV
	if err := g.db.WithContext(ctx).Where("symbol = ?", symbol).Order("date").Find(&rows).Error; err != nil {
		return nil, err
	}
	bars := make([]market.Bar, len(rows))
	for i, r := range rows {
		bars[i] = r.Bar()
	}
	return bars, nil
}

func (g *Gorm) SaveBars(ctx context.Context, bars []market.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	rows := make([]OHLCV, len(bars))
	for i, b := range bars {
		rows[i] = ohlcvFromBar(b)
	}
	return g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"open", "high", "low", "close", "volume"}),
	}).CreateInBatches(rows, 100).Error
}
