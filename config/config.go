// Package config is the single settings object of a trader process. It is
// loaded once at startup and handed to the components that need it.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/touchsung/trading-bot/broker/sim"
	"github.com/touchsung/trading-bot/executor"
	"github.com/touchsung/trading-bot/lock"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/notify"
	"github.com/touchsung/trading-bot/portfolio"
	"github.com/touchsung/trading-bot/risk"
	"github.com/touchsung/trading-bot/store"
	"github.com/touchsung/trading-bot/strategies"
)

type Config struct {
	Account  AccountConfig        `json:"account" yaml:"account"`
	Bot      BotConfig            `json:"bot" yaml:"bot"`
	Strategy strategies.Config    `json:"strategy" yaml:"strategy"`
	Trading  TradingConfig        `json:"trading" yaml:"trading"`
	Fees     FeesConfig           `json:"fees" yaml:"fees"`
	Market   MarketConfig         `json:"market" yaml:"market"`
	Live     LiveConfig           `json:"live" yaml:"live"`
	Data     DataConfig           `json:"data" yaml:"data"`
	Database store.Config         `json:"database" yaml:"database"`
	Journal  JournalConfig        `json:"journal" yaml:"journal"`
	Notify   notify.DiscordConfig `json:"notify" yaml:"notify"`
	Lock     lock.Config          `json:"lock" yaml:"lock"`
	Metrics  MetricsConfig        `json:"metrics" yaml:"metrics"`
	Gateway  sim.Config           `json:"gateway" yaml:"gateway"`
}

type AccountConfig struct {
	No     string `json:"no" yaml:"no" validate:"required"`
	Broker string `json:"broker" yaml:"broker"`
}

type BotConfig struct {
	Name          string   `json:"name" yaml:"name" validate:"required"`
	Symbols       []string `json:"symbols" yaml:"symbols" validate:"required,min=1,dive,required"`
	InitialBudget float64  `json:"initial_budget" yaml:"initial_budget" validate:"gt=0"`
}

type TradingConfig struct {
	risk.Policy `yaml:",inline"`
	// HistoryYears is the trailing window of bars the strategy sees.
	HistoryYears int `json:"history_years" yaml:"history_years" validate:"gte=0"`
}

// FeesConfig separates what live orders are charged from what backtests
// simulate. Backtests are fee-free unless configured.
type FeesConfig struct {
	Live     portfolio.FeeSchedule `json:"live" yaml:"live"`
	Backtest portfolio.FeeSchedule `json:"backtest" yaml:"backtest"`
}

type MarketConfig struct {
	Timezone    string                        `json:"timezone" yaml:"timezone"`
	Holidays    []string                      `json:"holidays" yaml:"holidays" validate:"dive,datetime=2006-01-02"`
	Phases      map[string]market.PhaseWindow `json:"phases" yaml:"phases"`
	TradePhases []string                      `json:"trade_phases" yaml:"trade_phases"`
}

type LiveConfig struct {
	executor.LiveConfig `yaml:",inline"`

	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
}

type DataConfig struct {
	// Source is "csv" for a directory of <SYMBOL>.csv files or "db" for
	// the OHLCV table of the database.
	Source string `json:"source" yaml:"source" validate:"oneof=csv db"`
	Dir    string `json:"dir" yaml:"dir"`
	// Watch invalidates cached CSV history when files change.
	Watch bool `json:"watch" yaml:"watch"`
}

type JournalConfig struct {
	Type      string `json:"type" yaml:"type" validate:"omitempty,oneof=none csv sqlite"`
	RunsFile  string `json:"runs_file,omitempty" yaml:"runs_file,omitempty"`
	FillsFile string `json:"fills_file,omitempty" yaml:"fills_file,omitempty"`
	DBPath    string `json:"db_path,omitempty" yaml:"db_path,omitempty"`
}

type MetricsConfig struct {
	// Listen is the address of the /metrics endpoint in live mode. Empty
	// disables it.
	Listen string `json:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

// Environment variables that override secrets and deployment specifics.
const (
	EnvDatabaseDSN    = "TRADER_DATABASE_DSN"
	EnvDiscordWebhook = "TRADER_DISCORD_WEBHOOK_URL"
	EnvAccountNo      = "TRADER_ACCOUNT_NO"
	EnvRedisAddr      = "TRADER_REDIS_ADDR"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// LoadFromFile reads a YAML or JSON file over the defaults, applies
// environment overrides and validates the result.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}

	cfg.ApplyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	data, err := c.Marshal(path)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Marshal encodes c in the format implied by path's extension.
func (c *Config) Marshal(path string) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// ApplyEnv overrides fields from the environment through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvDatabaseDSN); ok && v != "" {
		c.Database.DSN = v
	}
	if v, ok := lookup(EnvDiscordWebhook); ok && v != "" {
		c.Notify.WebhookURL = v
	}
	if v, ok := lookup(EnvAccountNo); ok && v != "" {
		c.Account.No = v
	}
	if v, ok := lookup(EnvRedisAddr); ok && v != "" {
		c.Lock.Redis.Addr = v
	}
}

// Validate checks struct tags first, then rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return errors.New(strings.Join(msgs, "; "))
		}
		return err
	}

	if err := c.Strategy.Indicators.Validate(); err != nil {
		return err
	}
	if _, err := strategies.ByName(c.Strategy); err != nil {
		return err
	}
	if err := c.Trading.Policy.Validate(); err != nil {
		return err
	}
	if _, err := c.Calendar(); err != nil {
		return err
	}
	for _, p := range c.Market.TradePhases {
		if _, ok := c.Market.Phases[p]; !ok {
			return fmt.Errorf("market.trade_phases: %q is not a configured phase", p)
		}
	}

	if c.Data.Source == "csv" && c.Data.Dir == "" {
		return fmt.Errorf("data.dir is required for the csv source")
	}
	if c.Data.Source == "db" && c.Database.Type == "memory" {
		return fmt.Errorf("data.source db needs a persistent database")
	}

	switch c.Journal.Type {
	case "csv":
		if c.Journal.RunsFile == "" || c.Journal.FillsFile == "" {
			return fmt.Errorf("journal runs_file and fills_file required for CSV type")
		}
	case "sqlite":
		if c.Journal.DBPath == "" {
			return fmt.Errorf("journal db_path required for SQLite type")
		}
	}

	if c.Lock.Enabled && c.Lock.Redis.Addr == "" {
		return fmt.Errorf("lock.redis.addr is required when the lock is enabled")
	}
	return nil
}

// Calendar builds the exchange calendar from the market section.
func (c *Config) Calendar() (*market.Calendar, error) {
	return market.NewCalendar(c.Market.Timezone, c.Market.Holidays, c.Market.Phases)
}

func (c *Config) TradePhases() []market.Phase {
	out := make([]market.Phase, len(c.Market.TradePhases))
	for i, p := range c.Market.TradePhases {
		out[i] = market.Phase(p)
	}
	return out
}

// Default returns a configuration for a simulated SET account.
func Default() *Config {
	return &Config{
		Account: AccountConfig{
			No:     "SIM-001",
			Broker: "sim",
		},
		Bot: BotConfig{
			Name:          "sma-cross-bot",
			Symbols:       []string{"ADVANC", "AOT", "CPALL", "KBANK", "PTT"},
			InitialBudget: 100000,
		},
		Strategy: strategies.DefaultConfig(),
		Trading: TradingConfig{
			Policy:       risk.DefaultPolicy(),
			HistoryYears: 5,
		},
		Fees: FeesConfig{
			Live: portfolio.FeeSchedule{CommissionRate: 0.001},
		},
		Market: MarketConfig{
			Timezone: "Asia/Bangkok",
			Phases: map[string]market.PhaseWindow{
				string(market.PreOpen):     {Start: []string{"09:30"}, End: "10:00"},
				string(market.MarketOpen):  {Start: []string{"10:00"}, End: "16:30"},
				string(market.PreClose):    {Start: []string{"16:30"}, End: "16:40"},
				string(market.MarketClose): {Start: []string{"16:40"}, End: "17:00"},
			},
			TradePhases: []string{string(market.MarketOpen)},
		},
		Live: LiveConfig{
			PollInterval: time.Minute,
			LiveConfig:   executor.DefaultLiveConfig(),
		},
		Data: DataConfig{
			Source: "csv",
			Dir:    "./data",
		},
		Database: store.Config{
			Type: "sqlite",
			DSN:  "./trader.db",
		},
		Journal: JournalConfig{
			Type: "none",
		},
		Notify: notify.DiscordConfig{
			Username: "trader",
			Timeout:  5 * time.Second,
		},
		Lock: lock.Config{
			Prefix: "trader:",
			TTL:    2 * time.Minute,
		},
		Gateway: sim.DefaultConfig(),
	}
}
