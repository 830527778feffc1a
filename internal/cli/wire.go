package cli

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/touchsung/trading-bot/config"
	"github.com/touchsung/trading-bot/feed"
	"github.com/touchsung/trading-bot/internal/logging"
	"github.com/touchsung/trading-bot/journal"
	"github.com/touchsung/trading-bot/notify"
	"github.com/touchsung/trading-bot/store"
)

// RootConfig holds the persistent flags shared by every command.
type RootConfig struct {
	ConfigPath string
	DB         string
	LogLevel   string
	LogFormat  string
}

// load returns the effective configuration and the process logger. The
// defaults stand in for a missing --config; environment overrides and
// validation apply either way.
func (rc *RootConfig) load() (*config.Config, *zap.Logger, error) {
	log, err := logging.New(rc.LogLevel, rc.LogFormat)
	if err != nil {
		return nil, nil, err
	}

	var cfg *config.Config
	if rc.ConfigPath != "" {
		cfg, err = config.LoadFromFile(rc.ConfigPath)
		if err != nil {
			return nil, nil, err
		}
	} else {
		cfg = config.Default()
		cfg.ApplyEnv(os.LookupEnv)
	}

	if rc.DB != "" {
		cfg.Database.DSN = rc.DB
		if cfg.Database.Type == "memory" {
			cfg.Database.Type = "sqlite"
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, log, nil
}

// openSource returns the configured price source. The returned repository
// is non-nil only when it was opened here and must be closed by the caller.
func openSource(cfg *config.Config, repo store.Repository, log *zap.Logger) (feed.Source, store.Repository, error) {
	switch cfg.Data.Source {
	case "csv":
		return feed.NewCSVSource(cfg.Data.Dir, log), nil, nil
	case "db":
		if repo != nil {
			return feed.StoreSource{Repo: repo}, nil, nil
		}
		r, err := store.Open(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return feed.StoreSource{Repo: r}, r, nil
	default:
		return nil, nil, fmt.Errorf("unknown data source %q", cfg.Data.Source)
	}
}

// openJournal returns nil when journaling is off.
func openJournal(cfg *config.Config) (journal.Journal, error) {
	switch cfg.Journal.Type {
	case "", "none":
		return nil, nil
	case "csv":
		return journal.NewCSV(cfg.Journal.RunsFile, cfg.Journal.FillsFile)
	case "sqlite":
		return journal.NewSQLite(cfg.Journal.DBPath)
	default:
		return nil, fmt.Errorf("unknown journal type %q", cfg.Journal.Type)
	}
}

func newNotifier(cfg *config.Config, log *zap.Logger) notify.Notifier {
	if cfg.Notify.WebhookURL == "" {
		return notify.Nop{}
	}
	return notify.Logged{Next: notify.NewDiscord(cfg.Notify), Log: log}
}

func closeWith(log *zap.Logger, what string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn("close "+what, zap.Error(err))
	}
}
