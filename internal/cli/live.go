package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/touchsung/trading-bot/broker/sim"
	"github.com/touchsung/trading-bot/engine"
	"github.com/touchsung/trading-bot/executor"
	"github.com/touchsung/trading-bot/feed"
	"github.com/touchsung/trading-bot/lock"
	"github.com/touchsung/trading-bot/metrics"
	"github.com/touchsung/trading-bot/store"
	"github.com/touchsung/trading-bot/strategies"
)

func newLiveCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Poll the market and trade the configured bot until stopped",
		Long: `Live evaluates every symbol once per trading date while the market is in
one of the configured trade phases. Orders go through the simulated gateway;
fills, signals, portfolios and the bot budget are persisted in the database.

Stop with Ctrl-C or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rc.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			strat, err := strategies.ByName(cfg.Strategy)
			if err != nil {
				return err
			}
			cal, err := cfg.Calendar()
			if err != nil {
				return err
			}

			repo, err := store.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer closeWith(log, "database", repo.Close)

			bot, err := repo.EnsureBot(ctx, store.BotSpec{
				Name:          cfg.Bot.Name,
				AccountNo:     cfg.Account.No,
				Broker:        cfg.Account.Broker,
				Strategy:      strat.Name(),
				Symbols:       cfg.Bot.Symbols,
				InitialBudget: cfg.Bot.InitialBudget,
			})
			if err != nil {
				return err
			}

			src, _, err := openSource(cfg, repo, log)
			if err != nil {
				return err
			}

			dl, err := lock.New(cfg.Lock)
			if err != nil {
				return err
			}
			defer closeWith(log, "lock", dl.Close)

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
			m := metrics.New(reg)
			alert := newNotifier(cfg, log)

			gwCfg := cfg.Gateway
			gwCfg.Fees = cfg.Fees.Live
			gw := sim.New(gwCfg)

			ex := executor.NewLive(repo, gw, bot, cfg.Live.LiveConfig,
				executor.WithLogger(log),
				executor.WithNotifier(alert),
				executor.WithMetrics(m),
			)

			eng, err := engine.New(engine.Config{
				Name:         bot.Name,
				Symbols:      bot.Symbols(),
				Policy:       cfg.Trading.Policy,
				Fees:         cfg.Fees.Live,
				HistoryYears: cfg.Trading.HistoryYears,
				PollInterval: cfg.Live.PollInterval,
				TradePhases:  cfg.TradePhases(),
				LockTTL:      cfg.Lock.TTL,
			}, strat, src, ex,
				engine.WithLogger(log),
				engine.WithNotifier(alert),
				engine.WithMetrics(m),
				engine.WithLock(dl),
				engine.WithCalendar(cal),
			)
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return eng.Live(gctx) })

			if csv, ok := src.(*feed.CSVSource); ok && cfg.Data.Watch {
				g.Go(func() error { return csv.Watch(gctx) })
			}

			if cfg.Metrics.Listen != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", m.Handler())
				srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

				g.Go(func() error {
					log.Info("metrics listening", zap.String("addr", cfg.Metrics.Listen))
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				g.Go(func() error {
					<-gctx.Done()
					sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
					defer cancel()
					return srv.Shutdown(sctx)
				})
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	return cmd
}
