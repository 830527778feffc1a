package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/touchsung/trading-bot/engine"
	"github.com/touchsung/trading-bot/executor"
	"github.com/touchsung/trading-bot/internal/id"
	"github.com/touchsung/trading-bot/journal"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/performance"
	"github.com/touchsung/trading-bot/strategies"
)

func newBacktestCmd(rc *RootConfig) *cobra.Command {
	var (
		fromStr  string
		toStr    string
		symbols  []string
		budget   float64
		strategy string
		orgPath  string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay daily history through the configured strategy",
		Long: `Backtest walks every trading date in the price history, evaluates the
strategy for each symbol and fills orders at the close. It prints the
performance summary and, when a journal is configured, records the run.

Example:
  trader backtest --config trader.yaml --from 2020-01-01 --to 2024-12-31`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rc.load()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			if len(symbols) > 0 {
				cfg.Bot.Symbols = symbols
			}
			if budget > 0 {
				cfg.Bot.InitialBudget = budget
			}
			if strategy != "" {
				cfg.Strategy.Name = strategy
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			from, err := parseDate("--from", fromStr)
			if err != nil {
				return err
			}
			to, err := parseDate("--to", toStr)
			if err != nil {
				return err
			}
			if from != nil && to != nil && to.Before(*from) {
				return fmt.Errorf("--from must not be after --to")
			}

			strat, err := strategies.ByName(cfg.Strategy)
			if err != nil {
				return err
			}

			src, repo, err := openSource(cfg, nil, log)
			if err != nil {
				return err
			}
			if repo != nil {
				defer closeWith(log, "database", repo.Close)
			}

			ex := executor.NewBacktest(cfg.Bot.InitialBudget, cfg.Account.No, log)
			ex.Fees = cfg.Fees.Backtest

			eng, err := engine.New(engine.Config{
				Name:         cfg.Bot.Name,
				Symbols:      cfg.Bot.Symbols,
				Policy:       cfg.Trading.Policy,
				Fees:         cfg.Fees.Backtest,
				HistoryYears: cfg.Trading.HistoryYears,
			}, strat, src, ex, engine.WithLogger(log))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			res, err := eng.Backtest(ctx, from, to)
			if err != nil {
				return err
			}

			run := journal.Run{
				RunID:         id.New(),
				Created:       time.Now().UTC(),
				Strategy:      strat.Name(),
				Symbols:       cfg.Bot.Symbols,
				Start:         res.Start,
				End:           res.End,
				InitialBudget: res.Initial,
				FinalCash:     res.Cash,
				FinalEquity:   res.Equity,
				Fills:         len(res.Trades),
				Trades:        res.Summary.TotalTrades,
				Wins:          res.Summary.WinningTrades,
				ProfitLoss:    res.Summary.TotalProfitLoss,
				WinRate:       res.Summary.WinRate,
				ROI:           res.Summary.ROI,
			}

			j, err := openJournal(cfg)
			if err != nil {
				return err
			}
			if j != nil {
				defer closeWith(log, "journal", j.Close)
				if err := journal.Record(ctx, j, run, res.Trades); err != nil {
					return fmt.Errorf("journal: %w", err)
				}
				log.Info("run journaled", zap.String("run_id", run.RunID), zap.String("type", cfg.Journal.Type))
			}

			if orgPath != "" {
				fh, err := os.Create(orgPath)
				if err != nil {
					return err
				}
				if err := journal.WriteOrg(fh, run); err != nil {
					_ = fh.Close()
					return err
				}
				if err := fh.Close(); err != nil {
					return err
				}
			}

			return performance.Print(cmd.OutOrStdout(), performance.Report{
				RunID:         run.RunID,
				Strategy:      run.Strategy,
				Symbols:       run.Symbols,
				Start:         res.Start.Format(market.DateLayout),
				End:           res.End.Format(market.DateLayout),
				InitialBudget: res.Initial,
				FinalCash:     res.Cash,
				FinalEquity:   res.Equity,
				Ledger:        len(res.Trades),
				Positions:     res.Positions,
				Summary:       res.Summary,
			})
		},
	}

	cmd.Flags().StringVar(&fromStr, "from", "", "First date to trade (YYYY-MM-DD)")
	cmd.Flags().StringVar(&toStr, "to", "", "Last date to trade (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Symbols to trade, overrides bot.symbols")
	cmd.Flags().Float64Var(&budget, "budget", 0, "Initial budget, overrides bot.initial_budget")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Strategy name (sma-cross, noop), overrides strategy.name")
	cmd.Flags().StringVar(&orgPath, "org", "", "Also write the run summary as an org-mode note to this path")

	return cmd
}

func parseDate(flag, s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(market.DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("bad %s: %w", flag, err)
	}
	return &t, nil
}
