package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/touchsung/trading-bot/feed"
	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/store"
)

func newDataCmd(rc *RootConfig) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Move daily price history between CSV files and the database",
	}

	var dir string
	importCmd := &cobra.Command{
		Use:   "import [SYMBOL...]",
		Short: "Load <SYMBOL>.csv files into the OHLCV table",
		Long: `Import reads date,open,high,low,close,volume CSV files from a directory and
upserts them into the database. Without arguments every *.csv file in the
directory is imported.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rc.load()
			if err != nil {
				return err
			}
			if dir == "" {
				dir = cfg.Data.Dir
			}

			symbols := args
			if len(symbols) == 0 {
				matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
				if err != nil {
					return err
				}
				for _, m := range matches {
					symbols = append(symbols, strings.TrimSuffix(filepath.Base(m), ".csv"))
				}
			}
			if len(symbols) == 0 {
				return fmt.Errorf("no csv files in %s", dir)
			}

			repo, err := store.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer closeWith(log, "database", repo.Close)

			src := feed.NewCSVSource(dir, log)
			for _, sym := range symbols {
				s, err := src.PriceHistory(cmd.Context(), sym)
				if err != nil {
					return err
				}
				if err := s.Validate(); err != nil {
					return fmt.Errorf("%s: %w", sym, err)
				}
				if err := repo.SaveBars(cmd.Context(), s.Bars); err != nil {
					return fmt.Errorf("%s: %w", sym, err)
				}
				log.Info("imported", zap.String("symbol", sym), zap.Int("bars", s.Len()))
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %6d bars\n", sym, s.Len())
			}
			return nil
		},
	}
	importCmd.Flags().StringVar(&dir, "dir", "", "Directory of CSV files, defaults to data.dir")

	var outDir string
	exportCmd := &cobra.Command{
		Use:   "export SYMBOL...",
		Short: "Write stored OHLCV history to <SYMBOL>.csv files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := rc.load()
			if err != nil {
				return err
			}
			repo, err := store.Open(cfg.Database)
			if err != nil {
				return err
			}
			defer closeWith(log, "database", repo.Close)

			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return err
			}
			for _, sym := range args {
				bars, err := repo.PriceHistory(cmd.Context(), sym)
				if err != nil {
					return err
				}
				s := market.NewSeries(sym, bars)
				if err := writeCSV(filepath.Join(outDir, sym+".csv"), s.Bars); err != nil {
					return fmt.Errorf("%s: %w", sym, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-10s %6d bars\n", sym, s.Len())
			}
			return nil
		},
	}
	exportCmd.Flags().StringVar(&outDir, "out", ".", "Output directory")

	cmd.AddCommand(importCmd, exportCmd)
	return cmd
}

func writeCSV(path string, bars []market.Bar) error {
	fh, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := feed.WriteBars(fh, bars); err != nil {
		_ = fh.Close()
		return err
	}
	return fh.Close()
}
