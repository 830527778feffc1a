package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/touchsung/trading-bot/journal"
	"github.com/touchsung/trading-bot/market"
)

func newJournalCmd(rc *RootConfig) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect backtest runs recorded in a SQLite journal",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "journal-db", "", "SQLite journal path, defaults to journal.db_path")

	open := func() (*journal.SQLite, error) {
		path := dbPath
		if path == "" {
			cfg, _, err := rc.load()
			if err != nil {
				return nil, err
			}
			path = cfg.Journal.DBPath
		}
		if path == "" {
			return nil, fmt.Errorf("no journal database: pass --journal-db or set journal.db_path")
		}
		return journal.NewSQLite(path)
	}

	var limit int
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			runs, err := j.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}

			table := tablewriter.NewTable(cmd.OutOrStdout(),
				tablewriter.WithHeader([]string{"Run", "Created", "Strategy", "Symbols", "Period", "Trades", "Win %", "P/L", "ROI %"}),
			)
			for _, r := range runs {
				if err := table.Append([]string{
					r.RunID,
					r.Created.Format("2006-01-02 15:04"),
					r.Strategy,
					strings.Join(r.Symbols, " "),
					r.Start.Format(market.DateLayout) + " .. " + r.End.Format(market.DateLayout),
					strconv.Itoa(r.Trades),
					fmt.Sprintf("%.2f", r.WinRate),
					fmt.Sprintf("%.2f", r.ProfitLoss),
					fmt.Sprintf("%.2f", r.ROI),
				}); err != nil {
					return err
				}
			}
			return table.Render()
		},
	}
	runsCmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs, 0 for all")

	showCmd := &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Print a run as org-mode followed by its fills",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			run, err := j.GetRun(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fills, err := j.ListFills(cmd.Context(), run.RunID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := journal.WriteOrg(out, run); err != nil {
				return err
			}
			fmt.Fprintln(out)
			for _, t := range fills {
				fmt.Fprintln(out, t.String())
			}
			return nil
		},
	}

	cmd.AddCommand(runsCmd, showCmd)
	return cmd
}
