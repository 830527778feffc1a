package performance

import (
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/touchsung/trading-bot/market"
	"github.com/touchsung/trading-bot/portfolio"
)

// Report is everything printed at the end of a backtest.
type Report struct {
	RunID         string
	Strategy      string
	Symbols       []string
	Start         string
	End           string
	InitialBudget float64
	FinalCash     float64
	FinalEquity   float64
	Ledger        int
	Positions     []portfolio.Position
	Summary       Summary
}

func Print(w io.Writer, r Report) error {
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	if r.RunID != "" {
		fmt.Fprintf(w, "Run ID:        %s\n", r.RunID)
	}
	fmt.Fprintf(w, "Strategy:      %s\n", r.Strategy)
	fmt.Fprintf(w, "Symbols:       %d\n", len(r.Symbols))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Period")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start:         %s\n", r.Start)
	fmt.Fprintf(w, "End:           %s\n", r.End)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Fills:         %d\n", r.Ledger)
	fmt.Fprintf(w, "Total Trades:  %d\n", r.Summary.TotalTrades)
	fmt.Fprintf(w, "Wins:          %d\n", r.Summary.WinningTrades)
	fmt.Fprintf(w, "Win Rate:      %.2f%%\n", r.Summary.WinRate)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Budget:  %.2f\n", r.InitialBudget)
	fmt.Fprintf(w, "Final Cash:    %.2f\n", r.FinalCash)
	fmt.Fprintf(w, "Final Equity:  %.2f\n", r.FinalEquity)
	fmt.Fprintf(w, "Total P/L:     %.2f\n", r.Summary.TotalProfitLoss)
	fmt.Fprintf(w, "ROI:           %.2f%%\n", r.Summary.ROI)

	if len(r.Summary.BySymbol) > 0 {
		fmt.Fprintln(w)
		table := tablewriter.NewTable(w,
			tablewriter.WithHeader([]string{"Symbol", "Trades", "Wins", "P/L"}),
		)
		for _, s := range r.Summary.BySymbol {
			if err := table.Append([]string{
				s.Symbol,
				strconv.Itoa(s.Trades),
				strconv.Itoa(s.Wins),
				fmt.Sprintf("%.2f", s.ProfitLoss),
			}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	var open []portfolio.Position
	for _, p := range r.Positions {
		if p.Held() {
			open = append(open, p)
		}
	}
	if len(open) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Open Positions")
		table := tablewriter.NewTable(w,
			tablewriter.WithHeader([]string{"Symbol", "Volume", "Avg Cost", "Last Trade"}),
		)
		for _, p := range open {
			if err := table.Append([]string{
				p.Symbol,
				strconv.FormatInt(p.Volume, 10),
				fmt.Sprintf("%.2f", p.AverageCost),
				p.LastTradeDate.Format(market.DateLayout),
			}); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	return nil
}
