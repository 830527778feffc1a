package journal

import (
	"context"
	"encoding/csv"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/touchsung/trading-bot/market"
)

// CSVJournal appends runs and fills to two CSV files.
type CSVJournal struct {
	runs   *csv.Writer
	fills  *csv.Writer
	rf, ff *os.File
}

var (
	runHeader  = []string{"run_id", "created", "strategy", "symbols", "start", "end", "initial_budget", "final_cash", "final_equity", "fills", "trades", "wins", "profit_loss", "win_rate", "roi"}
	fillHeader = []string{"run_id", "order_no", "symbol", "side", "position_type", "price", "volume", "commission", "vat", "wht", "date"}
)

func NewCSV(runsPath, fillsPath string) (*CSVJournal, error) {
	rf, err := os.Create(runsPath)
	if err != nil {
		return nil, err
	}
	ff, err := os.Create(fillsPath)
	if err != nil {
		_ = rf.Close()
		return nil, err
	}

	j := &CSVJournal{runs: csv.NewWriter(rf), fills: csv.NewWriter(ff), rf: rf, ff: ff}
	if err := j.write(j.runs, runHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	if err := j.write(j.fills, fillHeader); err != nil {
		_ = j.Close()
		return nil, err
	}
	return j, nil
}

func (j *CSVJournal) write(w *csv.Writer, rec []string) error {
	if err := w.Write(rec); err != nil {
		return err
	}
	w.Flush()
	return w.Error()
}

func (j *CSVJournal) RecordRun(_ context.Context, r Run) error {
	return j.write(j.runs, []string{
		r.RunID,
		r.Created.Format(time.RFC3339),
		r.Strategy,
		strings.Join(r.Symbols, " "),
		r.Start.Format(market.DateLayout),
		r.End.Format(market.DateLayout),
		f(r.InitialBudget),
		f(r.FinalCash),
		f(r.FinalEquity),
		strconv.Itoa(r.Fills),
		strconv.Itoa(r.Trades),
		strconv.Itoa(r.Wins),
		f(r.ProfitLoss),
		f(r.WinRate),
		f(r.ROI),
	})
}

func (j *CSVJournal) RecordFill(_ context.Context, runID string, t market.Trade) error {
	return j.write(j.fills, []string{
		runID,
		t.OrderNo,
		t.Symbol,
		string(t.Side),
		string(t.PositionType),
		f(t.Price),
		strconv.FormatInt(t.Volume, 10),
		f(t.Commission),
		f(t.VAT),
		f(t.WHT),
		t.Date.Format(market.DateLayout),
	})
}

func (j *CSVJournal) Close() error {
	j.runs.Flush()
	if err := j.runs.Error(); err != nil {
		return err
	}
	j.fills.Flush()
	if err := j.fills.Error(); err != nil {
		return err
	}

	if err := j.rf.Close(); err != nil {
		return err
	}
	return j.ff.Close()
}

func f(x float64) string {
	return strconv.FormatFloat(x, 'f', 6, 64)
}
