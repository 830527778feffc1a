package journal

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/touchsung/trading-bot/market"
)

type SQLite struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(Schema); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (j *SQLite) RecordRun(ctx context.Context, r Run) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs
		(run_id, created, strategy, symbols, start_date, end_date, initial_budget, final_cash, final_equity,
		 fills, trades, wins, profit_loss, win_rate, roi)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.RunID, r.Created, r.Strategy, strings.Join(r.Symbols, ","), r.Start, r.End,
		r.InitialBudget, r.FinalCash, r.FinalEquity,
		r.Fills, r.Trades, r.Wins, r.ProfitLoss, r.WinRate, r.ROI,
	)
	return err
}

// RecordFill appends t after the fills already recorded for runID.
func (j *SQLite) RecordFill(ctx context.Context, runID string, t market.Trade) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO fills
		(run_id, seq, order_no, symbol, side, position_type, price, volume, commission, vat, wht, trade_date)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM fills WHERE run_id = ?), ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, runID, t.OrderNo, t.Symbol, string(t.Side), string(t.PositionType),
		t.Price, t.Volume, t.Commission, t.VAT, t.WHT, t.Date,
	)
	return err
}

func (j *SQLite) Close() error {
	return j.db.Close()
}
