package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/touchsung/trading-bot/market"
)

const runColumns = `run_id, created, strategy, symbols, start_date, end_date, initial_budget, final_cash,
	final_equity, fills, trades, wins, profit_loss, win_rate, roi`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r       Run
		symbols string
	)
	err := s.Scan(
		&r.RunID, &r.Created, &r.Strategy, &symbols, &r.Start, &r.End,
		&r.InitialBudget, &r.FinalCash, &r.FinalEquity,
		&r.Fills, &r.Trades, &r.Wins, &r.ProfitLoss, &r.WinRate, &r.ROI,
	)
	if symbols != "" {
		r.Symbols = strings.Split(symbols, ",")
	}
	return r, err
}

// GetRun returns a single run by ID.
func (j *SQLite) GetRun(ctx context.Context, runID string) (Run, error) {
	row := j.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, fmt.Errorf("run %q not found", runID)
		}
		return Run{}, err
	}
	return r, nil
}

// ListRuns returns the most recent runs first. A non-positive limit
// returns all of them.
func (j *SQLite) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT ` + runColumns + ` FROM runs ORDER BY created DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := j.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ListFills returns the ledger of runID in execution order.
func (j *SQLite) ListFills(ctx context.Context, runID string) ([]market.Trade, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT order_no, symbol, side, position_type, price, volume, commission, vat, wht, trade_date
		FROM fills
		WHERE run_id = ?
		ORDER BY seq ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []market.Trade
	for rows.Next() {
		var (
			t          market.Trade
			side, kind string
		)
		if err := rows.Scan(
			&t.OrderNo, &t.Symbol, &side, &kind,
			&t.Price, &t.Volume, &t.Commission, &t.VAT, &t.WHT, &t.Date,
		); err != nil {
			return nil, err
		}
		t.Side = market.Side(side)
		t.PositionType = market.PositionType(kind)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
