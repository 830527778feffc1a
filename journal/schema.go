package journal

const Schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	created DATETIME NOT NULL,
	strategy TEXT NOT NULL,
	symbols TEXT NOT NULL,
	start_date DATETIME NOT NULL,
	end_date DATETIME NOT NULL,
	initial_budget REAL NOT NULL,
	final_cash REAL NOT NULL,
	final_equity REAL NOT NULL,
	fills INTEGER NOT NULL,
	trades INTEGER NOT NULL,
	wins INTEGER NOT NULL,
	profit_loss REAL NOT NULL,
	win_rate REAL NOT NULL,
	roi REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS fills (
	run_id TEXT NOT NULL REFERENCES runs(run_id),
	seq INTEGER NOT NULL,
	order_no TEXT NOT NULL,
	symbol TEXT NOT NULL,
	side TEXT NOT NULL,
	position_type TEXT NOT NULL,
	price REAL NOT NULL,
	volume INTEGER NOT NULL,
	commission REAL NOT NULL,
	vat REAL NOT NULL,
	wht REAL NOT NULL,
	trade_date DATETIME NOT NULL,
	PRIMARY KEY (run_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(run_id, symbol);
`
