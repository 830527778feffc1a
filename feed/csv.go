package feed

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/touchsung/trading-bot/market"
)

// CSVSource reads <Dir>/<SYMBOL>.csv files with rows
//
//	date,open,high,low,close,volume
//
// where date is YYYY-MM-DD or RFC3339. A header row is allowed and blank or
// short rows are skipped. Parsed series are cached until Watch sees the file
// change.
type CSVSource struct {
	Dir string

	mu    sync.RWMutex
	cache map[string]*market.Series
	log   *zap.Logger
}

func NewCSVSource(dir string, log *zap.Logger) *CSVSource {
	if log == nil {
		log = zap.NewNop()
	}
	return &CSVSource{Dir: dir, cache: make(map[string]*market.Series), log: log}
}

func (c *CSVSource) path(symbol string) string {
	return filepath.Join(c.Dir, symbol+".csv")
}

func (c *CSVSource) PriceHistory(_ context.Context, symbol string) (*market.Series, error) {
	c.mu.RLock()
	s, ok := c.cache[symbol]
	c.mu.RUnlock()
	if ok {
		return s, nil
	}

	f, err := os.Open(c.path(symbol))
	if errors.Is(err, os.ErrNotExist) {
		return market.NewSeries(symbol, nil), nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := ReadBars(f, symbol)
	if err != nil {
		return nil, fmt.Errorf("feed: %s: %w", c.path(symbol), err)
	}
	s = market.NewSeries(symbol, bars)

	c.mu.Lock()
	c.cache[symbol] = s
	c.mu.Unlock()
	return s, nil
}

// Invalidate drops the cached series of symbol.
func (c *CSVSource) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.cache, symbol)
	c.mu.Unlock()
}

// Watch invalidates cached series whenever their file changes. It returns
// once the watcher is running; watching stops when ctx is done.
func (c *CSVSource) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("feed: watcher: %w", err)
	}
	if err := w.Add(c.Dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("feed: watch %s: %w", c.Dir, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				name := filepath.Base(ev.Name)
				if !strings.HasSuffix(name, ".csv") {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				symbol := strings.TrimSuffix(name, ".csv")
				c.Invalidate(symbol)
				c.log.Debug("price file changed", zap.String("symbol", symbol), zap.String("op", ev.Op.String()))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				c.log.Warn("price file watcher", zap.Error(err))
			}
		}
	}()
	return nil
}

// ReadBars parses daily bars from r.
func ReadBars(r io.Reader, symbol string) ([]market.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var bars []market.Bar
	first := true
	for {
		row, err := cr.Read()
		if err == io.EOF {
			return bars, nil
		}
		if err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}

		if first {
			first = false
			if h := strings.ToLower(strings.TrimSpace(row[0])); h == "date" || h == "time" {
				continue
			}
		}

		b, ok, err := parseBarRow(row)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		b.Symbol = symbol
		bars = append(bars, b)
	}
}

func parseBarRow(row []string) (market.Bar, bool, error) {
	// date,open,high,low,close[,volume]
	if len(row) < 5 {
		return market.Bar{}, false, nil
	}

	ds := strings.TrimSpace(row[0])
	if ds == "" {
		return market.Bar{}, false, nil
	}
	d, err := time.Parse(market.DateLayout, ds)
	if err != nil {
		t2, err2 := time.Parse(time.RFC3339, ds)
		if err2 != nil {
			return market.Bar{}, false, fmt.Errorf("bad date %q: %w", ds, err)
		}
		d = t2
	}

	var vals [5]float64
	n := 4
	if len(row) >= 6 {
		n = 5
	}
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(strings.TrimSpace(row[i+1]), 64)
		if err != nil {
			return market.Bar{}, false, fmt.Errorf("bad value %q on %s: %w", row[i+1], ds, err)
		}
		vals[i] = v
	}

	return market.Bar{Date: d, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3], Volume: vals[4]}, true, nil
}

// WriteBars writes bars in the format ReadBars accepts.
func WriteBars(w io.Writer, bars []market.Bar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"date", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
	for _, b := range bars {
		if err := cw.Write([]string{b.Date.Format(market.DateLayout), f(b.Open), f(b.High), f(b.Low), f(b.Close), f(b.Volume)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
