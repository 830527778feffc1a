package market

import (
	"fmt"
	"sort"
	"time"
)

// Bar represents one OHLCV record for a symbol on a trading date.
type Bar struct {
	Symbol string
	Date   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Day truncates t to midnight in its own location. Bars and date cursors
// are compared at day granularity.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar date.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Series is the ordered price history of one symbol.
type Series struct {
	Symbol string
	Bars   []Bar
}

// NewSeries sorts bars by date and drops duplicate dates (first wins).
func NewSeries(symbol string, bars []Bar) *Series {
	out := make([]Bar, len(bars))
	copy(out, bars)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })

	dedup := out[:0]
	for _, b := range out {
		if n := len(dedup); n > 0 && SameDay(dedup[n-1].Date, b.Date) {
			continue
		}
		b.Symbol = symbol
		dedup = append(dedup, b)
	}
	return &Series{Symbol: symbol, Bars: dedup}
}

func (s *Series) Len() int { return len(s.Bars) }

func (s *Series) Empty() bool { return s == nil || len(s.Bars) == 0 }

func (s *Series) First() time.Time { return s.Bars[0].Date }

func (s *Series) Last() time.Time { return s.Bars[len(s.Bars)-1].Date }

// IndexOn returns the index of the bar dated on day d, or -1.
func (s *Series) IndexOn(d time.Time) int {
	if s.Empty() {
		return -1
	}
	d = Day(d)
	i := sort.Search(len(s.Bars), func(i int) bool {
		return !Day(s.Bars[i].Date).Before(d)
	})
	if i < len(s.Bars) && SameDay(s.Bars[i].Date, d) {
		return i
	}
	return -1
}

// Since returns the bars dated on or after from.
func (s *Series) Since(from time.Time) *Series {
	if s.Empty() {
		return s
	}
	from = Day(from)
	i := sort.Search(len(s.Bars), func(i int) bool {
		return !Day(s.Bars[i].Date).Before(from)
	})
	return &Series{Symbol: s.Symbol, Bars: s.Bars[i:]}
}

// Closes extracts the close column.
func (s *Series) Closes() []float64 {
	out := make([]float64, len(s.Bars))
	for i, b := range s.Bars {
		out[i] = b.Close
	}
	return out
}

// Validate checks the per-bar OHLC sanity of a series.
func (s *Series) Validate() error {
	for i, b := range s.Bars {
		if b.Close <= 0 {
			return fmt.Errorf("%s: bar %d (%s): non-positive close %v", s.Symbol, i, b.Date.Format(DateLayout), b.Close)
		}
		if b.High < b.Low {
			return fmt.Errorf("%s: bar %d (%s): high %v below low %v", s.Symbol, i, b.Date.Format(DateLayout), b.High, b.Low)
		}
	}
	return nil
}

// DateLayout is the canonical date format used in data files and configs.
const DateLayout = "2006-01-02"
