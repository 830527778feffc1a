package market

import (
	"fmt"
	"time"
)

// Phase is a named segment of the exchange trading day.
type Phase string

const (
	PreOpen           Phase = "Pre-Open"
	MarketOpen        Phase = "Market Open"
	PreClose          Phase = "Pre-Close"
	MarketClose       Phase = "Market Close"
	OutOfWorkingHours Phase = "Out of working hours"
)

var phaseOrder = []Phase{PreOpen, MarketOpen, PreClose, MarketClose}

// PhaseWindow is a phase that may start at several times of day (the SET
// opens twice, morning and afternoon) and ends at End. Times are "15:04".
type PhaseWindow struct {
	Start []string `json:"start" yaml:"start"`
	End   string   `json:"end" yaml:"end"`
}

type clockRange struct {
	start, end time.Duration
}

// Calendar answers market-day and market-phase questions in the exchange
// timezone.
type Calendar struct {
	loc      *time.Location
	holidays map[string]struct{}
	phases   map[Phase][]clockRange
}

// NewCalendar builds a calendar for the given IANA timezone, holiday dates
// ("2006-01-02") and phase windows.
func NewCalendar(tz string, holidays []string, phases map[string]PhaseWindow) (*Calendar, error) {
	loc := time.UTC
	if tz != "" {
		var err error
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("calendar: load timezone %q: %w", tz, err)
		}
	}

	c := &Calendar{
		loc:      loc,
		holidays: make(map[string]struct{}, len(holidays)),
		phases:   make(map[Phase][]clockRange, len(phases)),
	}

	for _, h := range holidays {
		d, err := time.ParseInLocation(DateLayout, h, loc)
		if err != nil {
			return nil, fmt.Errorf("calendar: bad holiday %q: %w", h, err)
		}
		c.holidays[d.Format(DateLayout)] = struct{}{}
	}

	for name, w := range phases {
		end, err := parseClock(w.End)
		if err != nil {
			return nil, fmt.Errorf("calendar: phase %q end: %w", name, err)
		}
		for _, s := range w.Start {
			start, err := parseClock(s)
			if err != nil {
				return nil, fmt.Errorf("calendar: phase %q start: %w", name, err)
			}
			c.phases[Phase(name)] = append(c.phases[Phase(name)], clockRange{start: start, end: end})
		}
	}
	return c, nil
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		t, err = time.Parse("15:04:05", s)
		if err != nil {
			return 0, fmt.Errorf("bad time of day %q", s)
		}
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second, nil
}

func (c *Calendar) Location() *time.Location { return c.loc }

// In converts t into the exchange timezone.
func (c *Calendar) In(t time.Time) time.Time { return t.In(c.loc) }

func (c *Calendar) IsHoliday(t time.Time) bool {
	_, ok := c.holidays[c.In(t).Format(DateLayout)]
	return ok
}

// IsTradingDay is true on weekdays that are not holidays.
func (c *Calendar) IsTradingDay(t time.Time) bool {
	t = c.In(t)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.IsHoliday(t)
}

// Phase returns the market phase at t.
func (c *Calendar) Phase(t time.Time) Phase {
	t = c.In(t)
	tod := t.Sub(Day(t))
	for _, p := range phaseOrder {
		for _, r := range c.phases[p] {
			if r.start <= tod && tod < r.end {
				return p
			}
		}
	}
	// phases not in the well-known order
	for p, rs := range c.phases {
		for _, r := range rs {
			if r.start <= tod && tod < r.end {
				return p
			}
		}
	}
	return OutOfWorkingHours
}

// IsOpen reports whether t falls on a trading day, along with the phase.
func (c *Calendar) IsOpen(t time.Time) (bool, Phase) {
	return c.IsTradingDay(t), c.Phase(t)
}

// TargetDate maps a calendar instant to the last complete trading date
// before it, stepping back over weekends and holidays.
func (c *Calendar) TargetDate(t time.Time) time.Time {
	d := Day(c.In(t)).AddDate(0, 0, -1)
	for i := 0; i < 366 && !c.IsTradingDay(d); i++ {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
