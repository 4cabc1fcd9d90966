// Package calendar answers whether the Korea Exchange is open at a given
// instant, computed from a data-driven holiday table rather than any
// external calendar service.
package calendar

import (
	"sync"
	"time"
)

const (
	openHour, openMinute   = 9, 0
	closeHour, closeMinute = 15, 30
)

var seoul = mustLoadLocation("Asia/Seoul")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Asia/Seoul ships with every Go tzdata build; a missing zone means
		// a broken deployment environment, not a recoverable condition.
		panic(err)
	}
	return loc
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// KRXCalendar implements contracts.MarketCalendar for the Korea Exchange
// regular session, 09:00-15:30 KST on weekdays that are not holidays.
type KRXCalendar struct {
	mu       sync.RWMutex
	holidays map[string]bool
}

// New builds a KRXCalendar with the fixed and lunar holiday table
// pre-loaded for [fromYear, toYear] and the substitute-holiday rule
// ("a holiday landing on Sunday closes the following Monday too") applied.
func New(fromYear, toYear int) *KRXCalendar {
	c := &KRXCalendar{holidays: make(map[string]bool)}
	for _, d := range baseHolidays(fromYear, toYear, seoul) {
		c.holidays[dateKey(d)] = true
		if d.Weekday() == time.Sunday {
			c.holidays[dateKey(d.AddDate(0, 0, 1))] = true
		}
	}
	return c
}

// RegisterClosure adds an ad-hoc closure (election day, year-end special
// session) without requiring a redeploy of the holiday table.
func (c *KRXCalendar) RegisterClosure(day time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.holidays[dateKey(day.In(seoul))] = true
}

func (c *KRXCalendar) isHoliday(day time.Time) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holidays[dateKey(day)]
}

// isTradingDay reports whether the given KST calendar day is a weekday and
// not a holiday.
func (c *KRXCalendar) isTradingDay(day time.Time) bool {
	wd := day.Weekday()
	if wd == time.Saturday || wd == time.Sunday {
		return false
	}
	return !c.isHoliday(day)
}

func sessionOpen(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), openHour, openMinute, 0, 0, seoul)
}

func sessionClose(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), closeHour, closeMinute, 0, 0, seoul)
}

// IsOpen reports whether the KRX regular session is trading at instant t.
// The upper bound is exclusive: 15:30:00 and later is closed.
func (c *KRXCalendar) IsOpen(t time.Time) bool {
	local := t.In(seoul)
	if !c.isTradingDay(local) {
		return false
	}
	open, close := sessionOpen(local), sessionClose(local)
	return !local.Before(open) && local.Before(close)
}

// NextOpen returns the instant of the next session open strictly after t
// (or the current session's open if t is before today's open on a trading
// day).
func (c *KRXCalendar) NextOpen(t time.Time) time.Time {
	local := t.In(seoul)
	day := local
	for i := 0; i < 3660; i++ { // ~10 years of daily search, well past any realistic gap
		if c.isTradingDay(day) {
			open := sessionOpen(day)
			if open.After(local) {
				return open
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// TradingDuration sums the portion of [from, to) that falls inside KRX
// regular sessions, i.e. wall-clock time excluding weekends and holidays.
// Used by the Score/Indicator Reader to apply its staleness bound.
func (c *KRXCalendar) TradingDuration(from, to time.Time) time.Duration {
	from, to = from.In(seoul), to.In(seoul)
	if !to.After(from) {
		return 0
	}
	var total time.Duration
	firstDay := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, seoul)
	for day := firstDay; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !c.isTradingDay(day) {
			continue
		}
		open, close := sessionOpen(day), sessionClose(day)
		start, end := open, close
		if start.Before(from) {
			start = from
		}
		if end.After(to) {
			end = to
		}
		if end.After(start) {
			total += end.Sub(start)
		}
	}
	return total
}

// NextClose returns the instant of the next session close strictly after t.
func (c *KRXCalendar) NextClose(t time.Time) time.Time {
	local := t.In(seoul)
	day := local
	for i := 0; i < 3660; i++ {
		if c.isTradingDay(day) {
			close := sessionClose(day)
			if close.After(local) {
				return close
			}
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}
