package util

import (
	"time"
	_ "time/tzdata"

	"meridian/internal/domain"
)

// TradingCalendar answers market-hours questions for US equities: regular
// session 09:30-16:00 America/New_York on weekdays that are not NYSE
// holidays. Early closes are treated as full sessions.
type TradingCalendar struct {
	market domain.Market
	loc    *time.Location
}

// NewTradingCalendar creates a TradingCalendar for the given market.
func NewTradingCalendar(market domain.Market) *TradingCalendar {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*3600)
	}
	return &TradingCalendar{market: market, loc: loc}
}

// Location returns the exchange time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }

// IsTradingDay reports whether the exchange holds a session on t's date
// (evaluated in exchange time).
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	d := t.In(tc.loc)
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !isNYSEHoliday(d.Year(), d.Month(), d.Day())
}

// IsMarketOpen returns whether the regular session is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	if !tc.IsTradingDay(t) {
		return false
	}
	open, close := tc.session(t.In(tc.loc))
	return !t.Before(open) && t.Before(close)
}

// NextOpen returns the next session open at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	d := t.In(tc.loc)
	for i := 0; i < 15; i++ {
		day := d.AddDate(0, 0, i)
		if !tc.IsTradingDay(day) {
			continue
		}
		open, _ := tc.session(day)
		if !t.After(open) {
			return open
		}
	}
	return time.Time{}
}

// NextClose returns the next session close at or after t.
func (tc *TradingCalendar) NextClose(t time.Time) time.Time {
	d := t.In(tc.loc)
	for i := 0; i < 15; i++ {
		day := d.AddDate(0, 0, i)
		if !tc.IsTradingDay(day) {
			continue
		}
		_, close := tc.session(day)
		if !t.After(close) {
			return close
		}
	}
	return time.Time{}
}

func (tc *TradingCalendar) session(d time.Time) (time.Time, time.Time) {
	y, m, day := d.Date()
	open := time.Date(y, m, day, 9, 30, 0, 0, tc.loc)
	close := time.Date(y, m, day, 16, 0, 0, 0, tc.loc)
	return open, close
}

// ---------------------------------------------------------------------------
// NYSE holiday rules
// ---------------------------------------------------------------------------

func isNYSEHoliday(y int, m time.Month, d int) bool {
	date := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for _, h := range nyseHolidays(y) {
		if h.Equal(date) {
			return true
		}
	}
	return false
}

func nyseHolidays(y int) []time.Time {
	days := []time.Time{
		newYearObserved(y),
		nthWeekday(y, time.January, time.Monday, 3),  // Martin Luther King Jr. Day
		nthWeekday(y, time.February, time.Monday, 3), // Washington's Birthday
		easter(y).AddDate(0, 0, -2),                  // Good Friday
		lastWeekday(y, time.May, time.Monday),        // Memorial Day
		observed(time.Date(y, time.July, 4, 0, 0, 0, 0, time.UTC)),
		nthWeekday(y, time.September, time.Monday, 1),  // Labor Day
		nthWeekday(y, time.November, time.Thursday, 4), // Thanksgiving
		observed(time.Date(y, time.December, 25, 0, 0, 0, 0, time.UTC)),
	}
	if y >= 2022 {
		days = append(days, observed(time.Date(y, time.June, 19, 0, 0, 0, 0, time.UTC)))
	}
	return days
}

// newYearObserved differs from observed: a Saturday New Year's Day is not
// moved back into the prior year.
func newYearObserved(y int) time.Time {
	d := time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	if d.Weekday() == time.Sunday {
		return d.AddDate(0, 0, 1)
	}
	return d
}

// observed shifts a Saturday holiday to Friday and a Sunday holiday to Monday.
func observed(d time.Time) time.Time {
	switch d.Weekday() {
	case time.Saturday:
		return d.AddDate(0, 0, -1)
	case time.Sunday:
		return d.AddDate(0, 0, 1)
	}
	return d
}

func nthWeekday(y int, m time.Month, wd time.Weekday, n int) time.Time {
	d := time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(d.Weekday()) + 7) % 7
	return d.AddDate(0, 0, offset+7*(n-1))
}

func lastWeekday(y int, m time.Month, wd time.Weekday) time.Time {
	d := time.Date(y, m+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	offset := (int(d.Weekday()) - int(wd) + 7) % 7
	return d.AddDate(0, 0, -offset)
}

// easter returns Easter Sunday (Gregorian) for year y.
func easter(y int) time.Time {
	a := y % 19
	b := y / 100
	c := y % 100
	d := b / 4
	e := b % 4
	f := (b + 8) / 25
	g := (b - f + 1) / 3
	h := (19*a + b - d - g + 15) % 30
	i := c / 4
	k := c % 4
	l := (32 + 2*e + 2*i - h - k) % 7
	m := (a + 11*h + 22*l) / 451
	month := (h + l - 7*m + 114) / 31
	day := (h+l-7*m+114)%31 + 1
	return time.Date(y, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}
