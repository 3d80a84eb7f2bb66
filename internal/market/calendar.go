package market

import "time"

// Market-status hint values used in prompts. Quiet is reserved for
// early-close sessions; the holiday table has no such entries yet.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
	StatusQuiet  = "quiet"
)

// Badge labels for the rendered email header.
const (
	BadgeOpen   = "Market Day"
	BadgeClosed = "Market Closed"
)

// Closed reports whether US equity markets are closed for t's calendar
// date: weekends plus the fixed federal market holiday table. Intraday
// hours are ignored so an evening digest on a trading day still reads
// as a market day.
func Closed(t time.Time) bool {
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return true
	}
	return isHoliday(t)
}

// Status returns the market-status hint for t.
func Status(t time.Time) string {
	if Closed(t) {
		return StatusClosed
	}
	return StatusOpen
}

// Badge returns the header badge label for t.
func Badge(t time.Time) string {
	if Closed(t) {
		return BadgeClosed
	}
	return BadgeOpen
}

// isHoliday checks t's date against the observed holiday set for its
// year. Fixed-date holidays shift to the nearest weekday when they land
// on a weekend.
func isHoliday(t time.Time) bool {
	y, m, d := t.Date()
	for _, h := range holidays(y) {
		hy, hm, hd := h.Date()
		if hy == y && hm == m && hd == d {
			return true
		}
	}
	return false
}

// holidays returns the observed US market holidays for a year:
// New Year's Day, MLK Jr Day, Presidents Day, Memorial Day, Juneteenth,
// Independence Day, Labor Day, Thanksgiving, Christmas.
func holidays(year int) []time.Time {
	fixed := []time.Time{
		time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.June, 19, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.July, 4, 0, 0, 0, 0, time.UTC),
		time.Date(year, time.December, 25, 0, 0, 0, 0, time.UTC),
	}
	out := make([]time.Time, 0, 9)
	for _, h := range fixed {
		out = append(out, observed(h))
	}
	out = append(out,
		nthWeekday(year, time.January, time.Monday, 3),
		nthWeekday(year, time.February, time.Monday, 3),
		lastWeekday(year, time.May, time.Monday),
		nthWeekday(year, time.September, time.Monday, 1),
		nthWeekday(year, time.November, time.Thursday, 4),
	)
	return out
}

// observed shifts a weekend holiday to the adjacent weekday: Saturday
// observes Friday, Sunday observes Monday.
func observed(h time.Time) time.Time {
	switch h.Weekday() {
	case time.Saturday:
		return h.AddDate(0, 0, -1)
	case time.Sunday:
		return h.AddDate(0, 0, 1)
	}
	return h
}

func nthWeekday(year int, month time.Month, weekday time.Weekday, n int) time.Time {
	d := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	for d.Weekday() != weekday {
		d = d.AddDate(0, 0, 1)
	}
	return d.AddDate(0, 0, 7*(n-1))
}

func lastWeekday(year int, month time.Month, weekday time.Weekday) time.Time {
	d := time.Date(year, month+1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, -1)
	for d.Weekday() != weekday {
		d = d.AddDate(0, 0, -1)
	}
	return d
}
