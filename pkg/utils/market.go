package utils

import (
	"time"
)

// IndiaLocation is the timezone for Indian markets.
var IndiaLocation *time.Location

func init() {
	var err error
	IndiaLocation, err = time.LoadLocation("Asia/Kolkata")
	if err != nil {
		// Fallback to UTC+5:30
		IndiaLocation = time.FixedZone("IST", 5*60*60+30*60)
	}
}

// Strategy trading window in minutes from midnight IST. Entries start after
// the opening auction settles and stop ahead of the MIS square-off.
const (
	tradingWindowOpen  = 9*60 + 30  // 09:30
	tradingWindowClose = 15*60 + 15 // 15:15
)

// InTradingWindow reports whether t falls inside the strategy trading
// window (09:30-15:15 IST on a weekday).
func InTradingWindow(t time.Time) bool {
	t = t.In(IndiaLocation)

	if t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		return false
	}

	minutes := t.Hour()*60 + t.Minute()
	return minutes >= tradingWindowOpen && minutes <= tradingWindowClose
}

// NextWeekday returns the next occurrence of weekday on or after from.
func NextWeekday(from time.Time, weekday time.Weekday) time.Time {
	days := (int(weekday) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, days)
}
