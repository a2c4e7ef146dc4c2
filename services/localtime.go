package services

import (
	"fmt"
	"time"
)

// facility is the fixed zone every calendar computation is anchored to,
// independent of the server's TZ. Set once at boot.
var facility = time.FixedZone("UTC+09:00", 9*60*60)

// SetUTCOffset sets the facility zone to minutes east of UTC.
func SetUTCOffset(minutes int) {
	sign := '+'
	abs := minutes
	if minutes < 0 {
		sign = '-'
		abs = -minutes
	}
	facility = time.FixedZone(fmt.Sprintf("UTC%c%02d:%02d", sign, abs/60, abs%60), minutes*60)
}

// Location returns the facility zone.
func Location() *time.Location {
	return facility
}

// DayStart is 00:00 facility time on the local day containing t.
func DayStart(t time.Time) time.Time {
	l := t.In(facility)
	return time.Date(l.Year(), l.Month(), l.Day(), 0, 0, 0, 0, facility)
}

// MonthStart is 00:00 facility time on the 1st of the local month containing t.
func MonthStart(t time.Time) time.Time {
	l := t.In(facility)
	return time.Date(l.Year(), l.Month(), 1, 0, 0, 0, 0, facility)
}

// NextMonthStart is the exclusive upper bound of the local month containing t.
func NextMonthStart(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}

// BuildLocalTime is hour:minute:second facility time on the local day of base.
func BuildLocalTime(base time.Time, hour, minute, second int) time.Time {
	l := base.In(facility)
	return time.Date(l.Year(), l.Month(), l.Day(), hour, minute, second, 0, facility)
}
