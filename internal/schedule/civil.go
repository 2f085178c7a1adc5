// Package schedule converts newsroom civil time to UTC instants and resolves
// advertisement display status.
package schedule

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	// DateLayout is the civil date format accepted and produced by this package.
	DateLayout = "2006-01-02"
	// ClockLayout is the 24-hour clock format produced by ToCivil.
	ClockLayout = "15:04"

	standardOffset = -5 * time.Hour
	daylightOffset = -4 * time.Hour
)

var (
	ErrInvalidDate  = errors.New("invalid date")
	ErrInvalidClock = errors.New("invalid time of day")
)

var (
	clock12 = regexp.MustCompile(`^(\d{1,2}):(\d{2})\s*([AaPp][Mm])$`)
	clock24 = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)
)

// daylight applies the newsroom's fixed approximation of US Eastern DST:
// UTC-4 from March through October, UTC-5 otherwise. It deliberately ignores
// the real second-Sunday/first-Sunday transition dates.
func daylight(m time.Month) bool {
	return m >= time.March && m < time.November
}

// OffsetFor returns the UTC offset used for a civil date in month m.
func OffsetFor(m time.Month) time.Duration {
	if daylight(m) {
		return daylightOffset
	}
	return standardOffset
}

// ToInstant converts an Eastern civil date ("2006-01-02") and time of day
// ("3:04 PM" or "15:04") into a UTC instant.
//
// When the time of day cannot be parsed the instant for midnight of that date
// is still returned together with ErrInvalidClock, so callers that only warn
// keep the midnight fallback.
func ToInstant(date, clock string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(date))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
	}
	hour, minute, clockErr := parseClock(clock)
	local := time.Date(d.Year(), d.Month(), d.Day(), hour, minute, 0, 0, time.UTC)
	return local.Add(-OffsetFor(d.Month())), clockErr
}

// ToCivil renders a UTC instant as an Eastern civil date and 24-hour clock.
func ToCivil(t time.Time) (date, clock string) {
	u := t.UTC()
	local := u.Add(daylightOffset)
	if !daylight(local.Month()) {
		local = u.Add(standardOffset)
	}
	return local.Format(DateLayout), local.Format(ClockLayout)
}

// Format12 renders a 24-hour "15:04" clock as "3:04 PM". Unparseable input is
// returned unchanged.
func Format12(clock string) string {
	hour, minute, err := parseClock(clock)
	if err != nil {
		return clock
	}
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, minute, suffix)
}

func parseClock(clock string) (hour, minute int, err error) {
	s := strings.TrimSpace(clock)
	if m := clock12.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		if h < 1 || h > 12 || mins > 59 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, clock)
		}
		h %= 12
		if strings.EqualFold(m[3], "PM") {
			h += 12
		}
		return h, mins, nil
	}
	if m := clock24.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		mins, _ := strconv.Atoi(m[2])
		if h > 23 || mins > 59 {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, clock)
		}
		return h, mins, nil
	}
	return 0, 0, fmt.Errorf("%w: %q", ErrInvalidClock, clock)
}
