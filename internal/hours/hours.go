// Package hours implements the business hours gate: timezone-aware checks of
// whether a partner is currently accepting traffic, and the next instant it
// will open.
package hours

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/internal/partners"
)

// maxLookaheadDays bounds the NextOpen walk. A window that never opens within
// a week is treated as never opening.
const maxLookaheadDays = 7

// IsOpen reports whether the partner accepts traffic at the given instant.
// The window is [start, end) in the partner's local wall clock; an end time
// numerically before the start time crosses midnight.
func IsOpen(h partners.BusinessHours, now time.Time) (bool, error) {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return false, fmt.Errorf("load timezone %q: %w", h.Timezone, err)
	}

	local := now.In(loc)
	if !weekdayAllowed(local.Weekday(), h.WeekendsEnabled) {
		return false, nil
	}

	start, err := parseClock(h.StartLocal)
	if err != nil {
		return false, err
	}
	end, err := parseClock(h.EndLocal)
	if err != nil {
		return false, err
	}

	minutes := local.Hour()*60 + local.Minute()
	if end < start {
		// Window crosses midnight.
		return minutes >= start || minutes < end, nil
	}
	return minutes >= start && minutes < end, nil
}

// NextOpen returns the first instant at or after now at which the window
// opens, or nil when no opening exists within the lookahead bound.
func NextOpen(h partners.BusinessHours, now time.Time) (*time.Time, error) {
	loc, err := time.LoadLocation(h.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", h.Timezone, err)
	}

	start, err := parseClock(h.StartLocal)
	if err != nil {
		return nil, err
	}

	local := now.In(loc)
	for day := 0; day <= maxLookaheadDays; day++ {
		candidate := local.AddDate(0, 0, day)
		if !weekdayAllowed(candidate.Weekday(), h.WeekendsEnabled) {
			continue
		}

		openAt := time.Date(candidate.Year(), candidate.Month(), candidate.Day(),
			start/60, start%60, 0, 0, loc)
		if openAt.After(now) {
			utc := openAt.UTC()
			return &utc, nil
		}
	}

	return nil, nil
}

func weekdayAllowed(day time.Weekday, weekendsEnabled bool) bool {
	if weekendsEnabled {
		return true
	}
	return day != time.Saturday && day != time.Sunday
}

// parseClock converts "HH:MM" into minutes since local midnight.
func parseClock(value string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid clock value %q", value)
	}

	return hour*60 + minute, nil
}
