// Package duration parses the short age strings used by CLI filters.
//
// Accepts "90m" style Go durations plus "7d" (days), "4w" (weeks) and "3mo"
// (30-day months).
package duration

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var calendar = regexp.MustCompile(`^(\d+)(d|w|mo)$`)

const day = 24 * time.Hour

// Parse converts s into a positive duration.
func Parse(s string) (time.Duration, error) {
	if m := calendar.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0, fmt.Errorf("invalid number: %w", err)
		}
		switch m[2] {
		case "d":
			return time.Duration(n) * day, nil
		case "w":
			return time.Duration(n) * 7 * day, nil
		default:
			return time.Duration(n) * 30 * day, nil
		}
	}

	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid duration %q (use 90m, 12h, 7d, 4w or 3mo)", s)
	}
	return d, nil
}

// Since returns the instant d before now.
func Since(s string, now time.Time) (time.Time, error) {
	d, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}
	return now.Add(-d), nil
}
