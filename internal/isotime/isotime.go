// Package isotime provides ISO 8601 timestamp helpers used across the
// normalizer and the tool layer: tolerant parsing, canonical formatting
// with an explicit UTC offset, and date/week keys for stats grouping.
package isotime

import (
	"fmt"
	"time"
)

// Layout is the canonical output layout.  It always renders an explicit
// numeric offset ("+00:00" for UTC), never the "Z" shorthand, so that
// normalized timestamps compare lexicographically.
const Layout = "2006-01-02T15:04:05-07:00"

// millisThreshold is the magnitude above which a numeric epoch value is
// interpreted as milliseconds rather than seconds.
const millisThreshold = 1e10

// Parse parses an ISO 8601 / RFC 3339 timestamp.  Values ending in "Z"
// and values with fractional seconds are accepted.
func Parse(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("isotime: parse %q: %w", value, err)
	}
	return t, nil
}

// Ensure normalizes value into the canonical layout, converting a trailing
// "Z" into an explicit "+00:00" offset.  Unparseable values are returned
// unchanged rather than dropped.
func Ensure(value string) string {
	t, err := Parse(value)
	if err != nil {
		return value
	}
	return t.Format(Layout)
}

// FromEpoch converts a numeric epoch value to a UTC time.  Values above
// the milliseconds threshold are treated as epoch milliseconds.
func FromEpoch(epoch float64) time.Time {
	if epoch > millisThreshold {
		epoch = epoch / 1000
	}
	sec := int64(epoch)
	nsec := int64((epoch - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

// DateKey returns the YYYY-MM-DD aggregation key for t in UTC.
func DateKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// WeekKey returns the ISO year-week aggregation key for t in UTC, in the
// form "2025-W07".
func WeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}
