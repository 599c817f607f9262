package util

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ParseTime tries RFC3339, RFC3339Nano, and unix seconds. Returns (t, true) if any worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return time.Unix(ts, 0), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// SnapMode selects which interval boundary SnapToInterval picks.
type SnapMode string

const (
	SnapFloor   SnapMode = "floor"
	SnapCeil    SnapMode = "ceil"
	SnapNearest SnapMode = "nearest"
)

var freqRe = regexp.MustCompile(`^\s*(\d+)\s*([mhdMHD])\s*$`)

// ParseFreq converts a frequency like "30m", "1h", or "1d" to a duration.
func ParseFreq(freq string) (time.Duration, error) {
	m := freqRe.FindStringSubmatch(freq)
	if m == nil {
		return 0, fmt.Errorf("freq must look like '30m', '1h', or '1d', got %q", freq)
	}
	n, _ := strconv.Atoi(m[1])
	var unit time.Duration
	switch m[2] {
	case "m", "M":
		unit = time.Minute
	case "h", "H":
		unit = time.Hour
	case "d", "D":
		unit = 24 * time.Hour
	}
	return time.Duration(n) * unit, nil
}

// SnapToInterval snaps t onto a UTC grid with the given step.
// SnapFloor picks the start of the current interval, SnapCeil the start of
// the next (unless t is already on a boundary), SnapNearest the closest
// boundary rounding up on a tie.
func SnapToInterval(t time.Time, step time.Duration, mode SnapMode) time.Time {
	if step <= 0 {
		return t.UTC()
	}
	ts := t.UTC().Unix()
	sec := int64(step / time.Second)
	rem := ts % sec

	var snapped int64
	switch mode {
	case SnapFloor:
		snapped = ts - rem
	case SnapCeil:
		if rem == 0 {
			snapped = ts
		} else {
			snapped = ts + (sec - rem)
		}
	default: // SnapNearest
		if rem < sec/2 {
			snapped = ts - rem
		} else {
			snapped = ts + (sec - rem)
		}
	}
	return time.Unix(snapped, 0).UTC()
}
