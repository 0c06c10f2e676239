package ratelimiter

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var periodPattern = regexp.MustCompile(`^(\d+)([a-z]+)$`)

const day = 24 * time.Hour

// ParsePeriod converts a compact period such as "15m", "1d" or "1mo" into a
// duration. Units are y (365 days), mo (30 days), w, d, h, m and s. Calendar
// lengths are deliberately ignored so every process computes the same window.
func ParsePeriod(period string) (time.Duration, error) {
	m := periodPattern.FindStringSubmatch(period)
	if m == nil {
		return 0, &FormatError{Period: period, Reason: "expected <number><unit>"}
	}

	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, &FormatError{Period: period, Reason: err.Error()}
	}
	if n == 0 {
		return 0, &FormatError{Period: period, Reason: "period must be positive"}
	}

	var unit time.Duration
	switch m[2] {
	case "y":
		unit = 365 * day
	case "mo":
		unit = 30 * day
	case "w":
		unit = 7 * day
	case "d":
		unit = day
	case "h":
		unit = time.Hour
	case "m":
		unit = time.Minute
	case "s":
		unit = time.Second
	default:
		return 0, &FormatError{Period: period, Reason: "unknown unit " + m[2]}
	}

	if n > int64(1<<63-1)/int64(unit) {
		return 0, &FormatError{Period: period, Reason: "duration overflows"}
	}
	return time.Duration(n) * unit, nil
}

// FormatPeriod renders d as days, hours, minutes, seconds and milliseconds,
// omitting zero components, e.g. "1d2h30m".
func FormatPeriod(d time.Duration) string {
	var sb strings.Builder

	parts := []struct {
		unit   time.Duration
		suffix string
	}{
		{day, "d"},
		{time.Hour, "h"},
		{time.Minute, "m"},
		{time.Second, "s"},
		{time.Millisecond, "ms"},
	}
	for _, p := range parts {
		if n := d / p.unit; n > 0 {
			sb.WriteString(strconv.FormatInt(int64(n), 10))
			sb.WriteString(p.suffix)
			d -= n * p.unit
		}
	}
	return sb.String()
}
