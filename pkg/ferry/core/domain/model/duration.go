package model

import (
	"math"
	"strconv"
	"strings"
	"time"
)

const (
	secondsPerMinute = 60
	secondsPerHour   = 60 * secondsPerMinute
	secondsPerDay    = 24 * secondsPerHour
)

// FormatDuration renders a duration given in seconds as "1d2h30m40s33ms".
// Zero components are omitted. A nil input yields "" and a zero duration "0s".
// Milliseconds are rounded from the fractional second.
func FormatDuration(seconds *float64) string {
	if seconds == nil {
		return ""
	}
	total := math.Abs(*seconds)
	if total == 0 {
		return "0s"
	}

	whole := int64(total)
	millis := int64(math.Round((total - float64(whole)) * 1000))
	if millis >= 1000 {
		whole++
		millis -= 1000
	}

	parts := []struct {
		value int64
		unit  string
	}{
		{whole / secondsPerDay, "d"},
		{whole % secondsPerDay / secondsPerHour, "h"},
		{whole % secondsPerHour / secondsPerMinute, "m"},
		{whole % secondsPerMinute, "s"},
		{millis, "ms"},
	}

	var b strings.Builder
	for _, p := range parts {
		if p.value > 0 {
			b.WriteString(strconv.FormatInt(p.value, 10))
			b.WriteString(p.unit)
		}
	}
	if b.Len() == 0 {
		return "0s"
	}
	return b.String()
}

// FormatElapsed formats the time between start and end.
func FormatElapsed(start, end time.Time) string {
	secs := end.Sub(start).Seconds()
	return FormatDuration(&secs)
}
