package moderation

import (
	"strconv"
	"strings"
	"time"
)

var durationUnits = map[byte]time.Duration{
	's': time.Second,
	'm': time.Minute,
	'h': time.Hour,
	'd': 24 * time.Hour,
	'w': 7 * 24 * time.Hour,
}

// MaxMute matches the platform limit; longer restrictions count as permanent there.
const MaxMute = 366 * 24 * time.Hour

// ParseDuration reads "<n>[s|m|h|d|w]"; a bare number is minutes. Anything
// else yields def. Results are capped at MaxMute.
func ParseDuration(text string, def time.Duration) time.Duration {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return def
	}
	if unit, ok := durationUnits[text[len(text)-1]]; ok {
		if n, ok := digits(text[:len(text)-1]); ok {
			return capped(n, unit)
		}
		return def
	}
	if n, ok := digits(text); ok {
		return capped(n, time.Minute)
	}
	return def
}

func capped(n int64, unit time.Duration) time.Duration {
	if n > int64(MaxMute/unit) {
		return MaxMute
	}
	return time.Duration(n) * unit
}

func digits(s string) (int64, bool) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
