package domain

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	DefaultDurationDays = 30
	// MaxDurationDays bounds any resolved duration to a hundred years.
	MaxDurationDays = 100 * 365
)

var durationPattern = regexp.MustCompile(`^\s*(\d+)\s*([^\d\s]*)\s*$`)

var unitDays = map[string]int{
	"":       1,
	"day":    1,
	"days":   1,
	"өдөр":   1,
	"хоног":  1,
	"month":  30,
	"months": 30,
	"сар":    30,
	"year":   365,
	"years":  365,
	"жил":    365,
}

// ParseDuration converts a label such as "30 хоног", "3 сар", "1 жил" or
// "90" into days. Empty, unknown or non-positive labels yield defaultDays.
func ParseDuration(label string, defaultDays int) int {
	m := durationPattern.FindStringSubmatch(label)
	if m == nil {
		return defaultDays
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return defaultDays
	}
	multiplier, ok := unitDays[strings.ToLower(m[2])]
	if !ok || n > MaxDurationDays/multiplier {
		return defaultDays
	}
	return n * multiplier
}

// ResolveDays prefers an explicit positive day count, then the label, then
// the default.
func ResolveDays(days *int, label *string, defaultDays int) int {
	if days != nil && *days > 0 && *days <= MaxDurationDays {
		return *days
	}
	if label != nil {
		return ParseDuration(*label, defaultDays)
	}
	return defaultDays
}
