package util

import (
	"fmt"
	"math"
	"strings"
)

// SecondsToTimeString formats s as m:ss.
func SecondsToTimeString(s float64) string {
	if s < 0 {
		s = 0
	}
	sec := int(math.Round(s))
	min := sec / 60
	sec -= min * 60

	return fmt.Sprintf("%d:%02d", min, sec)
}

// SecondsToLongTimeString formats s for totals, e.g. "1 hr 20 min 12 sec".
func SecondsToLongTimeString(s float64) string {
	if s < 0 {
		s = 0
	}
	sec := int(math.Round(s))
	days := sec / 86400
	sec -= days * 86400
	hr := sec / 3600
	sec -= hr * 3600
	min := sec / 60
	sec -= min * 60

	var parts []string
	if days == 1 {
		parts = append(parts, "1 day")
	} else if days > 1 {
		parts = append(parts, fmt.Sprintf("%d days", days))
	}
	if hr > 0 {
		parts = append(parts, fmt.Sprintf("%d hr", hr))
	}
	if min > 0 {
		parts = append(parts, fmt.Sprintf("%d min", min))
	}
	if sec > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d sec", sec))
	}
	return strings.Join(parts, " ")
}
