package metrics

import (
	"fmt"
	"math"
	"time"
)

// FormatRelative renders how long ago past was, relative to ref.
// Anything under a minute reads "just now".
func FormatRelative(past, ref time.Time) string {
	diff := ref.Sub(past)
	if diff < time.Minute {
		return "just now"
	}
	if diff >= 24*time.Hour {
		days := int(diff / (24 * time.Hour))
		hours := int((diff % (24 * time.Hour)) / time.Hour)
		if hours == 0 {
			return fmt.Sprintf("%dd ago", days)
		}
		return fmt.Sprintf("%dd %dh ago", days, hours)
	}
	if diff >= time.Hour {
		return fmt.Sprintf("%dh ago", int(diff/time.Hour))
	}
	minutes := int(diff / time.Minute)
	if minutes < 1 {
		minutes = 1
	}
	return fmt.Sprintf("%dm ago", minutes)
}

// FormatHoursLabel renders an age in hours as "<1h", "Nh", "Nd" or "Nd Nh".
func FormatHoursLabel(hours float64) string {
	if hours <= 0 {
		return "<1h"
	}
	days := int(math.Floor(hours / 24))
	rem := int(math.Floor(math.Mod(hours, 24)))
	if days > 0 {
		if rem > 0 {
			return fmt.Sprintf("%dd %dh", days, rem)
		}
		return fmt.Sprintf("%dd", days)
	}
	if rem < 1 {
		rem = 1
	}
	return fmt.Sprintf("%dh", rem)
}
