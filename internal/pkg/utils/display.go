package utils

import (
	"fmt"
	"time"
)

// TruncateAddress shortens a hex address to 0x1234...abcd.
func TruncateAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// FormatInterval renders a repeat interval in its largest whole unit.
func FormatInterval(seconds uint64) string {
	switch {
	case seconds == 0:
		return "One-time"
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d minutes", seconds/60)
	case seconds < 86400:
		return fmt.Sprintf("%d hours", seconds/3600)
	case seconds < 604800:
		return fmt.Sprintf("%d days", seconds/86400)
	case seconds < 2592000:
		return fmt.Sprintf("%d weeks", seconds/604800)
	default:
		return fmt.Sprintf("%d months", seconds/2592000)
	}
}

// FormatNextExecution describes when next happens relative to now.
func FormatNextExecution(next, now time.Time) string {
	diff := next.Sub(now)
	switch {
	case diff < 0:
		return "Overdue"
	case diff < time.Minute:
		return "In less than a minute"
	case diff < time.Hour:
		return fmt.Sprintf("In %d min", int(diff/time.Minute))
	case diff < 24*time.Hour:
		return fmt.Sprintf("In %d hours", int(diff/time.Hour))
	default:
		return next.Format("Jan 2, 03:04 PM")
	}
}
