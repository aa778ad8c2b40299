package helper

import (
	"fmt"
	"time"
)

// FormatTTL renders a duration with one decimal in its largest unit.
func FormatTTL(d time.Duration) string {
	if d.Hours() >= 1 {
		return fmt.Sprintf("%.1fh", d.Hours())
	}
	if d.Minutes() >= 1 {
		return fmt.Sprintf("%.1fm", d.Minutes())
	}
	if d.Seconds() >= 1 {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dns", d.Nanoseconds())
}
