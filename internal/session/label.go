package session

import (
	"fmt"
	"math"
)

// formatIntervalLabel renders an interval in days as the short human label
// shown on the four rating buttons.
func formatIntervalLabel(days float64) string {
	rounded := int(math.Round(days))
	switch {
	case rounded < 1:
		return "now"
	case rounded < 7:
		return fmt.Sprintf("%dd", rounded)
	case rounded < 30:
		return fmt.Sprintf("%dw", rounded/7)
	case rounded < 365:
		return fmt.Sprintf("%dmo", rounded/30)
	default:
		return fmt.Sprintf("%dy", rounded/365)
	}
}
