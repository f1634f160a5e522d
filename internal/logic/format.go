package logic

import (
	"fmt"

	"github.com/devpulse/stats-api/internal/models"
)

// DefaultDeltaThreshold hides deltas shorter than five minutes.
const DefaultDeltaThreshold int64 = 300

// NormalizeDelta returns 0 for deltas whose magnitude is below threshold.
func NormalizeDelta(delta, threshold int64) int64 {
	if threshold <= 0 {
		return delta
	}
	if delta > -threshold && delta < threshold {
		return 0
	}
	return delta
}

// FormatDuration renders seconds as "3h 07m" or "42m".
func FormatDuration(seconds int64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh %02dm", hours, minutes)
}

// FormatDelta renders a signed delta, collapsing small values to "0m".
func FormatDelta(delta, threshold int64) string {
	delta = NormalizeDelta(delta, threshold)
	switch {
	case delta > 0:
		return "+" + FormatDuration(delta)
	case delta < 0:
		return "-" + FormatDuration(delta)
	default:
		return "0m"
	}
}

// StatusLabel is the display text used in place of a duration for rows
// that could not be ranked.
func StatusLabel(s models.Status) string {
	switch s {
	case models.StatusOK:
		return ""
	case models.StatusPrivate:
		return "Private"
	case models.StatusNotFound:
		return "Not found"
	default:
		return "—"
	}
}
