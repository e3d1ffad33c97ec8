package services

import "time"

// NeedsRefresh reports whether local rows must be re-synced: nothing stored, never synced, or last sync older than window.
func NeedsRefresh(lastKnown *time.Time, localRowCount int, window time.Duration, now time.Time) bool {
	if localRowCount == 0 || lastKnown == nil {
		return true
	}
	return now.Sub(*lastKnown) > window
}
