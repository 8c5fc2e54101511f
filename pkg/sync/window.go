package sync

import (
	"time"
)

// Window is a half-open extraction interval [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

// partition splits [start, end) into consecutive windows no longer than
// size. The final window is shorter when the span is not a multiple of
// size. An empty or inverted span yields no windows.
func partition(start, end time.Time, size time.Duration) []Window {
	if !start.Before(end) || size <= 0 {
		return nil
	}

	var windows []Window
	for cursor := start; cursor.Before(end); {
		next := cursor.Add(size)
		if next.After(end) {
			next = end
		}
		windows = append(windows, Window{Start: cursor, End: next})
		cursor = next
	}
	return windows
}
