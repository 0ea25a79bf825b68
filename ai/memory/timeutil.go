package memory

import (
	"fmt"
	"time"
)

// RelativeTimeLabel renders a created-at timestamp as a coarse human-readable
// age relative to now: "Just now" under a minute, then minutes, hours, days.
// A zero or future timestamp degrades to "Recently" rather than failing.
func RelativeTimeLabel(now time.Time, createdTs int64) string {
	if createdTs <= 0 {
		return "Recently"
	}
	delta := now.Sub(time.Unix(createdTs, 0))
	if delta < 0 {
		return "Recently"
	}
	switch {
	case delta < time.Minute:
		return "Just now"
	case delta < time.Hour:
		return fmt.Sprintf("%dm ago", int(delta.Minutes()))
	case delta < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(delta.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(delta.Hours()/24))
	}
}
