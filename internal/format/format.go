// Package format renders recording metadata for listings.
package format

import (
	"fmt"
	"time"
)

// Duration formats a call length as H:MM:SS, or M:SS under an hour.
// Sub-second remainders are dropped.
func Duration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// When formats a recording date relative to now: the time of day for today,
// "yesterday" with the time, otherwise the full date.
func When(t, now time.Time) string {
	t = t.In(now.Location())
	switch {
	case sameDay(t, now):
		return "today " + t.Format("15:04")
	case t.Before(now) && sameDay(t, now.AddDate(0, 0, -1)):
		return "yesterday " + t.Format("15:04")
	default:
		return t.Format("2006-01-02 15:04")
	}
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.Date()
	y2, m2, d2 := b.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// Size formats a file size in bytes for human display.
// Uses MB for sizes >= 1MB, KB otherwise.
func Size(bytes int64) string {
	const (
		kb = 1024
		mb = 1024 * kb
	)
	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/mb)
	case bytes >= kb:
		return fmt.Sprintf("%d KB", bytes/kb)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
