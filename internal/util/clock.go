package util

import (
	"fmt"
	"time"
)

var kst = time.FixedZone("KST", 9*60*60)

// FormatKST formats t in Korea Standard Time.
func FormatKST(t time.Time, layout string) string {
	return t.In(kst).Format(layout)
}

// FormatClock renders a countdown as mm:ss. Negative durations show 00:00.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// FormatElapsed renders a duration as "Xm Ys".
func FormatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d / time.Second)
	return fmt.Sprintf("%dm %ds", total/60, total%60)
}
