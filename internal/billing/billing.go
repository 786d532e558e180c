// Package billing converts session time into elapsed durations and payments.
package billing

import (
	"fmt"
	"math"
	"time"
)

// Rate is charged for every started hour of a session.
const Rate = 20

const millisPerHour = float64(time.Hour / time.Millisecond)

// Result is the billing figure for one session segment.
type Result struct {
	Elapsed time.Duration
	Hours   float64
	Payment int64
}

// Compute bills the segment between login and end. Any partial hour counts
// as a full hour. A zero login instant or a negative span bills nothing.
func Compute(login, end time.Time) Result {
	if login.IsZero() || end.IsZero() {
		return Result{}
	}

	elapsed := end.Sub(login)
	hours := float64(elapsed.Milliseconds()) / millisPerHour
	payment := int64(math.Ceil(hours)) * Rate
	if payment < 0 {
		payment = 0
	}

	return Result{Elapsed: elapsed, Hours: hours, Payment: payment}
}

// FormatDuration renders d as "{h}h {m}m {s}s", discarding sub-second time.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
