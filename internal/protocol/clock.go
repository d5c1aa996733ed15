package protocol

import (
	"fmt"
	"time"
)

// clockLayout is the 12-hour display form private-message times and
// delete-for-everyone timestamps travel in, e.g. "10:15:30 AM".
const clockLayout = "3:04:05 PM"

// FormatClock renders a stored timestamp in the wire's clock-string form.
func FormatClock(t time.Time) string {
	return t.Format(clockLayout)
}

// ParseClock reconstructs a full timestamp from a wire clock string by
// anchoring it to now's date. Delete markers are matched against persisted
// rows this way; the contract is fragile across midnight, which the protocol
// leaves unspecified, so a marker submitted on one day matches rows of the
// day it is processed.
func ParseClock(s string, now time.Time) (time.Time, error) {
	clk, err := time.Parse(clockLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing clock string %q: %w", s, err)
	}
	y, m, d := now.Date()
	return time.Date(y, m, d, clk.Hour(), clk.Minute(), clk.Second(), 0, now.Location()), nil
}
