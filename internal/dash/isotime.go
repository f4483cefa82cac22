package dash

import (
	"time"

	xsd "github.com/unki2aut/go-xsd-types"
)

// ParseISODuration parses an ISO-8601 duration (xsd:duration), restricted
// to the PnDTnHnMnS subset DASH MPDs actually use — Year/Month components
// are rejected since they're not fixed-length and this spec only ever
// needs a concrete time.Duration. Fractional seconds are truncated.
// Malformed input returns (0, false); callers log a warning and continue
// with zero rather than aborting the parse.
func ParseISODuration(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}

	d, err := xsd.ParseDuration(s)
	if err != nil || d == nil {
		return 0, false
	}
	if d.Year != 0 || d.Month != 0 {
		return 0, false
	}

	total := time.Duration(d.Day) * 24 * time.Hour
	total += time.Duration(d.Hour) * time.Hour
	total += time.Duration(d.Minute) * time.Minute
	total += time.Duration(int64(d.Second)) * time.Second

	if d.Negative {
		total = -total
	}
	return total, true
}

// ParseISOInstant parses an ISO-8601 UTC instant
// (YYYY-MM-DDThh:mm:ss.sZ) as used by availabilityStartTime,
// availabilityEndTime, and publishTime. Malformed input returns
// (zero time, false).
func ParseISOInstant(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}

	dt, err := xsd.ParseDateTime(s)
	if err != nil || dt == nil {
		return time.Time{}, false
	}
	return time.Time(*dt), true
}
