package content

import (
	"strings"
	"time"
)

var cest = time.FixedZone("CEST", 2*60*60)

var (
	// ForceResyncEpoch is the oldest watermark still served incrementally.
	ForceResyncEpoch = time.Date(2016, time.September, 30, 0, 0, 0, 0, cest)
	// BaselineEpoch replaces watermarks older than ForceResyncEpoch, forcing a full resync.
	BaselineEpoch = time.Date(2015, time.January, 1, 0, 0, 0, 0, cest)
)

// EffectiveWatermark applies the resync clamp and converts the watermark to UTC.
func EffectiveWatermark(since time.Time) time.Time {
	if since.Before(ForceResyncEpoch) {
		return BaselineEpoch.UTC()
	}
	return since.UTC()
}

// ParseSince parses the since query parameter as an RFC 3339 timestamp.
func ParseSince(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, &ValidationError{Field: "since", Message: "parameter is required"}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil && strings.Contains(raw, " ") {
		// An unescaped "+" in the offset arrives as a space after query decoding.
		t, err = time.Parse(time.RFC3339, strings.ReplaceAll(raw, " ", "+"))
	}
	if err != nil {
		return time.Time{}, &ValidationError{Field: "since", Message: "expected an RFC 3339 timestamp such as 2016-10-01T00:00:00+02:00"}
	}
	return t, nil
}
