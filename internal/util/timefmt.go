package util

import (
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
}

// UTCISO formats t as ISO-8601 UTC with a Z suffix and second precision.
func UTCISO(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(time.RFC3339)
}

// ParseTimestamp parses the timestamp shapes returned by the Integritas API.
// Values without a zone are taken as UTC.
func ParseTimestamp(value string) (time.Time, bool) {
	v := strings.TrimSpace(value)
	if v == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeTimestamp rewrites a parseable timestamp as ISO-8601 UTC and
// returns anything else unchanged.
func NormalizeTimestamp(value string) string {
	t, ok := ParseTimestamp(value)
	if !ok {
		return value
	}
	if t.Nanosecond() != 0 {
		return t.Format("2006-01-02T15:04:05.000Z07:00")
	}
	return t.Format(time.RFC3339)
}
