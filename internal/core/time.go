package core

import "time"

// TimeFormat is the canonical timestamp format used in markers, job
// listings and API responses: UTC with millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// FormatTime renders t in the canonical format, converting to UTC first.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeFormat)
}

// NowFormatted returns the current time in the canonical format.
func NowFormatted() string {
	return FormatTime(time.Now())
}

// ParseTime parses a canonical timestamp.
func ParseTime(s string) (time.Time, error) {
	return time.Parse(TimeFormat, s)
}
