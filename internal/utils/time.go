package utils

import (
	"time"
)

// Now returns the current time in UTC truncated to microseconds, the precision both databases keep.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

// NormalizeTime brings client-supplied times to the same form as Now.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}
