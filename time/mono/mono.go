// Package mono provides the process-monotonic clock used for all engine
// timestamps. Values are integer milliseconds elapsed since process start
// and are unaffected by wall-clock adjustments. Wall time is used for
// logging only.
package mono

import "time"

var start = time.Now()

// Now returns the number of milliseconds elapsed since the process began.
func Now() int64 {
	return time.Since(start).Milliseconds()
}

// Since returns the number of milliseconds elapsed since the given
// monotonic timestamp.
func Since(ts int64) int64 {
	return Now() - ts
}
