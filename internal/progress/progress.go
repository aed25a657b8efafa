// Package progress provides percentage sinks that stay monotonic when fed
// from concurrent workers.
package progress

import "sync"

// Sink receives a completion percentage in [0, 100].
type Sink func(percent int)

// Discard is a Sink that ignores every report.
func Discard(int) {}

// Percent returns ceil(done / total * 100), clamped to [0, 100].
// An empty total counts as complete.
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	if done <= 0 {
		return 0
	}
	p := (done*100 + total - 1) / total
	if p > 100 {
		return 100
	}
	return p
}

// Monotonic wraps sink so that it only ever sees non-decreasing values.
// Reports that arrive late with a lower value are dropped. A nil sink
// yields Discard.
func Monotonic(sink Sink) Sink {
	if sink == nil {
		return Discard
	}
	var mu sync.Mutex
	last := -1
	return func(percent int) {
		mu.Lock()
		defer mu.Unlock()
		if percent <= last {
			return
		}
		last = percent
		sink(percent)
	}
}
