// Package clock abstracts the wall clock and one-shot timers so reconnect,
// restart and debounce timing can be driven deterministically in tests.
//
// Production code uses Real(). Tests use Fake(start) and move time with
// Advance; AfterFunc callbacks then run synchronously in the goroutine that
// called Advance.
package clock

import "time"

// Clock is the subset of the time package the console needs.
type Clock interface {
	Now() time.Time

	// AfterFunc calls f in its own goroutine (real) or synchronously
	// during Advance (fake) once d has elapsed.
	AfterFunc(d time.Duration, f func()) *Timer
}

// Timer is a pending AfterFunc call.
type Timer struct {
	stopFunc func() bool
}

// Stop prevents the call from happening. It reports whether the timer was
// still pending.
func (t *Timer) Stop() bool {
	if t == nil || t.stopFunc == nil {
		return false
	}
	return t.stopFunc()
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) *Timer {
	timer := time.AfterFunc(d, f)
	return &Timer{stopFunc: timer.Stop}
}
