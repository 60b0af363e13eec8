package clock

import (
	"testing"
	"time"
)

func TestFakeAfterFuncFiresOnAdvance(t *testing.T) {
	t.Parallel()

	c := Fake(time.Unix(0, 0))
	fired := 0
	c.AfterFunc(time.Second, func() { fired++ })

	c.Advance(999 * time.Millisecond)
	if fired != 0 {
		t.Fatalf("timer fired early")
	}
	c.Advance(time.Millisecond)
	if fired != 1 {
		t.Fatalf("expected timer to fire once, got %d", fired)
	}
	c.Advance(time.Hour)
	if fired != 1 {
		t.Fatalf("one-shot timer fired again")
	}
}

func TestFakeStopPreventsFire(t *testing.T) {
	t.Parallel()

	c := Fake(time.Unix(0, 0))
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if c.PendingCount() != 1 {
		t.Fatalf("expected one pending timer")
	}
	if !timer.Stop() {
		t.Fatalf("expected stop to report pending timer")
	}
	if timer.Stop() {
		t.Fatalf("second stop should report false")
	}
	c.Advance(2 * time.Second)
	if fired {
		t.Fatalf("stopped timer fired")
	}
	if c.PendingCount() != 0 {
		t.Fatalf("expected no pending timers")
	}
}

func TestFakeFiresInDeadlineOrder(t *testing.T) {
	t.Parallel()

	c := Fake(time.Unix(0, 0))
	var order []int
	c.AfterFunc(3*time.Second, func() { order = append(order, 3) })
	c.AfterFunc(time.Second, func() { order = append(order, 1) })
	c.AfterFunc(2*time.Second, func() { order = append(order, 2) })

	c.Advance(5 * time.Second)
	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestFakeNowAdvances(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := Fake(start)
	c.Advance(1500 * time.Millisecond)
	if got := c.Now().Sub(start); got != 1500*time.Millisecond {
		t.Fatalf("unexpected elapsed time: %s", got)
	}
}

func TestNilTimerStop(t *testing.T) {
	t.Parallel()

	var timer *Timer
	if timer.Stop() {
		t.Fatalf("nil timer stop should report false")
	}
}
