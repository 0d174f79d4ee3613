package conversation

import "time"

// Clock abstracts timer creation so the state machine can run against short
// deterministic durations in tests instead of production wall-clock values.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer mirrors the subset of time.Timer the session needs. Reset is only
// called from the session goroutine after the previous firing was consumed
// or the timer was stopped.
type Timer interface {
	C() <-chan time.Time
	Stop() bool
	Reset(d time.Duration) bool
}

type realClock struct{}

// RealClock returns the wall-clock implementation.
func RealClock() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTimer(d time.Duration) Timer {
	return &realTimer{t: time.NewTimer(d)}
}

type realTimer struct {
	t *time.Timer
}

func (t *realTimer) C() <-chan time.Time { return t.t.C }

func (t *realTimer) Stop() bool { return t.t.Stop() }

func (t *realTimer) Reset(d time.Duration) bool {
	if !t.t.Stop() {
		select {
		case <-t.t.C:
		default:
		}
	}
	return t.t.Reset(d)
}
