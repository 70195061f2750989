package scheduler

import "time"

// Clock is the time source for evaluation and timers.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending call.
type Timer interface {
	Stop() bool
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// untilNextTick returns the delay from now to the next multiple of tick.
func untilNextTick(now time.Time, tick time.Duration) time.Duration {
	next := now.Truncate(tick).Add(tick)
	return next.Sub(now)
}
