package resolver

import "time"

// Timer is a pending callback armed by a Clock.
type Timer interface {
	Stop() bool
}

// Clock arms timers. Tests substitute a manual clock so timeouts fire on demand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns a Clock backed by the runtime timers.
func SystemClock() Clock {
	return systemClock{}
}
