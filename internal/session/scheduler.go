package session

import "time"

// Scheduler arms a single deferred callback. The controller keeps at most
// one timer pending at a time; cancel must guarantee the callback either
// already ran or never runs.
type Scheduler interface {
	After(d time.Duration, fire func()) (cancel func())
}

// TimerScheduler is the production Scheduler over time.AfterFunc. Tests use
// a virtual-clock fake instead.
type TimerScheduler struct{}

// After implements Scheduler.
func (TimerScheduler) After(d time.Duration, fire func()) func() {
	t := time.AfterFunc(d, fire)
	return func() { t.Stop() }
}
