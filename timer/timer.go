// Package timer provides a restartable timer on top of time.Timer, used
// by the session package for the hold, keepalive and connect-retry
// timers (RFC 4271 §10).
package timer

import "time"

// Timer wraps time.Timer with an interval it remembers, so it can be
// reset to its original duration without the caller re-specifying it.
type Timer struct {
	timer    *time.Timer
	interval time.Duration
	running  bool
}

// New creates a stopped Timer; call Reset to arm it.
func New(d time.Duration, f func()) *Timer {
	t := &Timer{interval: d}
	t.timer = time.AfterFunc(d, t.preflight(f))
	t.timer.Stop()
	return t
}

// preflight marks the timer as no longer running before invoking f, so
// Running() is accurate from inside f itself.
func (t *Timer) preflight(f func()) func() {
	return func() {
		t.running = false
		f()
	}
}

// Reset (re)arms the timer at its configured interval.
func (t *Timer) Reset() {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
	t.timer.Reset(t.interval)
	t.running = true
}

// ResetTo (re)arms the timer at d, remembering d as the new interval for
// subsequent Reset calls.
func (t *Timer) ResetTo(d time.Duration) {
	t.interval = d
	t.Reset()
}

// Stop cancels the timer. Safe to call on an already-stopped timer.
func (t *Timer) Stop() {
	if !t.timer.Stop() {
		select {
		case <-t.timer.C:
		default:
		}
	}
	t.running = false
}

// Running reports whether the timer is currently counting down.
func (t *Timer) Running() bool {
	return t.running
}

// Interval returns the timer's configured duration.
func (t *Timer) Interval() time.Duration {
	return t.interval
}
