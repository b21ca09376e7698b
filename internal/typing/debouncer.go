// Package typing tracks who is typing where, and decides when the local
// user's typing signals go out. The debounce logic is a plain state machine
// driven by timestamps so it can be tested by simulated clock advancement.
package typing

import "time"

// Debouncer turns a stream of keystrokes into at most one "started typing"
// signal per burst and exactly one "stopped typing" signal after the quiet
// period elapses. It is not safe for concurrent use; callers serialize
// access (the client drives it from a single mutex-guarded path).
type Debouncer struct {
	quiet    time.Duration
	armed    bool
	deadline time.Time
}

// NewDebouncer creates a debouncer with the given quiet period.
func NewDebouncer(quiet time.Duration) *Debouncer {
	return &Debouncer{quiet: quiet}
}

// Keystroke records activity at now and re-arms the quiet timer. It reports
// whether this keystroke begins a new burst, i.e. whether a "typing: true"
// signal should be emitted. Every keystroke pushes the deadline out; only
// the first one in a burst returns true.
func (d *Debouncer) Keystroke(now time.Time) (emitStart bool) {
	emitStart = !d.armed
	d.armed = true
	d.deadline = now.Add(d.quiet)
	return emitStart
}

// Tick evaluates the timer at now. It reports whether the quiet period has
// elapsed and a "typing: false" signal should be emitted. Once it fires the
// machine disarms until the next keystroke.
func (d *Debouncer) Tick(now time.Time) (emitStop bool) {
	if d.armed && !now.Before(d.deadline) {
		d.armed = false
		return true
	}
	return false
}

// Flush disarms immediately and reports whether a "typing: false" signal is
// owed. Sending a message implicitly ends the typing session, so the sender
// calls Flush rather than waiting out the quiet period.
func (d *Debouncer) Flush() (emitStop bool) {
	if d.armed {
		d.armed = false
		return true
	}
	return false
}

// Cancel disarms without emitting anything. Used on conversation switch and
// unmount, where a trailing "stopped typing" for the old conversation would
// be wrong.
func (d *Debouncer) Cancel() {
	d.armed = false
}

// Armed reports whether a stop emission is pending.
func (d *Debouncer) Armed() bool {
	return d.armed
}

// Deadline returns when the pending stop would fire. Zero when disarmed.
func (d *Debouncer) Deadline() time.Time {
	if !d.armed {
		return time.Time{}
	}
	return d.deadline
}
