// Package haptic emulates a gamepad haptic actuator: timed vibration pulses
// whose value is committed and expired by an external tick.
package haptic

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Type is the actuator kind reported to content.
type Type string

const (
	Vibration  Type = "vibration"
	DualRumble Type = "dual-rumble"
)

// Outcome is how a pulse result settled.
type Outcome string

const (
	Preempted Outcome = "preempted"
	Completed Outcome = "completed"
)

// Resolution selects when the result returned by Pulse settles.
type Resolution int

const (
	// ResolveImmediately settles every pulse result with Preempted as soon
	// as it is scheduled. This matches what shipping headset browsers do and
	// is the default, although the gamepad extensions interface describes
	// a result that waits for the pulse to finish. Use ResolveOnCompletion
	// for that reading.
	ResolveImmediately Resolution = iota

	// ResolveOnCompletion keeps the result pending until the pulse expires
	// (Completed) or a later pulse supersedes it (Preempted).
	ResolveOnCompletion
)

func (r Resolution) String() string {
	switch r {
	case ResolveImmediately:
		return "immediate"
	case ResolveOnCompletion:
		return "deferred"
	}
	return fmt.Sprintf("Resolution(%d)", int(r))
}

// ParseResolution accepts "immediate" or "deferred".
func ParseResolution(s string) (Resolution, error) {
	switch s {
	case "immediate", "":
		return ResolveImmediately, nil
	case "deferred":
		return ResolveOnCompletion, nil
	}
	return 0, fmt.Errorf("unknown haptic resolution %q", s)
}

// State is the actuator's pulse state.
type State int

const (
	Idle State = iota
	Pulsing
)

func (s State) String() string {
	if s == Pulsing {
		return "pulsing"
	}
	return "idle"
}

// Result is the asynchronous outcome of a Pulse call. It settles exactly once.
type Result struct {
	once    sync.Once
	done    chan struct{}
	outcome Outcome
}

func newResult() *Result {
	return &Result{done: make(chan struct{})}
}

func (r *Result) resolve(o Outcome) {
	r.once.Do(func() {
		r.outcome = o
		close(r.done)
	})
}

// Done is closed once the result has settled.
func (r *Result) Done() <-chan struct{} {
	return r.done
}

// Settled reports whether the result has settled, and how.
func (r *Result) Settled() (Outcome, bool) {
	select {
	case <-r.done:
		return r.outcome, true
	default:
		return "", false
	}
}

// Wait blocks until the result settles or ctx is done.
func (r *Result) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-r.done:
		return r.outcome, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Actuator is one emulated haptic actuator. Pulse only stages a value; the
// value becomes visible on the next Update.
type Actuator struct {
	mu         sync.Mutex
	typ        Type
	resolution Resolution

	value   float64
	until   time.Time
	active  bool // until is set
	next    float64
	staged  bool // next is set
	pending *Result
}

// NewActuator creates an idle actuator.
func NewActuator(typ Type, resolution Resolution) *Actuator {
	return &Actuator{typ: typ, resolution: resolution}
}

func (a *Actuator) Type() Type { return a.typ }

// Pulse schedules a vibration of the given strength for duration, measured
// from now. Out of range values are clamped to [0, 1] and negative durations
// are treated as zero. A pulse still running is superseded.
func (a *Actuator) Pulse(now time.Time, value float64, duration time.Duration) *Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending != nil {
		a.pending.resolve(Preempted)
		a.pending = nil
	}

	if duration < 0 {
		duration = 0
	}
	a.next = clamp(value)
	a.staged = true
	a.until = now.Add(duration)
	a.active = true

	res := newResult()
	switch a.resolution {
	case ResolveOnCompletion:
		a.pending = res
	default:
		res.resolve(Preempted)
	}
	return res
}

// Update commits a staged value and expires a finished pulse. It returns
// true when the committed value changed.
func (a *Actuator) Update(now time.Time) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	changed := false
	if a.staged {
		a.value = a.next
		a.staged = false
		changed = true
	}

	if a.active && !now.Before(a.until) {
		a.value = 0
		a.active = false
		a.until = time.Time{}
		changed = true

		if a.pending != nil {
			a.pending.resolve(Completed)
			a.pending = nil
		}
	}
	return changed
}

// Value is the committed vibration strength.
func (a *Actuator) Value() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.value
}

// State reports Pulsing while a committed non-zero value is held by an
// unexpired pulse. A pulse that Update has not committed yet leaves the
// state as it was.
func (a *Actuator) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active && a.value > 0 {
		return Pulsing
	}
	return Idle
}

// Close settles a pending result with Preempted. Used when the controller
// owning the actuator goes away.
func (a *Actuator) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.pending != nil {
		a.pending.resolve(Preempted)
		a.pending = nil
	}
	a.staged = false
	a.active = false
	a.value = 0
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
