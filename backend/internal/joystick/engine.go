// Package joystick turns keyboard direction flags into joystick override
// vectors for the emulated controllers.
package joystick

import (
	"math"
	"sync"

	"github.com/soar/xremu/backend/internal/input"
)

// Vector is a 2D joystick displacement. Y grows backward.
type Vector struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Mover receives override vectors for one controller's joystick.
type Mover interface {
	OverrideMove(x, y float64)
}

// Resolver looks up the joystick of the controller held in a hand. It
// returns false when no such controller is attached.
type Resolver interface {
	Joystick(hand input.Hand) (Mover, bool)
}

// Directions holds the four independent direction flags of one hand.
type Directions struct {
	Left     bool
	Right    bool
	Forward  bool
	Backward bool
}

// Vector reduces the flags to a unit vector, or (0, 0) when no direction
// is held. Opposite flags cancel on their axis.
func (d Directions) Vector() Vector {
	var x, y float64
	if d.Left {
		x--
	}
	if d.Right {
		x++
	}
	if d.Forward {
		y--
	}
	if d.Backward {
		y++
	}
	if x == 0 && y == 0 {
		return Vector{}
	}
	scale := math.Sqrt(x*x + y*y)
	return Vector{X: x / scale, Y: y / scale}
}

func (d *Directions) set(a input.Action, v bool) bool {
	switch a {
	case input.JoystickLeft:
		d.Left = v
	case input.JoystickRight:
		d.Right = v
	case input.JoystickForward:
		d.Forward = v
	case input.JoystickBackward:
		d.Backward = v
	default:
		return false
	}
	return true
}

// Engine tracks direction flags per hand and pushes the resulting override
// vector to the addressed controller on every change.
type Engine struct {
	mu     sync.Mutex
	target Resolver
	dirs   map[input.Hand]*Directions
}

func NewEngine(target Resolver) *Engine {
	e := &Engine{
		target: target,
		dirs:   make(map[input.Hand]*Directions, len(input.Hands)),
	}
	for _, h := range input.Hands {
		e.dirs[h] = &Directions{}
	}
	return e
}

// Press sets the flag for a direction action. It returns false, and changes
// nothing, when the action is not a direction.
func (e *Engine) Press(hand input.Hand, a input.Action) bool {
	return e.setFlag(hand, a, true)
}

// Release clears the flag for a direction action.
func (e *Engine) Release(hand input.Hand, a input.Action) bool {
	return e.setFlag(hand, a, false)
}

func (e *Engine) setFlag(hand input.Hand, a input.Action, v bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	d, ok := e.dirs[hand]
	if !ok {
		return false
	}
	return d.set(a, v)
}

// Directions returns a copy of the flags held for a hand.
func (e *Engine) Directions(hand input.Hand) Directions {
	e.mu.Lock()
	defer e.mu.Unlock()

	if d, ok := e.dirs[hand]; ok {
		return *d
	}
	return Directions{}
}

// RecomputeAndEmit computes the override vector of a hand and sends it to
// that hand's joystick. A hand without an attached controller is skipped.
func (e *Engine) RecomputeAndEmit(hand input.Hand) Vector {
	v := e.Directions(hand).Vector()
	if e.target == nil {
		return v
	}
	if m, ok := e.target.Joystick(hand); ok && m != nil {
		m.OverrideMove(v.X, v.Y)
	}
	return v
}

// EmitAll recomputes and emits for both hands.
func (e *Engine) EmitAll() {
	for _, h := range input.Hands {
		e.RecomputeAndEmit(h)
	}
}

// ResetAll clears every flag and emits (0, 0) to both hands. Called when the
// host loses input focus, so no key stays held.
func (e *Engine) ResetAll() {
	e.mu.Lock()
	for _, d := range e.dirs {
		*d = Directions{}
	}
	e.mu.Unlock()

	e.EmitAll()
}
