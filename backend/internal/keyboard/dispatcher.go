// Package keyboard dispatches host keyboard events to the emulated
// controllers, or passes them through to the page when they are not bound.
package keyboard

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"github.com/soar/xremu/backend/internal/input"
	"github.com/soar/xremu/backend/internal/joystick"
)

type EventType string

const (
	KeyDown  EventType = "keydown"
	KeyUp    EventType = "keyup"
	KeyPress EventType = "keypress"
)

// Event is a host keyboard event, reduced to the fields needed to replay it
// on the page.
type Event struct {
	Type        EventType `json:"type"`
	Key         string    `json:"key"`
	Code        string    `json:"code,omitempty"`
	Location    int       `json:"location,omitempty"`
	Repeat      bool      `json:"repeat,omitempty"`
	IsComposing bool      `json:"isComposing,omitempty"`
	CtrlKey     bool      `json:"ctrlKey,omitempty"`
	ShiftKey    bool      `json:"shiftKey,omitempty"`
	AltKey      bool      `json:"altKey,omitempty"`
	MetaKey     bool      `json:"metaKey,omitempty"`
}

// PassThrough receives events the dispatcher did not consume.
type PassThrough interface {
	PassThrough(ev Event)
}

// PassThroughFunc adapts a function to PassThrough.
type PassThroughFunc func(ev Event)

func (f PassThroughFunc) PassThrough(ev Event) { f(ev) }

// Controls is the control state store written by trigger, grip and button
// keys.
type Controls interface {
	SetAnalog(hand input.Hand, a input.Action, value float64)
	SetPressed(hand input.Hand, a input.Action, pressed bool)
}

// Dispatcher routes key events. While action mapping is on, bound keys drive
// the controllers and are consumed; everything else is passed through.
type Dispatcher struct {
	mapper    *input.Mapper
	engine    *joystick.Engine
	controls  Controls
	pass      PassThrough
	mappingOn atomic.Bool

	mu   sync.Mutex
	held map[input.Binding]struct{} // trigger, grip and button bindings currently down
}

func NewDispatcher(mapper *input.Mapper, engine *joystick.Engine, controls Controls, pass PassThrough, actionMappingEnabled bool) *Dispatcher {
	d := &Dispatcher{
		mapper:   mapper,
		engine:   engine,
		controls: controls,
		pass:     pass,
		held:     make(map[input.Binding]struct{}),
	}
	d.mappingOn.Store(actionMappingEnabled)
	return d
}

// ActionMapping reports whether bound keys are intercepted.
func (d *Dispatcher) ActionMapping() bool {
	return d.mappingOn.Load()
}

// SetActionMapping turns key interception on or off. Turning it off releases
// every held direction and control, since the matching key-up will be
// passed through.
func (d *Dispatcher) SetActionMapping(on bool) {
	if d.mappingOn.Swap(on) == on {
		return
	}
	log.Info().Bool("enabled", on).Msg("Action mapping toggled")
	if !on {
		d.releaseControls()
		d.engine.ResetAll()
	}
}

// Handle dispatches ev by type. It returns true when the event was consumed.
func (d *Dispatcher) Handle(ev Event) bool {
	switch ev.Type {
	case KeyDown:
		return d.OnKeyDown(ev)
	case KeyUp:
		return d.OnKeyUp(ev)
	case KeyPress:
		return d.OnKeyPress(ev)
	}
	log.Debug().Str("type", string(ev.Type)).Msg("Unknown key event type")
	d.passThrough(ev)
	return false
}

// OnKeyDown presses the bound action of ev.Key.
func (d *Dispatcher) OnKeyDown(ev Event) bool {
	b, ok := d.resolve(ev.Key)
	if !ok {
		d.passThrough(ev)
		return false
	}
	d.apply(b, true)
	return true
}

// OnKeyUp releases the bound action of ev.Key.
func (d *Dispatcher) OnKeyUp(ev Event) bool {
	b, ok := d.resolve(ev.Key)
	if !ok {
		d.passThrough(ev)
		return false
	}
	d.apply(b, false)
	return true
}

// OnKeyPress swallows bound keys and passes the rest through.
func (d *Dispatcher) OnKeyPress(ev Event) bool {
	if _, ok := d.resolve(ev.Key); ok {
		return true
	}
	d.passThrough(ev)
	return false
}

// Blur releases every held direction and control after the host loses
// focus, since the key-ups will never arrive.
func (d *Dispatcher) Blur() {
	d.releaseControls()
	d.engine.ResetAll()
}

func (d *Dispatcher) resolve(key string) (input.Binding, bool) {
	if !d.mappingOn.Load() {
		return input.Binding{}, false
	}
	return d.mapper.Resolve(key)
}

func (d *Dispatcher) apply(b input.Binding, down bool) {
	switch {
	case b.Action.IsDirection():
		if down {
			d.engine.Press(b.Hand, b.Action)
		} else {
			d.engine.Release(b.Hand, b.Action)
		}
	default:
		d.mu.Lock()
		if down {
			d.held[b] = struct{}{}
		} else {
			delete(d.held, b)
		}
		d.mu.Unlock()
		d.setControl(b, down)
	}
	d.engine.EmitAll()
}

func (d *Dispatcher) setControl(b input.Binding, down bool) {
	if !b.Action.IsAnalog() {
		d.controls.SetPressed(b.Hand, b.Action, down)
		return
	}
	v := 0.0
	if down {
		v = 1
	}
	d.controls.SetAnalog(b.Hand, b.Action, v)
}

func (d *Dispatcher) releaseControls() {
	d.mu.Lock()
	held := d.held
	d.held = make(map[input.Binding]struct{})
	d.mu.Unlock()

	for b := range held {
		d.setControl(b, false)
	}
}

func (d *Dispatcher) passThrough(ev Event) {
	if d.pass != nil {
		d.pass.PassThrough(ev)
	}
}
