// Package device holds the emulated XR device: the control state of both
// controllers, their poses and haptic actuators, and the tick loop that
// advances the actuators.
package device

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soar/xremu/backend/internal/haptic"
	"github.com/soar/xremu/backend/internal/input"
	"github.com/soar/xremu/backend/internal/joystick"
)

const defaultTickInterval = 16 * time.Millisecond // ~60Hz

// EventPose marks a snapshot emitted by ForceEmitPose.
const EventPose = "pose"

// Snapshot is a device state sent on the Changes channel. Event is empty for
// ordinary changes.
type Snapshot struct {
	State DeviceState
	Event string
}

// Options configures a Device.
type Options struct {
	Name         string
	TickInterval time.Duration
	HapticType   haptic.Type
	Resolution   haptic.Resolution
	DefaultPose  map[input.Hand]Pose
	// Clock defaults to time.Now.
	Clock func() time.Time
}

type controller struct {
	device   *Device
	hand     input.Hand
	actuator *haptic.Actuator
}

// OverrideMove writes a keyboard joystick override into the controller state.
func (c *controller) OverrideMove(x, y float64) {
	c.device.update(c.hand, func(s *ControllerState) {
		s.Joystick.ValueX = x
		s.Joystick.ValueY = y
		s.Joystick.Touched = x != 0 || y != 0
	})
}

// Device is the emulated headset with up to two attached controllers.
type Device struct {
	opts        Options
	state       DeviceState
	controllers map[input.Hand]*controller
	changes     chan Snapshot
	mu          sync.RWMutex
}

func New(opts Options) *Device {
	if opts.TickInterval <= 0 {
		opts.TickInterval = defaultTickInterval
	}
	if opts.HapticType == "" {
		opts.HapticType = haptic.Vibration
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Device{
		opts:        opts,
		state:       DeviceState{Name: opts.Name},
		controllers: make(map[input.Hand]*controller),
		changes:     make(chan Snapshot, 64),
	}
}

// Changes returns the channel on which state changes are sent.
func (d *Device) Changes() <-chan Snapshot {
	return d.changes
}

// CurrentState returns a snapshot of the current device state.
func (d *Device) CurrentState() DeviceState {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

// Attach connects the controller for hand and gives it a haptic actuator.
// Attaching an already attached hand does nothing.
func (d *Device) Attach(hand input.Hand) {
	d.mu.Lock()
	if _, exists := d.controllers[hand]; exists {
		d.mu.Unlock()
		return
	}
	s := d.state.Controller(hand)
	if s == nil {
		d.mu.Unlock()
		return
	}

	c := &controller{
		device:   d,
		hand:     hand,
		actuator: haptic.NewActuator(d.opts.HapticType, d.opts.Resolution),
	}
	d.controllers[hand] = c

	pose, ok := d.opts.DefaultPose[hand]
	if !ok {
		pose = IdentityPose
	}
	*s = ControllerState{
		Connected: true,
		Pose:      pose,
		Haptic:    HapticState{Type: string(d.opts.HapticType)},
	}
	d.mu.Unlock()

	log.Info().Str("hand", string(hand)).Msg("Controller attached")
	d.emit("")
}

// Detach disconnects the controller for hand. Its actuator is closed, which
// settles any pending pulse result.
func (d *Device) Detach(hand input.Hand) {
	d.mu.Lock()
	c, exists := d.controllers[hand]
	if !exists {
		d.mu.Unlock()
		return
	}
	delete(d.controllers, hand)
	*d.state.Controller(hand) = ControllerState{}
	d.mu.Unlock()

	c.actuator.Close()
	log.Info().Str("hand", string(hand)).Msg("Controller detached")
	d.emit("")
}

// Attached reports whether a controller is attached for hand.
func (d *Device) Attached(hand input.Hand) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.controllers[hand]
	return ok
}

// Joystick returns the override target for hand's controller.
func (d *Device) Joystick(hand input.Hand) (joystick.Mover, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c, ok := d.controllers[hand]
	if !ok {
		return nil, false
	}
	return c, true
}

// SetAnalog sets the value of the trigger or grip of hand's controller.
func (d *Device) SetAnalog(hand input.Hand, a input.Action, value float64) {
	d.update(hand, func(s *ControllerState) {
		var st *AnalogState
		switch a {
		case input.Trigger:
			st = &s.Trigger
		case input.Grip:
			st = &s.Grip
		default:
			return
		}
		st.Value = value
		st.Touched = value > 0
	})
}

// SetPressed presses or releases button1 or button2 of hand's controller.
func (d *Device) SetPressed(hand input.Hand, a input.Action, pressed bool) {
	d.update(hand, func(s *ControllerState) {
		var st *ButtonState
		switch a {
		case input.Button1:
			st = &s.Button1
		case input.Button2:
			st = &s.Button2
		default:
			return
		}
		st.Pressed = pressed
		st.Touched = pressed
	})
}

// SetPose writes a transform into hand's controller without emitting it.
// Call ForceEmitPose once all poses of an update are written.
func (d *Device) SetPose(hand input.Hand, pose Pose) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.controllers[hand]; !ok {
		return false
	}
	d.state.Controller(hand).Pose = pose
	return true
}

// ForceEmitPose sends the current state even if nothing changed.
func (d *Device) ForceEmitPose() {
	d.emit(EventPose)
}

// Pulse schedules a haptic pulse on hand's controller. It returns false when
// no controller is attached for hand.
func (d *Device) Pulse(hand input.Hand, value float64, duration time.Duration) (*haptic.Result, bool) {
	d.mu.RLock()
	c, ok := d.controllers[hand]
	d.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return c.actuator.Pulse(d.opts.Clock(), value, duration), true
}

// HapticValue returns the committed actuator value of hand's controller.
func (d *Device) HapticValue(hand input.Hand) float64 {
	d.mu.RLock()
	c, ok := d.controllers[hand]
	d.mu.RUnlock()
	if !ok {
		return 0
	}
	return c.actuator.Value()
}

// Tick advances every attached actuator to now and publishes committed
// values. It returns true when any value changed.
func (d *Device) Tick(now time.Time) bool {
	d.mu.Lock()
	changed := false
	for _, hand := range input.Hands {
		c, ok := d.controllers[hand]
		if !ok {
			continue
		}
		if !c.actuator.Update(now) {
			continue
		}
		h := &d.state.Controller(hand).Haptic
		h.Value = c.actuator.Value()
		h.Pulsing = c.actuator.State() == haptic.Pulsing
		changed = true
	}
	d.mu.Unlock()

	if changed {
		d.emit("")
	}
	return changed
}

// Run ticks the device until ctx is cancelled, then closes every actuator.
func (d *Device) Run(ctx context.Context) {
	ticker := time.NewTicker(d.opts.TickInterval)
	defer ticker.Stop()

	log.Info().Dur("interval", d.opts.TickInterval).Msg("Device tick loop started")

	for {
		select {
		case <-ctx.Done():
			d.closeAll()
			return
		case <-ticker.C:
			d.Tick(d.opts.Clock())
		}
	}
}

func (d *Device) closeAll() {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, c := range d.controllers {
		c.actuator.Close()
	}
}

func (d *Device) update(hand input.Hand, fn func(*ControllerState)) {
	d.mu.Lock()
	if _, ok := d.controllers[hand]; !ok {
		d.mu.Unlock()
		return
	}
	fn(d.state.Controller(hand))
	d.mu.Unlock()

	d.emit("")
}

func (d *Device) emit(event string) {
	d.mu.RLock()
	s := Snapshot{State: d.state, Event: event}
	d.mu.RUnlock()

	select {
	case d.changes <- s:
	default:
		// Drop if channel is full to avoid blocking input handlers
	}
}
