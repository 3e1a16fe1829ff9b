// Package emulator wires the key dispatcher, the joystick engine and the
// emulated device together, and keeps the persisted settings in sync.
package emulator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soar/xremu/backend/internal/device"
	"github.com/soar/xremu/backend/internal/haptic"
	"github.com/soar/xremu/backend/internal/input"
	"github.com/soar/xremu/backend/internal/joystick"
	"github.com/soar/xremu/backend/internal/keyboard"
	"github.com/soar/xremu/backend/internal/settings"
)

// Options configures an Emulator.
type Options struct {
	KeyMapping   input.KeyMapping
	TickInterval time.Duration
	Resolution   haptic.Resolution
}

// Emulator is the running virtual device plus its keyboard front end.
type Emulator struct {
	device      *device.Device
	engine      *joystick.Engine
	dispatcher  *keyboard.Dispatcher
	store       *settings.Store
	passthrough chan keyboard.Event

	mu       sync.RWMutex
	settings settings.Settings
}

// New loads settings from store and builds an emulator with both
// controllers attached.
func New(store *settings.Store, opts Options) (*Emulator, error) {
	st, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading settings: %w", err)
	}
	if opts.KeyMapping == nil {
		opts.KeyMapping = input.DefaultKeyMapping()
	}

	dev := device.New(device.Options{
		Name:         st.DeviceKey,
		TickInterval: opts.TickInterval,
		Resolution:   opts.Resolution,
		DefaultPose:  controllerPoses(st.DefaultPose),
	})
	for _, hand := range input.Hands {
		dev.Attach(hand)
	}

	mapper := input.NewMapper(opts.KeyMapping)
	for key, bindings := range mapper.Conflicts() {
		log.Warn().
			Str("key", key).
			Stringer("effective", bindings[len(bindings)-1]).
			Int("bindings", len(bindings)).
			Msg("Key bound to more than one action")
	}

	e := &Emulator{
		device:      dev,
		engine:      joystick.NewEngine(dev),
		store:       store,
		settings:    st,
		passthrough: make(chan keyboard.Event, 64),
	}
	e.dispatcher = keyboard.NewDispatcher(mapper, e.engine, dev, keyboard.PassThroughFunc(e.passThrough), st.ActionMappingOn)

	log.Info().
		Str("device", st.DeviceKey).
		Bool("actionMapping", st.ActionMappingOn).
		Stringer("haptics", opts.Resolution).
		Msg("Emulator ready")
	return e, nil
}

func controllerPoses(transforms map[string]settings.Transform) map[input.Hand]device.Pose {
	poses := make(map[input.Hand]device.Pose, 2)
	for hand, key := range map[input.Hand]string{
		input.Left:  settings.LeftController,
		input.Right: settings.RightController,
	} {
		if t, ok := transforms[key]; ok {
			poses[hand] = device.Pose{Position: t.Position, Quaternion: t.Rotation}
		}
	}
	return poses
}

// Device returns the emulated device.
func (e *Emulator) Device() *device.Device {
	return e.device
}

// PassThroughs returns the channel of key events that were not consumed.
func (e *Emulator) PassThroughs() <-chan keyboard.Event {
	return e.passthrough
}

// Run ticks the device until ctx is cancelled.
func (e *Emulator) Run(ctx context.Context) {
	e.device.Run(ctx)
}

// KeyEvent dispatches a host key event and reports whether it was consumed.
func (e *Emulator) KeyEvent(ev keyboard.Event) bool {
	return e.dispatcher.Handle(ev)
}

// Blur releases held directions after the host lost focus.
func (e *Emulator) Blur() {
	e.dispatcher.Blur()
}

// ActionMapping reports whether bound keys are intercepted.
func (e *Emulator) ActionMapping() bool {
	return e.dispatcher.ActionMapping()
}

// SetActionMapping turns key interception on or off and persists the choice.
func (e *Emulator) SetActionMapping(on bool) error {
	e.dispatcher.SetActionMapping(on)

	e.mu.Lock()
	e.settings.ActionMappingOn = on
	st := e.settings
	e.mu.Unlock()

	if err := e.store.Save(st); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	return nil
}

// Settings returns the current settings.
func (e *Emulator) Settings() settings.Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// Pulse schedules a haptic pulse on hand's controller.
func (e *Emulator) Pulse(hand input.Hand, value float64, duration time.Duration) (*haptic.Result, error) {
	res, ok := e.device.Pulse(hand, value, duration)
	if !ok {
		return nil, fmt.Errorf("no %s controller attached", hand)
	}
	return res, nil
}

func (e *Emulator) passThrough(ev keyboard.Event) {
	select {
	case e.passthrough <- ev:
	default:
		log.Debug().Str("key", ev.Key).Msg("Pass-through queue full, dropping key event")
	}
}
