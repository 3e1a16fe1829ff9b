package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soar/xremu/backend/internal/haptic"
	"github.com/soar/xremu/backend/internal/input"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}

func newTestDevice(t *testing.T, resolution haptic.Resolution) (*Device, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	d := New(Options{
		Name:       "Meta Quest Pro",
		Resolution: resolution,
		Clock:      clock.Now,
		DefaultPose: map[input.Hand]Pose{
			input.Left: {Position: [3]float64{-0.25, 1.5, -0.4}, Quaternion: [4]float64{0, 0, 0, 1}},
		},
	})
	d.Attach(input.Left)
	d.Attach(input.Right)
	drain(d)
	return d, clock
}

func drain(d *Device) []Snapshot {
	var out []Snapshot
	for {
		select {
		case s := <-d.Changes():
			out = append(out, s)
		default:
			return out
		}
	}
}

func TestDevice_AttachDetach(t *testing.T) {
	d := New(Options{Name: "Meta Quest 3"})
	assert.False(t, d.Attached(input.Left))

	d.Attach(input.Left)
	assert.True(t, d.Attached(input.Left))

	state := d.CurrentState()
	assert.Equal(t, "Meta Quest 3", state.Name)
	assert.True(t, state.Controllers.Left.Connected)
	assert.False(t, state.Controllers.Right.Connected)
	assert.Equal(t, IdentityPose, state.Controllers.Left.Pose)
	assert.Equal(t, "vibration", state.Controllers.Left.Haptic.Type)

	d.Detach(input.Left)
	assert.False(t, d.Attached(input.Left))
	assert.False(t, d.CurrentState().Controllers.Left.Connected)

	assert.Len(t, drain(d), 2)
}

func TestDevice_DefaultPose(t *testing.T) {
	d, _ := newTestDevice(t, haptic.ResolveImmediately)

	state := d.CurrentState()
	assert.Equal(t, [3]float64{-0.25, 1.5, -0.4}, state.Controllers.Left.Pose.Position)
	assert.Equal(t, IdentityPose, state.Controllers.Right.Pose)
}

func TestDevice_JoystickOverride(t *testing.T) {
	d, _ := newTestDevice(t, haptic.ResolveImmediately)

	m, ok := d.Joystick(input.Left)
	require.True(t, ok)
	m.OverrideMove(0, -1)

	js := d.CurrentState().Controllers.Left.Joystick
	assert.Equal(t, 0.0, js.ValueX)
	assert.Equal(t, -1.0, js.ValueY)
	assert.True(t, js.Touched)

	m.OverrideMove(0, 0)
	assert.False(t, d.CurrentState().Controllers.Left.Joystick.Touched)
	assert.Len(t, drain(d), 2)
}

func TestDevice_JoystickMissingHand(t *testing.T) {
	d := New(Options{})
	d.Attach(input.Right)

	_, ok := d.Joystick(input.Left)
	assert.False(t, ok)
}

func TestDevice_DetachedControllerIgnoresWrites(t *testing.T) {
	d, _ := newTestDevice(t, haptic.ResolveImmediately)
	m, _ := d.Joystick(input.Left)
	d.Detach(input.Left)
	drain(d)

	m.OverrideMove(1, 0)
	d.SetAnalog(input.Left, input.Trigger, 1)

	assert.Equal(t, ControllerState{}, d.CurrentState().Controllers.Left)
	assert.Empty(t, drain(d))
}

func TestDevice_AnalogAndButtons(t *testing.T) {
	d, _ := newTestDevice(t, haptic.ResolveImmediately)

	d.SetAnalog(input.Right, input.Trigger, 1)
	d.SetAnalog(input.Right, input.Grip, 0.5)
	d.SetPressed(input.Left, input.Button2, true)

	state := d.CurrentState()
	assert.Equal(t, AnalogState{Touched: true, Value: 1}, state.Controllers.Right.Trigger)
	assert.Equal(t, AnalogState{Touched: true, Value: 0.5}, state.Controllers.Right.Grip)
	assert.Equal(t, ButtonState{Touched: true, Pressed: true}, state.Controllers.Left.Button2)
	assert.Equal(t, ButtonState{}, state.Controllers.Left.Button1)

	d.SetAnalog(input.Right, input.Trigger, 0)
	d.SetPressed(input.Left, input.Button2, false)

	state = d.CurrentState()
	assert.Equal(t, AnalogState{}, state.Controllers.Right.Trigger)
	assert.Equal(t, ButtonState{}, state.Controllers.Left.Button2)
}

func TestDevice_PulseAndTick(t *testing.T) {
	d, clock := newTestDevice(t, haptic.ResolveImmediately)

	res, ok := d.Pulse(input.Left, 0.8, 100*time.Millisecond)
	require.True(t, ok)
	outcome, settled := res.Settled()
	require.True(t, settled)
	assert.Equal(t, haptic.Preempted, outcome)

	assert.Equal(t, 0.0, d.HapticValue(input.Left))
	assert.Equal(t, 0.0, d.CurrentState().Controllers.Left.Haptic.Value)

	assert.True(t, d.Tick(clock.advance(50*time.Millisecond)))
	assert.Equal(t, 0.8, d.HapticValue(input.Left))
	assert.Equal(t, HapticState{Type: "vibration", Value: 0.8, Pulsing: true}, d.CurrentState().Controllers.Left.Haptic)

	assert.False(t, d.Tick(clock.now))

	assert.True(t, d.Tick(clock.advance(100*time.Millisecond)))
	assert.Equal(t, HapticState{Type: "vibration"}, d.CurrentState().Controllers.Left.Haptic)
	assert.Len(t, drain(d), 2)
}

func TestDevice_PulseMissingHand(t *testing.T) {
	d := New(Options{})
	_, ok := d.Pulse(input.Left, 1, time.Second)
	assert.False(t, ok)
	assert.Equal(t, 0.0, d.HapticValue(input.Left))
}

func TestDevice_DetachSettlesDeferredPulse(t *testing.T) {
	d, _ := newTestDevice(t, haptic.ResolveOnCompletion)

	res, ok := d.Pulse(input.Right, 1, time.Minute)
	require.True(t, ok)
	_, settled := res.Settled()
	require.False(t, settled)

	d.Detach(input.Right)

	outcome, settled := res.Settled()
	require.True(t, settled)
	assert.Equal(t, haptic.Preempted, outcome)
}

func TestDevice_PoseAndForceEmit(t *testing.T) {
	d, _ := newTestDevice(t, haptic.ResolveImmediately)

	pose := Pose{Position: [3]float64{1, 2, 3}, Quaternion: [4]float64{0, 0.7071, 0, 0.7071}}
	assert.True(t, d.SetPose(input.Right, pose))
	assert.Empty(t, drain(d))

	d.ForceEmitPose()
	snaps := drain(d)
	require.Len(t, snaps, 1)
	assert.Equal(t, EventPose, snaps[0].Event)
	assert.Equal(t, pose, snaps[0].State.Controllers.Right.Pose)

	d.Detach(input.Left)
	assert.False(t, d.SetPose(input.Left, pose))
}

func TestDevice_RunTicksUntilCancelled(t *testing.T) {
	d := New(Options{TickInterval: time.Millisecond, Resolution: haptic.ResolveOnCompletion})
	d.Attach(input.Left)

	res, ok := d.Pulse(input.Left, 0.5, 5*time.Millisecond)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	outcome, err := res.Wait(waitCtx)
	require.NoError(t, err)
	assert.Equal(t, haptic.Completed, outcome)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestComputeDelta(t *testing.T) {
	base := DeviceState{Name: "Meta Quest Pro"}
	base.Controllers.Left.Connected = true

	t.Run("no change", func(t *testing.T) {
		assert.True(t, ComputeDelta(base, base).IsEmpty())
	})

	t.Run("small analog jitter ignored", func(t *testing.T) {
		next := base
		next.Controllers.Left.Trigger.Value = 0.005
		assert.True(t, ComputeDelta(base, next).IsEmpty())
	})

	t.Run("small haptic value reported", func(t *testing.T) {
		next := base
		next.Controllers.Left.Haptic.Value = 0.005
		delta := ComputeDelta(base, next)
		require.NotNil(t, delta.Left)
		assert.Equal(t, 0.005, delta.Left.Haptic.Value)
	})

	t.Run("pose change reported", func(t *testing.T) {
		next := base
		next.Controllers.Right.Pose.Position[1] = 0.01
		delta := ComputeDelta(base, next)
		assert.Nil(t, delta.Left)
		require.NotNil(t, delta.Right)
		assert.Equal(t, 0.01, delta.Right.Pose.Position[1])
	})

	t.Run("name and button", func(t *testing.T) {
		next := base
		next.Name = "Meta Quest 3"
		next.Controllers.Left.Button1.Pressed = true
		delta := ComputeDelta(base, next)
		require.NotNil(t, delta.Name)
		assert.Equal(t, "Meta Quest 3", *delta.Name)
		require.NotNil(t, delta.Left)
		assert.True(t, delta.Left.Button1.Pressed)
		assert.Nil(t, delta.Right)
	})
}
