package device

import (
	"math"

	"github.com/soar/xremu/backend/internal/input"
)

type JoystickState struct {
	Touched bool    `json:"touched"`
	Pressed bool    `json:"pressed"`
	ValueX  float64 `json:"valueX"`
	ValueY  float64 `json:"valueY"`
}

type AnalogState struct {
	Touched bool    `json:"touched"`
	Value   float64 `json:"value"`
}

type ButtonState struct {
	Touched bool `json:"touched"`
	Pressed bool `json:"pressed"`
}

// Pose is a controller transform in meters, with an x, y, z, w quaternion.
type Pose struct {
	Position   [3]float64 `json:"position"`
	Quaternion [4]float64 `json:"quaternion"`
}

// IdentityPose sits at the origin with no rotation.
var IdentityPose = Pose{Quaternion: [4]float64{0, 0, 0, 1}}

type HapticState struct {
	Type    string  `json:"type"`
	Value   float64 `json:"value"`
	Pulsing bool    `json:"pulsing"`
}

type ControllerState struct {
	Connected bool          `json:"connected"`
	Joystick  JoystickState `json:"joystick"`
	Trigger   AnalogState   `json:"trigger"`
	Grip      AnalogState   `json:"grip"`
	Button1   ButtonState   `json:"button1"`
	Button2   ButtonState   `json:"button2"`
	Pose      Pose          `json:"pose"`
	Haptic    HapticState   `json:"haptic"`
}

type ControllersState struct {
	Left  ControllerState `json:"left"`
	Right ControllerState `json:"right"`
}

type DeviceState struct {
	Name        string           `json:"name"`
	Controllers ControllersState `json:"controllers"`
}

// Controller returns the state of the controller held in hand, or nil for an
// unknown hand.
func (s *DeviceState) Controller(hand input.Hand) *ControllerState {
	switch hand {
	case input.Left:
		return &s.Controllers.Left
	case input.Right:
		return &s.Controllers.Right
	}
	return nil
}

type DeltaChanges struct {
	Name  *string          `json:"name,omitempty"`
	Left  *ControllerState `json:"left,omitempty"`
	Right *ControllerState `json:"right,omitempty"`
}

func (d *DeltaChanges) IsEmpty() bool {
	return d.Name == nil &&
		d.Left == nil &&
		d.Right == nil
}

const (
	analogThreshold = 0.01
	poseThreshold   = 1e-4
)

func floatEqual(a, b, threshold float64) bool {
	return math.Abs(a-b) < threshold
}

func poseEqual(a, b Pose) bool {
	for i := range a.Position {
		if !floatEqual(a.Position[i], b.Position[i], poseThreshold) {
			return false
		}
	}
	for i := range a.Quaternion {
		if !floatEqual(a.Quaternion[i], b.Quaternion[i], poseThreshold) {
			return false
		}
	}
	return true
}

func controllerEqual(a, b ControllerState) bool {
	return a.Connected == b.Connected &&
		a.Joystick.Touched == b.Joystick.Touched &&
		a.Joystick.Pressed == b.Joystick.Pressed &&
		floatEqual(a.Joystick.ValueX, b.Joystick.ValueX, analogThreshold) &&
		floatEqual(a.Joystick.ValueY, b.Joystick.ValueY, analogThreshold) &&
		a.Trigger.Touched == b.Trigger.Touched &&
		floatEqual(a.Trigger.Value, b.Trigger.Value, analogThreshold) &&
		a.Grip.Touched == b.Grip.Touched &&
		floatEqual(a.Grip.Value, b.Grip.Value, analogThreshold) &&
		a.Button1 == b.Button1 &&
		a.Button2 == b.Button2 &&
		poseEqual(a.Pose, b.Pose) &&
		a.Haptic == b.Haptic
}

func ComputeDelta(old, new_ DeviceState) *DeltaChanges {
	d := &DeltaChanges{}

	if old.Name != new_.Name {
		d.Name = &new_.Name
	}
	if !controllerEqual(old.Controllers.Left, new_.Controllers.Left) {
		d.Left = &new_.Controllers.Left
	}
	if !controllerEqual(old.Controllers.Right, new_.Controllers.Right) {
		d.Right = &new_.Controllers.Right
	}

	return d
}
