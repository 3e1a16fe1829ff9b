// Package settings persists the user facing emulator settings as JSON.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Transform is a default device pose.
type Transform struct {
	Position [3]float64 `json:"position" mapstructure:"position"`
	Rotation [4]float64 `json:"rotation" mapstructure:"rotation"`
}

// Dimension is the size of the emulated room in meters.
type Dimension struct {
	X float64 `json:"x" mapstructure:"x"`
	Y float64 `json:"y" mapstructure:"y"`
	Z float64 `json:"z" mapstructure:"z"`
}

// Device pose keys.
const (
	Headset         = "headset"
	LeftController  = "left-controller"
	RightController = "right-controller"
)

type Settings struct {
	StereoOn          bool                 `json:"stereoOn" mapstructure:"stereoOn"`
	ActionMappingOn   bool                 `json:"actionMappingOn" mapstructure:"actionMappingOn"`
	DefaultPose       map[string]Transform `json:"defaultPose" mapstructure:"defaultPose"`
	DeviceKey         string               `json:"deviceKey" mapstructure:"deviceKey"`
	KeyboardMappingOn bool                 `json:"keyboardMappingOn" mapstructure:"keyboardMappingOn"`
	RoomDimension     Dimension            `json:"roomDimension" mapstructure:"roomDimension"`
}

// DefaultTransforms places the headset at standing eye height with the
// controllers held in front of it.
func DefaultTransforms() map[string]Transform {
	return map[string]Transform{
		Headset:         {Position: [3]float64{0, 1.7, 0}, Rotation: [4]float64{0, 0, 0, 1}},
		LeftController:  {Position: [3]float64{-0.25, 1.5, -0.4}, Rotation: [4]float64{0, 0, 0, 1}},
		RightController: {Position: [3]float64{0.25, 1.5, -0.4}, Rotation: [4]float64{0, 0, 0, 1}},
	}
}

func Defaults() Settings {
	return Settings{
		StereoOn:          false,
		ActionMappingOn:   true,
		DefaultPose:       DefaultTransforms(),
		DeviceKey:         "Meta Quest Pro",
		KeyboardMappingOn: true,
		RoomDimension:     Dimension{X: 6, Y: 3, Z: 6},
	}
}

// Store reads and writes settings at a fixed path.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load returns the stored settings. A missing file yields the defaults;
// missing keys keep their default value.
func (s *Store) Load() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := Defaults()

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Debug().Str("path", s.path).Msg("No settings file, using defaults")
			return out, nil
		}
		return out, fmt.Errorf("error reading settings: %w", err)
	}

	if err := v.Unmarshal(&out); err != nil {
		return Defaults(), fmt.Errorf("error decoding settings: %w", err)
	}
	return out, nil
}

// Save writes settings to the store path.
func (s *Store) Save(st Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := viper.New()
	v.SetConfigType("json")
	v.Set("stereoOn", st.StereoOn)
	v.Set("actionMappingOn", st.ActionMappingOn)
	v.Set("defaultPose", st.DefaultPose)
	v.Set("deviceKey", st.DeviceKey)
	v.Set("keyboardMappingOn", st.KeyboardMappingOn)
	v.Set("roomDimension", st.RoomDimension)

	if err := v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("error writing settings: %w", err)
	}
	return nil
}
