package input

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Hand identifies one of the two emulated controllers.
type Hand string

const (
	Left  Hand = "left"
	Right Hand = "right"
)

// Hands lists both hands in scan order.
var Hands = []Hand{Left, Right}

// ParseHand converts a hand name to a Hand.
func ParseHand(s string) (Hand, error) {
	switch Hand(s) {
	case Left, Right:
		return Hand(s), nil
	}
	return "", fmt.Errorf("unknown hand %q", s)
}

// Action is a control input that a key can be bound to.
type Action string

const (
	JoystickLeft     Action = "joystickLeft"
	JoystickRight    Action = "joystickRight"
	JoystickForward  Action = "joystickForward"
	JoystickBackward Action = "joystickBackward"
	Trigger          Action = "trigger"
	Grip             Action = "grip"
	Button1          Action = "button1"
	Button2          Action = "button2"
)

// Actions lists every action in scan order.
var Actions = []Action{
	JoystickLeft, JoystickRight, JoystickForward, JoystickBackward,
	Trigger, Grip, Button1, Button2,
}

// IsDirection reports whether the action moves the joystick.
func (a Action) IsDirection() bool {
	switch a {
	case JoystickLeft, JoystickRight, JoystickForward, JoystickBackward:
		return true
	}
	return false
}

// IsAnalog reports whether the action drives a 0..1 value (trigger, grip).
func (a Action) IsAnalog() bool {
	return a == Trigger || a == Grip
}

func parseAction(s string) (Action, error) {
	for _, a := range Actions {
		if string(a) == s {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Binding is the (hand, action) pair a key resolves to.
type Binding struct {
	Hand   Hand
	Action Action
}

func (b Binding) String() string {
	return string(b.Hand) + "." + string(b.Action)
}

// KeyMapping holds the host key identifier bound to each action of each hand.
// Key identifiers are browser KeyboardEvent.key values ("w", "ArrowUp", "Enter").
type KeyMapping map[Hand]map[Action]string

// DefaultKeyMapping returns the built-in layout. Left controller: WASD
// joystick, E trigger, Q grip, X and Z buttons. Right controller: arrow keys
// joystick, Enter trigger, Shift grip, ' and / buttons.
func DefaultKeyMapping() KeyMapping {
	return KeyMapping{
		Left: {
			JoystickLeft:     "a",
			JoystickRight:    "d",
			JoystickForward:  "w",
			JoystickBackward: "s",
			Trigger:          "e",
			Grip:             "q",
			Button1:          "x",
			Button2:          "z",
		},
		Right: {
			JoystickLeft:     "ArrowLeft",
			JoystickRight:    "ArrowRight",
			JoystickForward:  "ArrowUp",
			JoystickBackward: "ArrowDown",
			Trigger:          "Enter",
			Grip:             "Shift",
			Button1:          "'",
			Button2:          "/",
		},
	}
}

// Clone returns a deep copy of the mapping.
func (m KeyMapping) Clone() KeyMapping {
	out := make(KeyMapping, len(m))
	for hand, actions := range m {
		cp := make(map[Action]string, len(actions))
		for a, k := range actions {
			cp[a] = k
		}
		out[hand] = cp
	}
	return out
}

// LoadKeyMapping reads a YAML key mapping file and applies its entries on top
// of the default mapping. The file has the shape {left: {trigger: e}, right: {...}}.
func LoadKeyMapping(path string) (KeyMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseKeyMapping(data)
}

// ParseKeyMapping decodes YAML key mapping overrides.
func ParseKeyMapping(data []byte) (KeyMapping, error) {
	var raw map[string]map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding key mapping: %w", err)
	}

	m := DefaultKeyMapping()
	for handName, actions := range raw {
		hand, err := ParseHand(handName)
		if err != nil {
			return nil, err
		}
		for actionName, key := range actions {
			action, err := parseAction(actionName)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", hand, err)
			}
			m[hand][action] = key
		}
	}
	return m, nil
}

// Mapper resolves host keys to bindings.
type Mapper struct {
	table KeyMapping
	index map[string]Binding
	dupes map[string][]Binding
}

// NewMapper builds a Mapper from a key mapping. The table is scanned hand by
// hand in Hands order and action by action in Actions order; when a key is
// bound more than once the last binding in that order wins.
func NewMapper(m KeyMapping) *Mapper {
	mp := &Mapper{
		table: m.Clone(),
		index: make(map[string]Binding),
		dupes: make(map[string][]Binding),
	}
	for _, hand := range Hands {
		for _, action := range Actions {
			key, ok := mp.table[hand][action]
			if !ok || key == "" {
				continue
			}
			b := Binding{Hand: hand, Action: action}
			if prev, seen := mp.index[key]; seen {
				if len(mp.dupes[key]) == 0 {
					mp.dupes[key] = append(mp.dupes[key], prev)
				}
				mp.dupes[key] = append(mp.dupes[key], b)
			}
			mp.index[key] = b
		}
	}
	return mp
}

// Resolve returns the binding for key, or false when the key is unbound.
func (m *Mapper) Resolve(key string) (Binding, bool) {
	b, ok := m.index[key]
	return b, ok
}

// Conflicts returns the keys bound to more than one action, each with its
// bindings in scan order. The last binding of each list is the effective one.
func (m *Mapper) Conflicts() map[string][]Binding {
	out := make(map[string][]Binding, len(m.dupes))
	for k, v := range m.dupes {
		out[k] = append([]Binding(nil), v...)
	}
	return out
}

// Table returns a copy of the mapping the Mapper was built from.
func (m *Mapper) Table() KeyMapping {
	return m.table.Clone()
}
