// Package keyname translates SDL key names into page keyboard events.
package keyname

import (
	"strings"
	"unicode/utf8"

	"github.com/soar/xremu/backend/internal/keyboard"
)

const (
	locationStandard = 0
	locationLeft     = 1
	locationRight    = 2
)

type namedKey struct {
	key      string
	code     string
	location int
}

// SDL key names that differ from the page's KeyboardEvent.key values.
var namedKeys = map[string]namedKey{
	"Up":          {"ArrowUp", "ArrowUp", locationStandard},
	"Down":        {"ArrowDown", "ArrowDown", locationStandard},
	"Left":        {"ArrowLeft", "ArrowLeft", locationStandard},
	"Right":       {"ArrowRight", "ArrowRight", locationStandard},
	"Return":      {"Enter", "Enter", locationStandard},
	"Escape":      {"Escape", "Escape", locationStandard},
	"Backspace":   {"Backspace", "Backspace", locationStandard},
	"Tab":         {"Tab", "Tab", locationStandard},
	"Space":       {" ", "Space", locationStandard},
	"Left Shift":  {"Shift", "ShiftLeft", locationLeft},
	"Right Shift": {"Shift", "ShiftRight", locationRight},
	"Left Ctrl":   {"Control", "ControlLeft", locationLeft},
	"Right Ctrl":  {"Control", "ControlRight", locationRight},
	"Left Alt":    {"Alt", "AltLeft", locationLeft},
	"Right Alt":   {"Alt", "AltRight", locationRight},
	"Left GUI":    {"Meta", "MetaLeft", locationLeft},
	"Right GUI":   {"Meta", "MetaRight", locationRight},
}

var punctuationCodes = map[string]string{
	"/":  "Slash",
	"\\": "Backslash",
	".":  "Period",
	",":  "Comma",
	";":  "Semicolon",
	"'":  "Quote",
	"-":  "Minus",
	"=":  "Equal",
	"[":  "BracketLeft",
	"]":  "BracketRight",
	"`":  "Backquote",
}

// Translate converts an SDL key name into a page keyboard event. It returns
// false for keys without a name.
func Translate(name string, down, repeat bool) (keyboard.Event, bool) {
	if name == "" {
		return keyboard.Event{}, false
	}

	ev := keyboard.Event{Type: keyboard.KeyUp, Repeat: repeat}
	if down {
		ev.Type = keyboard.KeyDown
	}

	if nk, ok := namedKeys[name]; ok {
		ev.Key = nk.key
		ev.Code = nk.code
		ev.Location = nk.location
		return ev, true
	}

	if utf8.RuneCountInString(name) == 1 {
		r, _ := utf8.DecodeRuneInString(name)
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
			ev.Key = strings.ToLower(name)
			ev.Code = "Key" + strings.ToUpper(name)
		case r >= '0' && r <= '9':
			ev.Key = name
			ev.Code = "Digit" + name
		default:
			ev.Key = name
			ev.Code = punctuationCodes[name]
		}
		return ev, true
	}

	// Function keys and the rest keep their SDL name.
	ev.Key = name
	ev.Code = name
	return ev, true
}
