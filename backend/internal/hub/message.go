package hub

import (
	"time"

	"github.com/soar/xremu/backend/internal/device"
	"github.com/soar/xremu/backend/internal/keyboard"
	"github.com/soar/xremu/backend/internal/settings"
)

// Message types sent from server to client.
const (
	TypeFull        = "full"
	TypeDelta       = "delta"
	TypeEvent       = "event"
	TypePassThrough = "passthrough"
	TypePulseResult = "pulse_result"
	TypeSettings    = "settings"
	TypeError       = "error"
)

// Message types sent from client to server.
const (
	TypeKey           = "key"
	TypeBlur          = "blur"
	TypeActionMapping = "action_mapping"
	TypePulse         = "pulse"
)

// PulseResult reports how a pulse request settled.
type PulseResult struct {
	ID      string `json:"id,omitempty"`
	Hand    string `json:"hand"`
	Outcome string `json:"outcome"`
}

// WSMessage represents a WebSocket message sent from server to client.
type WSMessage struct {
	Type      string               `json:"type"`               // Message type, one of the Type* constants
	Seq       int64                `json:"seq"`                // Sequence number for ordering
	Timestamp int64                `json:"timestamp"`          // Unix timestamp in milliseconds
	Event     string               `json:"event,omitempty"`    // Event name for type "event"
	Data      *device.DeviceState  `json:"data,omitempty"`     // Full device state for type "full" or "event"
	Changes   *device.DeltaChanges `json:"changes,omitempty"`  // Delta changes for type "delta"
	Key       *keyboard.Event      `json:"key,omitempty"`      // Relayed key event for type "passthrough"
	Pulse     *PulseResult         `json:"pulse,omitempty"`    // Outcome for type "pulse_result"
	Settings  *settings.Settings   `json:"settings,omitempty"` // Current settings for type "settings"
	Error     string               `json:"error,omitempty"`    // Reason for type "error"
}

func newMessage(typ string, seq int64) *WSMessage {
	return &WSMessage{
		Type:      typ,
		Seq:       seq,
		Timestamp: time.Now().UnixMilli(),
	}
}

// NewFullMessage creates a "full" type message containing complete device state.
func NewFullMessage(seq int64, state *device.DeviceState) *WSMessage {
	msg := newMessage(TypeFull, seq)
	msg.Data = state
	return msg
}

// NewDeltaMessage creates a "delta" type message containing only changed controllers.
func NewDeltaMessage(seq int64, changes *device.DeltaChanges) *WSMessage {
	msg := newMessage(TypeDelta, seq)
	msg.Changes = changes
	return msg
}

// NewEventMessage creates an "event" type message for special events.
func NewEventMessage(seq int64, event string, state *device.DeviceState) *WSMessage {
	msg := newMessage(TypeEvent, seq)
	msg.Event = event
	msg.Data = state
	return msg
}

// NewPassThroughMessage relays a key event the emulator did not consume.
func NewPassThroughMessage(seq int64, ev keyboard.Event) *WSMessage {
	msg := newMessage(TypePassThrough, seq)
	msg.Key = &ev
	return msg
}

// NewPulseResultMessage reports a settled pulse.
func NewPulseResultMessage(result PulseResult) *WSMessage {
	msg := newMessage(TypePulseResult, 0)
	msg.Pulse = &result
	return msg
}

// NewSettingsMessage carries the current emulator settings.
func NewSettingsMessage(st settings.Settings) *WSMessage {
	msg := newMessage(TypeSettings, 0)
	msg.Settings = &st
	return msg
}

// NewErrorMessage reports a rejected client request.
func NewErrorMessage(reason string) *WSMessage {
	msg := newMessage(TypeError, 0)
	msg.Error = reason
	return msg
}

// ClientMessage represents a message sent from the client to the server.
type ClientMessage struct {
	Type     string          `json:"type"`
	Key      *keyboard.Event `json:"key,omitempty"`      // for "key"
	Enabled  *bool           `json:"enabled,omitempty"`  // for "action_mapping"
	ID       string          `json:"id,omitempty"`       // for "pulse", echoed in the result
	Hand     string          `json:"hand,omitempty"`     // for "pulse"
	Value    float64         `json:"value,omitempty"`    // for "pulse"
	Duration float64         `json:"duration,omitempty"` // for "pulse", milliseconds
}
