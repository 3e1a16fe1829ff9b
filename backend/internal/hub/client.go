package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/soar/xremu/backend/internal/haptic"
	"github.com/soar/xremu/backend/internal/input"
	"github.com/soar/xremu/backend/internal/keyboard"
	"github.com/soar/xremu/backend/internal/settings"
)

// pulseWaitSlack bounds how long a deferred pulse result is awaited past the
// pulse's own duration.
const pulseWaitSlack = 5 * time.Second

// maxPulseDuration caps requested pulse lengths.
const maxPulseDuration = time.Hour

// Commander is the emulator as seen by a client connection.
type Commander interface {
	KeyEvent(ev keyboard.Event) bool
	Blur()
	SetActionMapping(on bool) error
	Settings() settings.Settings
	Pulse(hand input.Hand, value float64, duration time.Duration) (*haptic.Result, error)
}

// Client represents a connected WebSocket client.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
}

// NewClient creates a new Client attached to the hub.
func NewClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, 256),
	}
}

// WritePump sends messages from the send channel to the WebSocket connection.
func (c *Client) WritePump() {
	defer func() {
		c.conn.Close()
	}()

	for msg := range c.send {
		err := c.conn.WriteMessage(websocket.TextMessage, msg)
		if err != nil {
			break
		}
	}
}

// ReadPumpWithHandler reads messages from the WebSocket and handles client commands.
func (c *Client) ReadPumpWithHandler(cmd Commander) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		c.handle(cmd, message)
	}
}

func (c *Client) handle(cmd Commander, message []byte) {
	var clientMsg ClientMessage
	if err := json.Unmarshal(message, &clientMsg); err != nil {
		log.Warn().Err(err).Msg("Error parsing client message")
		return
	}

	switch clientMsg.Type {
	case TypeKey:
		if clientMsg.Key == nil {
			c.reply(NewErrorMessage("key message without key event"))
			return
		}
		cmd.KeyEvent(*clientMsg.Key)

	case TypeBlur:
		cmd.Blur()

	case TypeActionMapping:
		if clientMsg.Enabled == nil {
			c.reply(NewErrorMessage("action_mapping message without enabled flag"))
			return
		}
		if err := c.hub.SetActionMapping(cmd, *clientMsg.Enabled); err != nil {
			log.Error().Err(err).Msg("Failed to persist action mapping")
		}

	case TypePulse:
		c.pulse(cmd, clientMsg)

	default:
		log.Debug().Str("type", clientMsg.Type).Msg("Ignoring unknown client message")
	}
}

func (c *Client) pulse(cmd Commander, m ClientMessage) {
	hand, err := input.ParseHand(m.Hand)
	if err != nil {
		c.reply(NewErrorMessage(err.Error()))
		return
	}
	duration := pulseDuration(m.Duration)
	res, err := cmd.Pulse(hand, m.Value, duration)
	if err != nil {
		c.reply(NewErrorMessage(err.Error()))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), duration+pulseWaitSlack)
		defer cancel()
		outcome, err := res.Wait(ctx)
		if err != nil {
			log.Warn().Str("hand", string(hand)).Err(err).Msg("Pulse result not settled")
			return
		}
		c.reply(NewPulseResultMessage(PulseResult{ID: m.ID, Hand: string(hand), Outcome: string(outcome)}))
	}()
}

// pulseDuration converts a duration in milliseconds, clamping it to
// [0, maxPulseDuration].
func pulseDuration(ms float64) time.Duration {
	if ms <= 0 {
		return 0
	}
	if ms >= float64(maxPulseDuration/time.Millisecond) {
		return maxPulseDuration
	}
	return time.Duration(ms * float64(time.Millisecond))
}

func (c *Client) reply(msg *WSMessage) {
	data, err := marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling reply")
		return
	}
	c.hub.SendTo(c, data)
}

func marshal(msg *WSMessage) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s message: %w", msg.Type, err)
	}
	return data, nil
}
