package hub

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/soar/xremu/backend/internal/device"
	"github.com/soar/xremu/backend/internal/keyboard"
	"github.com/soar/xremu/backend/internal/settings"
)

const (
	fullSyncInterval = 5 * time.Second
	deltaCountSync   = 100
)

// Broadcaster listens for device state changes and pass-through key events
// and broadcasts them to the hub.
type Broadcaster struct {
	hub       *Hub
	changes   <-chan device.Snapshot
	keys      <-chan keyboard.Event
	lastState device.DeviceState
	primed    bool
	seq       int64
}

func NewBroadcaster(h *Hub, changes <-chan device.Snapshot, keys <-chan keyboard.Event) *Broadcaster {
	return &Broadcaster{
		hub:     h,
		changes: changes,
		keys:    keys,
	}
}

// Run starts the broadcaster loop. Should be run in a goroutine.
func (b *Broadcaster) Run(ctx context.Context) {
	ticker := time.NewTicker(fullSyncInterval)
	defer ticker.Stop()

	var deltaCount int64

	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-b.changes:
			if !ok {
				return
			}

			b.primed = true
			if snap.Event != "" {
				b.lastState = snap.State
				b.seq++
				b.send(NewEventMessage(b.seq, snap.Event, &snap.State))
				continue
			}

			delta := device.ComputeDelta(b.lastState, snap.State)
			b.lastState = snap.State

			if delta.IsEmpty() {
				continue
			}

			b.seq++
			deltaCount++

			// Send full sync periodically
			if deltaCount >= deltaCountSync {
				b.send(NewFullMessage(b.seq, &snap.State))
				deltaCount = 0
			} else {
				b.send(NewDeltaMessage(b.seq, delta))
			}

		case ev, ok := <-b.keys:
			if !ok {
				b.keys = nil
				continue
			}
			b.seq++
			b.send(NewPassThroughMessage(b.seq, ev))

		case <-ticker.C:
			if !b.primed {
				continue
			}
			b.seq++
			state := b.lastState
			b.send(NewFullMessage(b.seq, &state))
		}
	}
}

// SendInitialState sends the current full state to a newly connected client.
// The broadcaster's sequence counter is not advanced since Run owns it.
func (b *Broadcaster) SendInitialState(c *Client, state device.DeviceState) {
	data, err := marshal(NewFullMessage(0, &state))
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling initial state")
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (b *Broadcaster) send(msg *WSMessage) {
	data, err := marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling broadcast message")
		return
	}
	b.hub.Broadcast(data)
}

// SendSettings sends the current settings to a newly connected client.
func (b *Broadcaster) SendSettings(c *Client, st settings.Settings) {
	data, err := marshal(NewSettingsMessage(st))
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling settings")
		return
	}
	select {
	case c.send <- data:
	default:
	}
}
