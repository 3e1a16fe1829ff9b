package server

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/soar/xremu/backend/internal/device"
	"github.com/soar/xremu/backend/internal/hub"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local use
	},
}

// StateSource provides the snapshot sent to a newly connected client.
type StateSource interface {
	CurrentState() device.DeviceState
}

func handleWebSocket(h *hub.Hub, b *hub.Broadcaster, cmd hub.Commander, states StateSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("WebSocket upgrade failed")
			return
		}

		client := hub.NewClient(h, conn)
		h.Register(client)

		// Send current state and settings to the new client
		b.SendInitialState(client, states.CurrentState())
		b.SendSettings(client, cmd.Settings())

		// Start write pump
		go client.WritePump()
		// Start read pump with the emulator handling client commands
		go client.ReadPumpWithHandler(cmd)
	}
}
