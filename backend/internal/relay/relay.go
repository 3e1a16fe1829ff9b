// Package relay receives controller poses from an external tracking source
// over WebSocket and writes them into the emulated device.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lxzan/gws"
	"github.com/rs/zerolog/log"

	"github.com/soar/xremu/backend/internal/device"
	"github.com/soar/xremu/backend/internal/input"
)

// stateRequest asks the relay for the current poses right after connecting.
const stateRequest = "state"

// PoseSink is the device the relay writes into.
type PoseSink interface {
	SetPose(hand input.Hand, pose device.Pose) bool
	ForceEmitPose()
}

// ControllerPose is one controller's transform as sent by the relay.
type ControllerPose struct {
	Position   []float64 `json:"position"`
	Quaternion []float64 `json:"quaternion"`
}

// Message is a pose update.
type Message struct {
	LeftController  *ControllerPose `json:"leftController"`
	RightController *ControllerPose `json:"rightController"`
}

func (p *ControllerPose) pose() (device.Pose, error) {
	var out device.Pose
	if len(p.Position) != len(out.Position) {
		return out, fmt.Errorf("position has %d components, want %d", len(p.Position), len(out.Position))
	}
	if len(p.Quaternion) != len(out.Quaternion) {
		return out, fmt.Errorf("quaternion has %d components, want %d", len(p.Quaternion), len(out.Quaternion))
	}
	copy(out.Position[:], p.Position)
	copy(out.Quaternion[:], p.Quaternion)
	return out, nil
}

// Decode parses a pose update into per-hand poses. Controllers missing from
// the message are left out of the result.
func Decode(data []byte) (map[input.Hand]device.Pose, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("decoding pose update: %w", err)
	}

	poses := make(map[input.Hand]device.Pose, 2)
	for hand, cp := range map[input.Hand]*ControllerPose{
		input.Left:  msg.LeftController,
		input.Right: msg.RightController,
	} {
		if cp == nil {
			continue
		}
		p, err := cp.pose()
		if err != nil {
			return nil, fmt.Errorf("%s controller: %w", hand, err)
		}
		poses[hand] = p
	}
	if len(poses) == 0 {
		return nil, errors.New("pose update without controllers")
	}
	return poses, nil
}

// Relay is a pose relay client.
type Relay struct {
	gws.BuiltinEventHandler

	url   string
	retry time.Duration
	sink  PoseSink
}

func New(url string, retry time.Duration, sink PoseSink) *Relay {
	if retry <= 0 {
		retry = 2 * time.Second
	}
	return &Relay{url: url, retry: retry, sink: sink}
}

// Apply writes a pose update into the sink and forces a pose re-emit.
func (r *Relay) Apply(data []byte) error {
	poses, err := Decode(data)
	if err != nil {
		return err
	}
	for hand, p := range poses {
		r.sink.SetPose(hand, p)
	}
	r.sink.ForceEmitPose()
	return nil
}

func (r *Relay) OnOpen(socket *gws.Conn) {
	log.Info().Str("url", r.url).Msg("Pose relay connected")
	if err := socket.WriteString(stateRequest); err != nil {
		log.Warn().Err(err).Msg("Pose relay state request failed")
	}
}

func (r *Relay) OnClose(socket *gws.Conn, err error) {
	log.Info().Err(err).Msg("Pose relay disconnected")
}

func (r *Relay) OnMessage(socket *gws.Conn, message *gws.Message) {
	defer message.Close()
	if err := r.Apply(message.Bytes()); err != nil {
		log.Warn().Err(err).Msg("Skipping pose update")
	}
}

// Run connects to the relay and reads pose updates, reconnecting after
// r.retry, until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	for {
		conn, _, err := gws.NewClient(r, &gws.ClientOption{Addr: r.url})
		if err != nil {
			log.Debug().Err(err).Str("url", r.url).Msg("Pose relay unavailable")
		} else {
			stop := context.AfterFunc(ctx, func() {
				conn.WriteClose(1000, nil)
			})
			conn.ReadLoop()
			stop()
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.retry):
		}
	}
}
