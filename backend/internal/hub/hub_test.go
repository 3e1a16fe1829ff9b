package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soar/xremu/backend/internal/device"
	"github.com/soar/xremu/backend/internal/haptic"
	"github.com/soar/xremu/backend/internal/input"
	"github.com/soar/xremu/backend/internal/keyboard"
	"github.com/soar/xremu/backend/internal/settings"
)

func receive(t *testing.T, c *Client) WSMessage {
	t.Helper()
	select {
	case data, ok := <-c.send:
		require.True(t, ok, "send channel closed")
		var msg WSMessage
		require.NoError(t, json.Unmarshal(data, &msg))
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
	}
	return WSMessage{}
}

func registered(t *testing.T, h *Hub, c *Client) {
	t.Helper()
	n := h.Count()
	h.Register(c)
	require.Eventually(t, func() bool { return h.Count() > n }, time.Second, time.Millisecond)
}

func TestHub_BroadcastAndUnregister(t *testing.T) {
	h := NewHub()
	go h.Run()

	c := NewClient(h, nil)
	registered(t, h, c)

	h.Broadcast([]byte(`{"type":"full"}`))
	assert.Equal(t, TypeFull, receive(t, c).Type)

	h.Unregister(c)
	require.Eventually(t, func() bool { return h.Count() == 0 }, time.Second, time.Millisecond)
	_, ok := <-c.send
	assert.False(t, ok)
	assert.False(t, h.SendTo(c, []byte(`{}`)))
}

func TestBroadcaster_DeltaEventAndPassThrough(t *testing.T) {
	h := NewHub()
	go h.Run()
	c := NewClient(h, nil)
	registered(t, h, c)

	changes := make(chan device.Snapshot, 4)
	keys := make(chan keyboard.Event, 4)
	b := NewBroadcaster(h, changes, keys)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	var state device.DeviceState
	state.Controllers.Left.Connected = true
	changes <- device.Snapshot{State: state}

	msg := receive(t, c)
	assert.Equal(t, TypeDelta, msg.Type)
	require.NotNil(t, msg.Changes)
	require.NotNil(t, msg.Changes.Left)
	assert.Nil(t, msg.Changes.Right)
	assert.Equal(t, int64(1), msg.Seq)

	// unchanged state produces nothing, forced pose produces an event
	changes <- device.Snapshot{State: state}
	changes <- device.Snapshot{State: state, Event: device.EventPose}
	msg = receive(t, c)
	assert.Equal(t, TypeEvent, msg.Type)
	assert.Equal(t, device.EventPose, msg.Event)
	require.NotNil(t, msg.Data)
	assert.True(t, msg.Data.Controllers.Left.Connected)

	keys <- keyboard.Event{Type: keyboard.KeyDown, Key: "k"}
	msg = receive(t, c)
	assert.Equal(t, TypePassThrough, msg.Type)
	require.NotNil(t, msg.Key)
	assert.Equal(t, "k", msg.Key.Key)
}

func TestBroadcaster_SendInitialState(t *testing.T) {
	h := NewHub()
	c := NewClient(h, nil)
	b := NewBroadcaster(h, nil, nil)

	b.SendInitialState(c, device.DeviceState{Name: "Meta Quest Pro"})

	msg := receive(t, c)
	assert.Equal(t, TypeFull, msg.Type)
	require.NotNil(t, msg.Data)
	assert.Equal(t, "Meta Quest Pro", msg.Data.Name)
}

type fakeCommander struct {
	mu       sync.Mutex
	keys     []keyboard.Event
	blurs    int
	mapping  bool
	pulseErr error
	result   *haptic.Result
	duration time.Duration
}

func (f *fakeCommander) KeyEvent(ev keyboard.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, ev)
	return true
}

func (f *fakeCommander) Blur() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blurs++
}

func (f *fakeCommander) SetActionMapping(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mapping = on
	return nil
}

func (f *fakeCommander) Settings() settings.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := settings.Defaults()
	st.ActionMappingOn = f.mapping
	return st
}

func (f *fakeCommander) Pulse(hand input.Hand, value float64, d time.Duration) (*haptic.Result, error) {
	f.mu.Lock()
	f.duration = d
	f.mu.Unlock()
	if f.pulseErr != nil {
		return nil, f.pulseErr
	}
	return f.result, nil
}

func TestClient_HandleCommands(t *testing.T) {
	h := NewHub()
	go h.Run()
	c := NewClient(h, nil)
	registered(t, h, c)

	cmd := &fakeCommander{mapping: true}

	c.handle(cmd, []byte(`{"type":"key","key":{"type":"keydown","key":"w","code":"KeyW"}}`))
	c.handle(cmd, []byte(`{"type":"blur"}`))
	c.handle(cmd, []byte(`not json`))
	c.handle(cmd, []byte(`{"type":"unknown"}`))

	require.Len(t, cmd.keys, 1)
	assert.Equal(t, keyboard.Event{Type: keyboard.KeyDown, Key: "w", Code: "KeyW"}, cmd.keys[0])
	assert.Equal(t, 1, cmd.blurs)

	c.handle(cmd, []byte(`{"type":"action_mapping","enabled":false}`))
	msg := receive(t, c)
	assert.Equal(t, TypeSettings, msg.Type)
	require.NotNil(t, msg.Settings)
	assert.False(t, msg.Settings.ActionMappingOn)

	c.handle(cmd, []byte(`{"type":"key"}`))
	assert.Equal(t, TypeError, receive(t, c).Type)
}

func TestMappingSwitch_AnnouncesSettings(t *testing.T) {
	h := NewHub()
	go h.Run()
	a := NewClient(h, nil)
	b := NewClient(h, nil)
	registered(t, h, a)
	registered(t, h, b)

	cmd := &fakeCommander{mapping: true}
	sw := NewMappingSwitch(h, cmd)
	require.True(t, sw.ActionMapping())

	require.NoError(t, sw.SetActionMapping(false))
	assert.False(t, sw.ActionMapping())

	for _, c := range []*Client{a, b} {
		msg := receive(t, c)
		assert.Equal(t, TypeSettings, msg.Type)
		require.NotNil(t, msg.Settings)
		assert.False(t, msg.Settings.ActionMappingOn)
	}
}

func TestClient_PulseResult(t *testing.T) {
	h := NewHub()
	go h.Run()
	c := NewClient(h, nil)
	registered(t, h, c)

	act := haptic.NewActuator(haptic.Vibration, haptic.ResolveImmediately)
	cmd := &fakeCommander{result: act.Pulse(time.Now(), 0.5, 100*time.Millisecond)}

	c.handle(cmd, []byte(`{"type":"pulse","id":"p1","hand":"left","value":0.5,"duration":100}`))

	msg := receive(t, c)
	assert.Equal(t, TypePulseResult, msg.Type)
	require.NotNil(t, msg.Pulse)
	assert.Equal(t, PulseResult{ID: "p1", Hand: "left", Outcome: "preempted"}, *msg.Pulse)
}

func TestPulseDuration(t *testing.T) {
	tests := []struct {
		name string
		ms   float64
		want time.Duration
	}{
		{"regular", 250, 250 * time.Millisecond},
		{"fractional", 0.5, 500 * time.Microsecond},
		{"negative", -10, 0},
		{"zero", 0, 0},
		{"huge", 9.3e12, maxPulseDuration},
		{"beyond float range of int64", 1e300, maxPulseDuration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pulseDuration(tt.ms))
		})
	}
}

func TestClient_PulseHugeDurationClamped(t *testing.T) {
	h := NewHub()
	go h.Run()
	c := NewClient(h, nil)
	registered(t, h, c)

	act := haptic.NewActuator(haptic.Vibration, haptic.ResolveImmediately)
	cmd := &fakeCommander{result: act.Pulse(time.Now(), 1, time.Second)}

	c.handle(cmd, []byte(`{"type":"pulse","id":"p2","hand":"right","value":1,"duration":1e13}`))

	msg := receive(t, c)
	assert.Equal(t, TypePulseResult, msg.Type)
	cmd.mu.Lock()
	assert.Equal(t, maxPulseDuration, cmd.duration)
	cmd.mu.Unlock()
}

func TestClient_PulseErrors(t *testing.T) {
	h := NewHub()
	go h.Run()
	c := NewClient(h, nil)
	registered(t, h, c)

	cmd := &fakeCommander{pulseErr: errors.New("no right controller attached")}

	c.handle(cmd, []byte(`{"type":"pulse","hand":"middle","value":1,"duration":10}`))
	assert.Equal(t, TypeError, receive(t, c).Type)

	c.handle(cmd, []byte(`{"type":"pulse","hand":"right","value":1,"duration":10}`))
	msg := receive(t, c)
	assert.Equal(t, TypeError, msg.Type)
	assert.Equal(t, "no right controller attached", msg.Error)
}

func TestClient_WebSocketRoundTrip(t *testing.T) {
	h := NewHub()
	go h.Run()
	cmd := &fakeCommander{mapping: true}

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(h, conn)
		h.Register(client)
		go client.WritePump()
		go client.ReadPumpWithHandler(cmd)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"action_mapping","enabled":false}`)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg WSMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, TypeSettings, msg.Type)
	require.NotNil(t, msg.Settings)
	assert.False(t, msg.Settings.ActionMappingOn)
}
