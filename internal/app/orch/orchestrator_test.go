package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/sourcegraph/conc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/dkeye/StreamRoom/internal/app"
	"github.com/dkeye/StreamRoom/internal/core"
	"github.com/dkeye/StreamRoom/internal/core/mock"
	"github.com/dkeye/StreamRoom/internal/domain"
	"github.com/dkeye/StreamRoom/internal/protocol"
)

type recordingConn struct {
	mu       sync.Mutex
	received []protocol.ServerMessage
	full     bool
}

func (c *recordingConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return core.ErrBackpressure
	}
	msg, err := protocol.DecodeServer(f)
	if err != nil {
		return err
	}
	c.received = append(c.received, msg)
	return nil
}

func (c *recordingConn) Close() {}

func (c *recordingConn) messages() []protocol.ServerMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.ServerMessage(nil), c.received...)
}

func (c *recordingConn) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.received = nil
}

type harness struct {
	o     *Orchestrator
	conns map[domain.UserID]*recordingConn
}

func newHarness(t *testing.T, ids ...domain.UserID) *harness {
	t.Helper()
	h := &harness{
		o:     New(app.NewRegistry(), app.NewRoomManager(), app.DropPolicy{}),
		conns: make(map[domain.UserID]*recordingConn),
	}
	for _, id := range ids {
		h.connect(t, id)
	}
	return h
}

func (h *harness) connect(t *testing.T, id domain.UserID) *recordingConn {
	t.Helper()
	conn := &recordingConn{}
	require.NoError(t, h.o.Registry.Register(id, conn, nil))
	h.o.Connect(id)
	h.conns[id] = conn
	return conn
}

func (h *harness) disconnect(id domain.UserID) {
	h.o.Disconnect(id)
	h.o.Registry.Deregister(id)
}

func (h *harness) resetAll() {
	for _, c := range h.conns {
		c.reset()
	}
}

func userIDs(users []domain.Member) []domain.UserID {
	out := make([]domain.UserID, 0, len(users))
	for _, u := range users {
		out = append(out, u.ID)
	}
	return out
}

func TestOrchestrator_Scenario(t *testing.T) {
	h := newHarness(t, "A", "B")

	h.o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})

	a := h.conns["A"].messages()
	require.Len(t, a, 2)
	joinedA, ok := a[0].(protocol.RoomJoined)
	require.True(t, ok)
	assert.Equal(t, domain.RoomName("r1"), joinedA.RoomName)
	assert.Equal(t, []domain.UserID{"A"}, userIDs(joinedA.Users))
	assert.Nil(t, joinedA.Streamer)
	userJoined, ok := a[1].(protocol.UserJoined)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("B"), userJoined.User.ID)
	require.NotNil(t, userJoined.User.Room)
	assert.Equal(t, domain.RoomName("r1"), *userJoined.User.Room)

	b := h.conns["B"].messages()
	require.Len(t, b, 1, "B never hears UserJoined about itself")
	joinedB, ok := b[0].(protocol.RoomJoined)
	require.True(t, ok)
	assert.ElementsMatch(t, []domain.UserID{"A", "B"}, userIDs(joinedB.Users))
	assert.Nil(t, joinedB.Streamer)

	h.resetAll()
	h.o.Handle("A", protocol.StartStream{})
	assert.Equal(t, []protocol.ServerMessage{protocol.StreamStarted{UserID: "A"}}, h.conns["A"].messages())
	assert.Equal(t, []protocol.ServerMessage{protocol.StreamStarted{UserID: "A"}}, h.conns["B"].messages())

	h.resetAll()
	h.o.Handle("B", protocol.ChatMessage{Content: "hi"})
	assert.Equal(t, []protocol.ServerMessage{protocol.ChatNotice{UserID: "B", Content: "hi"}}, h.conns["A"].messages())
	assert.Empty(t, h.conns["B"].messages(), "sender does not get its own chat")
}

func TestOrchestrator_JoinShowsCurrentStreamer(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("A", protocol.StartStream{})

	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})

	b := h.conns["B"].messages()
	require.Len(t, b, 1)
	joined := b[0].(protocol.RoomJoined)
	require.NotNil(t, joined.Streamer)
	assert.Equal(t, domain.UserID("A"), *joined.Streamer)
	for _, u := range joined.Users {
		assert.Equal(t, u.ID == "A", u.IsStreaming)
	}
}

func TestOrchestrator_StartStreamReplacesStreamer(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	for _, id := range []domain.UserID{"A", "B", "C"} {
		h.o.Handle(id, protocol.JoinRoom{RoomName: "r1"})
	}
	h.o.Handle("B", protocol.StartStream{})
	h.resetAll()

	h.o.Handle("A", protocol.StartStream{})

	for id, conn := range h.conns {
		assert.Equal(t, []protocol.ServerMessage{protocol.StreamStarted{UserID: "A"}}, conn.messages(), "recipient %s", id)
	}
	b, ok := h.o.Rooms.Member("B")
	require.True(t, ok)
	assert.False(t, b.IsStreaming)
	snap, ok := h.o.Rooms.Get("r1")
	require.True(t, ok)
	require.NotNil(t, snap.Streamer)
	assert.Equal(t, domain.UserID("A"), *snap.Streamer)
}

func TestOrchestrator_StopStreamByNonStreamerIsNoop(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("A", protocol.StartStream{})
	h.resetAll()

	h.o.Handle("B", protocol.StopStream{})

	assert.Empty(t, h.conns["A"].messages())
	assert.Empty(t, h.conns["B"].messages())
	snap, _ := h.o.Rooms.Get("r1")
	require.NotNil(t, snap.Streamer)
	assert.Equal(t, domain.UserID("A"), *snap.Streamer)
}

func TestOrchestrator_StopStreamByStreamer(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("A", protocol.StartStream{})
	h.resetAll()

	h.o.Handle("A", protocol.StopStream{})

	want := []protocol.ServerMessage{protocol.StreamStopped{UserID: "A"}}
	assert.Equal(t, want, h.conns["A"].messages())
	assert.Equal(t, want, h.conns["B"].messages())
	a, _ := h.o.Rooms.Member("A")
	assert.False(t, a.IsStreaming)
}

func TestOrchestrator_MessagesOutsideRoomAreNoops(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})
	h.resetAll()

	for _, msg := range []protocol.ClientMessage{
		protocol.LeaveRoom{},
		protocol.StartStream{},
		protocol.StopStream{},
		protocol.ChatMessage{Content: "anyone?"},
	} {
		h.o.Handle("A", msg)
	}

	assert.Empty(t, h.conns["A"].messages())
	assert.Empty(t, h.conns["B"].messages())
}

func TestOrchestrator_LeaveRoom(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})
	h.resetAll()

	h.o.Handle("B", protocol.LeaveRoom{})

	assert.Equal(t, []protocol.ServerMessage{protocol.UserLeft{UserID: "B"}}, h.conns["A"].messages())
	assert.Empty(t, h.conns["B"].messages())
	b, _ := h.o.Rooms.Member("B")
	assert.Nil(t, b.Room)

	h.o.Handle("A", protocol.LeaveRoom{})
	_, ok := h.o.Rooms.Get("r1")
	assert.False(t, ok, "empty room must be removed")
}

func TestOrchestrator_JoinAnotherRoomLeavesFirst(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	h.o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("C", protocol.JoinRoom{RoomName: "r2"})
	h.o.Handle("A", protocol.StartStream{})
	h.resetAll()

	h.o.Handle("A", protocol.JoinRoom{RoomName: "r2"})

	assert.Equal(t, []protocol.ServerMessage{
		protocol.StreamStopped{UserID: "A"},
		protocol.UserLeft{UserID: "A"},
	}, h.conns["B"].messages())

	a := h.conns["A"].messages()
	require.Len(t, a, 1)
	joined := a[0].(protocol.RoomJoined)
	assert.Equal(t, domain.RoomName("r2"), joined.RoomName)
	assert.ElementsMatch(t, []domain.UserID{"A", "C"}, userIDs(joined.Users))
	for _, u := range joined.Users {
		assert.False(t, u.IsStreaming)
	}

	c := h.conns["C"].messages()
	require.Len(t, c, 1)
	assert.Equal(t, domain.UserID("A"), c[0].(protocol.UserJoined).User.ID)
}

func TestOrchestrator_DisconnectStreamer(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("A", protocol.StartStream{})
	h.resetAll()

	h.disconnect("A")

	assert.Equal(t, []protocol.ServerMessage{
		protocol.StreamStopped{UserID: "A"},
		protocol.UserLeft{UserID: "A"},
	}, h.conns["B"].messages())
	_, ok := h.o.Registry.Lookup("A")
	assert.False(t, ok)
	_, ok = h.o.Rooms.Member("A")
	assert.False(t, ok)
}

func TestOrchestrator_DisconnectLastMemberRemovesRoom(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("A", protocol.StartStream{})

	h.disconnect("A")

	_, ok := h.o.Rooms.Get("r1")
	assert.False(t, ok)

	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})
	b := h.conns["B"].messages()
	require.Len(t, b, 1)
	joined := b[0].(protocol.RoomJoined)
	assert.Nil(t, joined.Streamer, "fresh room has no stale streamer")
	assert.Equal(t, []domain.UserID{"B"}, userIDs(joined.Users))
}

func TestOrchestrator_SignalRelay(t *testing.T) {
	h := newHarness(t, "A", "B")
	payload := json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`)

	// Relay does not require a shared room.
	h.o.Handle("A", protocol.WebRTCSignal{TargetUser: "B", Signal: payload})

	b := h.conns["B"].messages()
	require.Len(t, b, 1)
	relay, ok := b[0].(protocol.SignalRelay)
	require.True(t, ok)
	assert.Equal(t, domain.UserID("A"), relay.FromUser)
	assert.JSONEq(t, string(payload), string(relay.Signal))
	assert.Empty(t, h.conns["A"].messages())
}

func TestOrchestrator_SignalToUnknownTargetIsDropped(t *testing.T) {
	h := newHarness(t, "A", "B")
	h.o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	h.o.Handle("B", protocol.JoinRoom{RoomName: "r1"})
	h.resetAll()

	h.o.Handle("A", protocol.WebRTCSignal{TargetUser: "ghost", Signal: json.RawMessage(`{}`)})

	assert.Empty(t, h.conns["A"].messages())
	assert.Empty(t, h.conns["B"].messages())
}

func TestOrchestrator_SlowRecipientDoesNotBlock(t *testing.T) {
	h := newHarness(t, "A", "B", "C")
	for _, id := range []domain.UserID{"A", "B", "C"} {
		h.o.Handle(id, protocol.JoinRoom{RoomName: "r1"})
	}
	h.resetAll()
	h.conns["B"].full = true

	h.o.Handle("A", protocol.ChatMessage{Content: "hello"})

	assert.Empty(t, h.conns["B"].messages())
	assert.Equal(t, []protocol.ServerMessage{protocol.ChatNotice{UserID: "A", Content: "hello"}}, h.conns["C"].messages())
	_, ok := h.o.Registry.Lookup("B")
	assert.True(t, ok, "drop policy keeps the slow recipient")
}

func TestOrchestrator_KickPolicyCancelsSlowRecipient(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := New(app.NewRegistry(), app.NewRoomManager(), app.KickPolicy{})

	fast := mock.NewMockSignalConnection(ctrl)
	slow := mock.NewMockSignalConnection(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, o.Registry.Register("A", fast, nil))
	require.NoError(t, o.Registry.Register("B", slow, cancel))

	fast.EXPECT().TrySend(gomock.Any()).Return(nil).AnyTimes()
	slow.EXPECT().TrySend(gomock.Any()).Return(nil).Times(1)
	o.Handle("A", protocol.JoinRoom{RoomName: "r1"})
	o.Handle("B", protocol.JoinRoom{RoomName: "r1"})

	slow.EXPECT().TrySend(gomock.Any()).Return(core.ErrBackpressure).Times(1)
	o.Handle("A", protocol.ChatMessage{Content: "x"})

	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestOrchestrator_ClosedRecipientIsSkipped(t *testing.T) {
	ctrl := gomock.NewController(t)
	o := New(app.NewRegistry(), app.NewRoomManager(), app.KickPolicy{})
	closed := mock.NewMockSignalConnection(ctrl)
	require.NoError(t, o.Registry.Register("B", closed, nil))

	closed.EXPECT().TrySend(gomock.Any()).Return(core.ErrConnClosed).Times(1)
	o.Handle("A", protocol.WebRTCSignal{TargetUser: "B", Signal: json.RawMessage(`1`)})

	_, ok := o.Registry.Lookup("B")
	assert.True(t, ok, "closed connection is not kicked, its lifecycle cleans up")
}

func TestOrchestrator_ConfirmationPrecedesLaterEvents(t *testing.T) {
	h := newHarness(t)
	const n = 32
	ids := make([]domain.UserID, n)
	for i := 0; i < n; i++ {
		ids[i] = domain.UserID(fmt.Sprintf("u%02d", i))
		h.connect(t, ids[i])
	}

	var wg conc.WaitGroup
	for _, id := range ids {
		id := id
		wg.Go(func() {
			h.o.Handle(id, protocol.JoinRoom{RoomName: "busy"})
			h.o.Handle(id, protocol.StartStream{})
		})
	}
	wg.Wait()

	for _, id := range ids {
		msgs := h.conns[id].messages()
		require.NotEmpty(t, msgs)
		joined, ok := msgs[0].(protocol.RoomJoined)
		require.True(t, ok, "%s: first message must be RoomJoined, got %T", id, msgs[0])
		assert.Contains(t, userIDs(joined.Users), id)

		seen := make(map[domain.UserID]bool)
		for _, u := range joined.Users {
			seen[u.ID] = true
		}
		for _, msg := range msgs[1:] {
			if uj, ok := msg.(protocol.UserJoined); ok {
				assert.NotEqual(t, id, uj.User.ID, "no UserJoined about oneself")
				assert.False(t, seen[uj.User.ID], "%s announced twice to %s", uj.User.ID, id)
				seen[uj.User.ID] = true
			}
		}
		assert.Len(t, seen, n, "%s must learn about every member exactly once", id)
	}

	snap, ok := h.o.Rooms.Get("busy")
	require.True(t, ok)
	require.NotNil(t, snap.Streamer)
	streaming := 0
	for _, m := range snap.Members {
		if m.IsStreaming {
			streaming++
		}
	}
	assert.Equal(t, 1, streaming)
}
