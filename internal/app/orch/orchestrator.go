package orch

import (
	"github.com/dkeye/StreamRoom/internal/app"
	"github.com/dkeye/StreamRoom/internal/domain"
	"github.com/dkeye/StreamRoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Orchestrator interprets client messages against the room table and decides
// who hears about the result. It is the only writer of room and member state.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy
}

func New(reg *app.Registry, rooms *app.RoomManager, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
	}
}

// Connect creates the member state of a newly accepted connection.
func (o *Orchestrator) Connect(sid domain.UserID) {
	o.Rooms.Connect(sid)
}

// Disconnect runs the leave effect and forgets the member.
func (o *Orchestrator) Disconnect(sid domain.UserID) {
	o.leave(sid)
	o.Rooms.Disconnect(sid)
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Msg("member disconnected")
}

// Handle processes one inbound message on the sender's own goroutine.
func (o *Orchestrator) Handle(sid domain.UserID, msg protocol.ClientMessage) {
	switch m := msg.(type) {
	case protocol.JoinRoom:
		o.join(sid, m.RoomName)
	case protocol.LeaveRoom:
		o.leave(sid)
	case protocol.StartStream:
		o.startStream(sid)
	case protocol.StopStream:
		o.stopStream(sid)
	case protocol.ChatMessage:
		o.chat(sid, m.Content)
	case protocol.WebRTCSignal:
		o.relaySignal(sid, m)
	default:
		log.Warn().Str("module", "app.orch").Str("sid", string(sid)).Msg("unhandled message")
	}
}
