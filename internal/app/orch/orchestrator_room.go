package orch

import (
	"github.com/dkeye/StreamRoom/internal/app"
	"github.com/dkeye/StreamRoom/internal/domain"
	"github.com/dkeye/StreamRoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) join(sid domain.UserID, roomName domain.RoomName) {
	if from, ok := o.Rooms.RoomOf(sid); ok {
		o.leave(sid)
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("from_room", string(from)).Msg("left room before join")
	}

	// The confirmation is queued inside the room table's critical section;
	// every later change to the room reaches the joiner after it.
	res := o.Rooms.Join(sid, roomName, func(res app.JoinResult) {
		o.SendTo(sid, protocol.RoomJoined{
			RoomName: res.Room,
			Users:    res.Users,
			Streamer: res.Streamer,
		})
	})
	if res.Left != nil {
		o.notifyLeft(sid, *res.Left)
	}

	o.deliver(res.Others, sid, protocol.UserJoined{User: res.Member})
	log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("room", string(roomName)).Int("notified", len(res.Others)).Msg("joined room")
}

func (o *Orchestrator) leave(sid domain.UserID) {
	res, ok := o.Rooms.Leave(sid)
	if !ok {
		return
	}
	o.notifyLeft(sid, res)
}

func (o *Orchestrator) notifyLeft(sid domain.UserID, res app.LeaveResult) {
	if res.WasStreamer {
		o.deliver(res.Remaining, sid, protocol.StreamStopped{UserID: sid})
	}
	o.deliver(res.Remaining, sid, protocol.UserLeft{UserID: sid})
	log.Info().
		Str("module", "app.orch").
		Str("sid", string(sid)).
		Str("room", string(res.Room)).
		Bool("was_streamer", res.WasStreamer).
		Bool("room_removed", res.RoomRemoved).
		Msg("left room")
}
