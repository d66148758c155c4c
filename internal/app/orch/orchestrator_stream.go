package orch

import (
	"github.com/dkeye/StreamRoom/internal/domain"
	"github.com/dkeye/StreamRoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// startStream broadcasts to every member, the new streamer included:
// its own StreamStarted is the cue to begin publishing.
func (o *Orchestrator) startStream(sid domain.UserID) {
	res, ok := o.Rooms.StartStream(sid)
	if !ok {
		return
	}
	if res.Demoted != nil {
		log.Info().Str("module", "app.orch").Str("sid", string(sid)).Str("demoted", string(*res.Demoted)).Msg("streamer replaced")
	}
	o.deliver(res.Recipients, "", protocol.StreamStarted{UserID: sid})
}

func (o *Orchestrator) stopStream(sid domain.UserID) {
	res, ok := o.Rooms.StopStream(sid)
	if !ok {
		return
	}
	o.deliver(res.Recipients, "", protocol.StreamStopped{UserID: sid})
}

func (o *Orchestrator) chat(sid domain.UserID, content string) {
	roomName, ok := o.Rooms.RoomOf(sid)
	if !ok {
		return
	}
	o.Broadcast(roomName, sid, protocol.ChatNotice{UserID: sid, Content: content})
}

// relaySignal forwards the payload untouched; an unknown target is not an error.
func (o *Orchestrator) relaySignal(sid domain.UserID, m protocol.WebRTCSignal) {
	if _, ok := o.Registry.Lookup(m.TargetUser); !ok {
		log.Debug().Str("module", "app.orch").Str("sid", string(sid)).Str("target", string(m.TargetUser)).Msg("signal target unreachable")
		return
	}
	o.SendTo(m.TargetUser, protocol.SignalRelay{FromUser: sid, Signal: m.Signal})
}
