package orch

import (
	"errors"

	"github.com/dkeye/StreamRoom/internal/app"
	"github.com/dkeye/StreamRoom/internal/core"
	"github.com/dkeye/StreamRoom/internal/domain"
	"github.com/dkeye/StreamRoom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// SendTo queues msg for one identity. Delivery is fire-and-forget.
func (o *Orchestrator) SendTo(sid domain.UserID, msg protocol.ServerMessage) {
	frame, ok := encode(msg)
	if !ok {
		return
	}
	o.sendFrame(sid, frame)
}

// Broadcast sends msg to the members of roomName at call time, except exclude.
func (o *Orchestrator) Broadcast(roomName domain.RoomName, exclude domain.UserID, msg protocol.ServerMessage) {
	o.deliver(o.Rooms.Members(roomName), exclude, msg)
}

// deliver fans out to a recipient snapshot taken under the room table lock.
func (o *Orchestrator) deliver(recipients []domain.UserID, exclude domain.UserID, msg protocol.ServerMessage) {
	if len(recipients) == 0 {
		return
	}
	frame, ok := encode(msg)
	if !ok {
		return
	}
	sent := 0
	for _, sid := range recipients {
		if sid == exclude {
			continue
		}
		if o.sendFrame(sid, frame) {
			sent++
		}
	}
	log.Debug().Str("module", "app.fanout").Str("type", string(msg.Kind())).Int("sent_to", sent).Msg("broadcast result")
}

func (o *Orchestrator) sendFrame(sid domain.UserID, frame core.Frame) bool {
	conn, ok := o.Registry.Lookup(sid)
	if !ok {
		return false
	}
	err := conn.TrySend(frame)
	if err == nil {
		return true
	}
	if errors.Is(err, core.ErrBackpressure) {
		o.onBackPressure(sid)
		return false
	}
	log.Debug().Err(err).Str("module", "app.fanout").Str("sid", string(sid)).Msg("recipient unreachable")
	return false
}

func (o *Orchestrator) onBackPressure(sid domain.UserID) {
	action := app.DropFrame
	if o.Policy != nil {
		action = o.Policy.OnBackPressure(sid)
	}
	switch action {
	case app.KickMember:
		log.Warn().Str("module", "app.fanout").Str("sid", string(sid)).Msg("slow recipient kicked")
		o.Registry.Cancel(sid)
	case app.DropFrame, app.NoAction:
		log.Warn().Str("module", "app.fanout").Str("sid", string(sid)).Msg("slow recipient, frame dropped")
	}
}

func encode(msg protocol.ServerMessage) (core.Frame, bool) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.fanout").Msg("encode")
		return nil, false
	}
	return frame, true
}
