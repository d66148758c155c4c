// Package protocol defines the tagged message variants exchanged with clients
// and their JSON text-frame encoding. Every frame is an object whose "type"
// field names the variant.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/StreamRoom/internal/domain"
)

type Kind string

const (
	KindJoinRoom     Kind = "JoinRoom"
	KindLeaveRoom    Kind = "LeaveRoom"
	KindStartStream  Kind = "StartStream"
	KindStopStream   Kind = "StopStream"
	KindChatMessage  Kind = "ChatMessage"
	KindWebRTCSignal Kind = "WebRTCSignal"

	KindRoomJoined    Kind = "RoomJoined"
	KindUserJoined    Kind = "UserJoined"
	KindUserLeft      Kind = "UserLeft"
	KindStreamStarted Kind = "StreamStarted"
	KindStreamStopped Kind = "StreamStopped"
	KindError         Kind = "Error"
)

// ClientMessage is one inbound variant.
type ClientMessage interface {
	Kind() Kind
	isClient()
}

// ServerMessage is one outbound variant.
type ServerMessage interface {
	Kind() Kind
	isServer()
}

type JoinRoom struct {
	RoomName domain.RoomName `json:"room_name"`
}

type LeaveRoom struct{}

type StartStream struct{}

type StopStream struct{}

type ChatMessage struct {
	Content string `json:"content"`
}

// WebRTCSignal carries an opaque negotiation payload for one target.
type WebRTCSignal struct {
	TargetUser domain.UserID   `json:"target_user"`
	Signal     json.RawMessage `json:"signal"`
}

func (JoinRoom) Kind() Kind     { return KindJoinRoom }
func (LeaveRoom) Kind() Kind    { return KindLeaveRoom }
func (StartStream) Kind() Kind  { return KindStartStream }
func (StopStream) Kind() Kind   { return KindStopStream }
func (ChatMessage) Kind() Kind  { return KindChatMessage }
func (WebRTCSignal) Kind() Kind { return KindWebRTCSignal }

func (JoinRoom) isClient()     {}
func (LeaveRoom) isClient()    {}
func (StartStream) isClient()  {}
func (StopStream) isClient()   {}
func (ChatMessage) isClient()  {}
func (WebRTCSignal) isClient() {}

// RoomJoined confirms a join to the joiner with the room snapshot taken right after insertion.
type RoomJoined struct {
	RoomName domain.RoomName `json:"room_name"`
	Users    []domain.Member `json:"users"`
	Streamer *domain.UserID  `json:"streamer"`
}

type UserJoined struct {
	User domain.Member `json:"user"`
}

type UserLeft struct {
	UserID domain.UserID `json:"user_id"`
}

type StreamStarted struct {
	UserID domain.UserID `json:"user_id"`
}

type StreamStopped struct {
	UserID domain.UserID `json:"user_id"`
}

// ChatNotice is the outbound ChatMessage variant.
type ChatNotice struct {
	UserID  domain.UserID `json:"user_id"`
	Content string        `json:"content"`
}

// SignalRelay is the outbound WebRTCSignal variant.
type SignalRelay struct {
	FromUser domain.UserID   `json:"from_user"`
	Signal   json.RawMessage `json:"signal"`
}

// Error is reserved for protocol-level failures.
type Error struct {
	Message string `json:"message"`
}

func (RoomJoined) Kind() Kind    { return KindRoomJoined }
func (UserJoined) Kind() Kind    { return KindUserJoined }
func (UserLeft) Kind() Kind      { return KindUserLeft }
func (StreamStarted) Kind() Kind { return KindStreamStarted }
func (StreamStopped) Kind() Kind { return KindStreamStopped }
func (ChatNotice) Kind() Kind    { return KindChatMessage }
func (SignalRelay) Kind() Kind   { return KindWebRTCSignal }
func (Error) Kind() Kind         { return KindError }

func (RoomJoined) isServer()    {}
func (UserJoined) isServer()    {}
func (UserLeft) isServer()      {}
func (StreamStarted) isServer() {}
func (StreamStopped) isServer() {}
func (ChatNotice) isServer()    {}
func (SignalRelay) isServer()   {}
func (Error) isServer()         {}
