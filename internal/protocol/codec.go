package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dkeye/StreamRoom/internal/core"
	"github.com/dkeye/StreamRoom/internal/domain"
)

// ErrMalformed wraps every decode failure: bad JSON, unknown type or missing fields.
var ErrMalformed = errors.New("malformed frame")

var nullSignal = json.RawMessage("null")

type envelope struct {
	Type Kind `json:"type"`
}

// Encode renders msg as a tagged JSON object.
func Encode(msg ServerMessage) (core.Frame, error) {
	return encodeTagged(msg.Kind(), msg)
}

// EncodeClient renders an inbound variant; used by clients and tests.
func EncodeClient(msg ClientMessage) (core.Frame, error) {
	return encodeTagged(msg.Kind(), msg)
}

func encodeTagged(kind Kind, v any) (core.Frame, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	// Chat text and relayed payloads go out as received.
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	body := bytes.TrimRight(buf.Bytes(), "\n")

	tag, err := json.Marshal(string(kind))
	if err != nil {
		return nil, fmt.Errorf("encode %s tag: %w", kind, err)
	}

	out := make([]byte, 0, len(body)+len(tag)+10)
	out = append(out, `{"type":`...)
	out = append(out, tag...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}

// DecodeClient parses one inbound text frame.
func DecodeClient(data []byte) (ClientMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case KindJoinRoom:
		var p struct {
			RoomName *domain.RoomName `json:"room_name"`
		}
		if err := unmarshalBody(data, &p); err != nil {
			return nil, err
		}
		if p.RoomName == nil {
			return nil, missing(env.Type, "room_name")
		}
		return JoinRoom{RoomName: *p.RoomName}, nil
	case KindLeaveRoom:
		return LeaveRoom{}, nil
	case KindStartStream:
		return StartStream{}, nil
	case KindStopStream:
		return StopStream{}, nil
	case KindChatMessage:
		var p struct {
			Content *string `json:"content"`
		}
		if err := unmarshalBody(data, &p); err != nil {
			return nil, err
		}
		if p.Content == nil {
			return nil, missing(env.Type, "content")
		}
		return ChatMessage{Content: *p.Content}, nil
	case KindWebRTCSignal:
		var p struct {
			TargetUser *domain.UserID  `json:"target_user"`
			Signal     json.RawMessage `json:"signal"`
		}
		if err := unmarshalBody(data, &p); err != nil {
			return nil, err
		}
		if p.TargetUser == nil {
			return nil, missing(env.Type, "target_user")
		}
		if p.Signal == nil {
			p.Signal = nullSignal
		}
		return WebRTCSignal{TargetUser: *p.TargetUser, Signal: p.Signal}, nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

// DecodeServer parses one outbound frame; the server never calls it, clients and tests do.
func DecodeServer(data []byte) (ServerMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	switch env.Type {
	case KindRoomJoined:
		return decodeAs[RoomJoined](data)
	case KindUserJoined:
		return decodeAs[UserJoined](data)
	case KindUserLeft:
		return decodeAs[UserLeft](data)
	case KindStreamStarted:
		return decodeAs[StreamStarted](data)
	case KindStreamStopped:
		return decodeAs[StreamStopped](data)
	case KindChatMessage:
		return decodeAs[ChatNotice](data)
	case KindWebRTCSignal:
		return decodeAs[SignalRelay](data)
	case KindError:
		return decodeAs[Error](data)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformed, env.Type)
	}
}

func decodeAs[T ServerMessage](data []byte) (ServerMessage, error) {
	var msg T
	if err := unmarshalBody(data, &msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func unmarshalBody(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func missing(kind Kind, field string) error {
	return fmt.Errorf("%w: %s without %s", ErrMalformed, kind, field)
}
