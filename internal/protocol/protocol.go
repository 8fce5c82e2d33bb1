// Package protocol defines the event envelope and payload types exchanged
// between chat clients and the relay server over a WebSocket connection.
//
// Every text frame carries exactly one JSON envelope:
//
//	{"event": "send_message", "data": {"author": "...", "message": "...", "time": "...", "roomId": "..."}}
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Event names understood by the server and the client session.
const (
	EventJoinRoom       = "join_room"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventRoomJoined     = "room_joined"
	EventUserJoined     = "user_joined"
	EventUserLeft       = "user_left"
)

// TimeLayout is the hour:minute format used for message timestamps.
const TimeLayout = "15:04"

// ErrMissingEvent is returned when a frame decodes but names no event.
var ErrMissingEvent = errors.New("protocol: envelope has no event name")

// Envelope is the outer frame of every message on the wire.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// JoinRoom asks the server to move the connection into a room.
type JoinRoom struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// ChatMessage is both the send_message request and the receive_message
// notification. Server-synthesized notices set IsSystemMessage.
type ChatMessage struct {
	Author          string `json:"author"`
	Message         string `json:"message"`
	Time            string `json:"time"`
	RoomID          string `json:"roomId"`
	IsSystemMessage bool   `json:"isSystemMessage,omitempty"`
}

// RoomJoined is the private acknowledgment sent to a joining connection.
type RoomJoined struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

// Presence is the payload of user_joined and user_left.
type Presence struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// NewEnvelope marshals payload into an envelope for the given event.
func NewEnvelope(event string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", event, err)
	}
	return Envelope{Event: event, Data: data}, nil
}

// Decode parses a raw frame into an envelope.
func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Event == "" {
		return Envelope{}, ErrMissingEvent
	}
	return env, nil
}

// Encode serializes an envelope into a frame.
func Encode(env Envelope) ([]byte, error) {
	return json.Marshal(env)
}

// Bind unmarshals the envelope data into v. An envelope without data leaves
// v untouched.
func (e Envelope) Bind(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// Stamp formats t with TimeLayout.
func Stamp(t time.Time) string {
	return t.Format(TimeLayout)
}
