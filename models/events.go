package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventName tags every frame exchanged on the chat socket.
type EventName string

// Client to server.
const (
	EventJoinRoom       EventName = "join-room"
	EventLeaveRoom      EventName = "leave-room"
	EventGetChatHistory EventName = "get-chat-history"
	EventSendMessage    EventName = "send-message"
)

// Server to client.
const (
	EventChatHistory    EventName = "chat-history"
	EventReceiveMessage EventName = "receive-message"
	EventError          EventName = "error"
)

// Envelope is the wire frame: {"event": "...", "data": ...}.
type Envelope struct {
	Event EventName       `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// RoomRequest is the payload of join-room, leave-room and get-chat-history.
// The payload may be a bare JSON string or {"roomId": "..."}.
type RoomRequest struct {
	RoomID string `json:"roomId" validate:"required,roomid"`
}

func (r *RoomRequest) UnmarshalJSON(b []byte) error {
	var id string
	if err := json.Unmarshal(b, &id); err == nil {
		r.RoomID = id
		return nil
	}
	type plain RoomRequest
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("room payload must be a string or an object: %w", err)
	}
	*r = RoomRequest(p)
	return nil
}

// SendMessageRequest is the payload of send-message.
type SendMessageRequest struct {
	RoomID     string `json:"roomId" validate:"required,roomid"`
	Message    string `json:"message"`
	Sender     string `json:"sender"`
	SenderName string `json:"senderName"`
}

// ReceiveMessage is broadcast to every subscriber of a room.
type ReceiveMessage struct {
	RoomID     string    `json:"roomId"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"senderName"`
	Message    string    `json:"message"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatHistory answers get-chat-history to the requesting connection only.
// It goes on the wire as a bare array; every entry names its room.
type ChatHistory []ReceiveMessage

// ErrorEvent tells a client why its last frame was rejected.
type ErrorEvent struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Event   EventName `json:"event,omitempty"`
}

// ServerEvent is an outbound frame before encoding.
type ServerEvent struct {
	Event EventName `json:"event"`
	Data  any       `json:"data"`
}

func NewReceiveMessage(m ChatMessage) ServerEvent {
	return ServerEvent{Event: EventReceiveMessage, Data: ToReceiveMessage(m)}
}

func NewChatHistory(msgs []ChatMessage) ServerEvent {
	out := make(ChatHistory, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, ToReceiveMessage(m))
	}
	return ServerEvent{Event: EventChatHistory, Data: out}
}

func NewErrorEvent(cause EventName, code, message string) ServerEvent {
	return ServerEvent{Event: EventError, Data: ErrorEvent{Code: code, Message: message, Event: cause}}
}

func ToReceiveMessage(m ChatMessage) ReceiveMessage {
	return ReceiveMessage{
		RoomID:     m.RoomID,
		Sender:     m.Sender,
		SenderName: m.SenderName,
		Message:    m.Body,
		Timestamp:  m.SentAt,
	}
}
