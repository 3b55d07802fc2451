package chat

import (
	"encoding/json"
	"time"
)

// Frame types on the wire. Payloads are JSON objects with a mandatory `type`
// discriminator.
const (
	FrameMessage      = "message"
	FrameTyping       = "typing"
	FramePing         = "ping"
	FramePong         = "pong"
	FrameError        = "error"
	FrameNotification = "notification"
)

// InboundFrame is what a client sends over an active connection.
type InboundFrame struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

// MessageFrame fans a persisted message out to every member of the room.
type MessageFrame struct {
	Type       string `json:"type"`
	MessageID  string `json:"message_id"`
	Message    string `json:"message"`
	SenderID   string `json:"sender_id"`
	SenderName string `json:"sender_name"`
	Role       string `json:"role,omitempty"` // admin|publisher, publisher-admin rooms only
	Timestamp  int64  `json:"timestamp"`
}

// TypingFrame goes to every member except the typist. Never persisted.
type TypingFrame struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// ErrorFrame is a one-shot reply to the offending connection only.
type ErrorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

func newMessageFrame(m *ChatMessage, role string) MessageFrame {
	return MessageFrame{
		Type:       FrameMessage,
		MessageID:  m.ID,
		Message:    m.Body,
		SenderID:   m.SenderID,
		SenderName: m.SenderName,
		Role:       role,
		Timestamp:  m.CreatedAt.UnixMilli(),
	}
}

func errorFrameBytes(msg string) []byte {
	b, _ := json.Marshal(ErrorFrame{Type: FrameError, Error: msg})
	return b
}

func pongFrameBytes() []byte {
	b, _ := json.Marshal(map[string]any{"type": FramePong, "server_time": time.Now().UnixMilli()})
	return b
}

// roomEvent is the envelope carried on the broker between fan-out consumers.
// OriginConn lets the typing path exclude the sender's own connection.
type roomEvent struct {
	Kind       string          `json:"kind"` // message | typing
	OriginConn string          `json:"origin_conn,omitempty"`
	Payload    json.RawMessage `json:"payload"`
}
