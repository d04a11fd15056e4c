package collab

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeChat       MessageType = "chat"
	TypeCursor     MessageType = "cursor"
	TypePresence   MessageType = "presence"
	TypeErrorEvent MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

type Chat struct {
	Type   MessageType `json:"type"`
	Room   string      `json:"room"`
	UserID string      `json:"user_id"`
	Name   string      `json:"name,omitempty"`
	Text   string      `json:"text"`
	TSMs   int64       `json:"ts_ms"`
}

type Cursor struct {
	Type     MessageType `json:"type"`
	Room     string      `json:"room"`
	UserID   string      `json:"user_id"`
	Position int         `json:"position"`
	Section  string      `json:"section,omitempty"`
}

// Member describes one connected participant.
type Member struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// Presence is broadcast by the hub when room membership changes.
type Presence struct {
	Type    MessageType `json:"type"`
	Room    string      `json:"room"`
	Event   string      `json:"event"`
	UserID  string      `json:"user_id"`
	Members []Member    `json:"members"`
}

type ErrorEvent struct {
	Type   MessageType `json:"type"`
	Code   string      `json:"code"`
	Detail string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeChat:
		var msg Chat
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Text == "" {
			return nil, errors.New("invalid chat: empty text")
		}
		return msg, nil
	case TypeCursor:
		var msg Cursor
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

func messageTypeOf(msg any) (MessageType, bool) {
	switch m := msg.(type) {
	case Chat:
		return m.Type, true
	case Cursor:
		return m.Type, true
	case Presence:
		return m.Type, true
	case ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
