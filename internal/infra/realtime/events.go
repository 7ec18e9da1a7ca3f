package realtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Client to server event kinds.
const (
	KindJoinUser         = "join-user"
	KindJoinChat         = "join-chat"
	KindLeaveChat        = "leave-chat"
	KindSendMessage      = "send-message"
	KindTypingStart      = "typing-start"
	KindTypingStop       = "typing-stop"
	KindMarkMessagesRead = "mark-messages-read"
)

// Server to client event kinds.
const (
	KindNewMessage       = "new-message"
	KindChatNotification = "chat-notification"
	KindUserTyping       = "user-typing"
	KindUserStopTyping   = "user-stop-typing"
	KindMessagesRead     = "messages-read"
	KindError            = "error"
)

// Error codes carried by error events.
const (
	CodeValidation   = "validation_error"
	CodeUnauthorized = "unauthorized"
	CodeForbidden    = "forbidden"
	CodeNotFound     = "not_found"
	CodeInternal     = "internal_error"
)

var (
	ErrUnknownEvent   = errors.New("realtime: unknown event")
	ErrInvalidPayload = errors.New("realtime: invalid payload")
)

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound is a server event before encoding.
type Outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// Inbound is implemented by every decoded client event.
type Inbound interface {
	Kind() string
}

type JoinUser struct {
	UserID string `json:"userId"`
}

type JoinChat struct {
	ChatID string `json:"chatId"`
}

type LeaveChat struct {
	ChatID string `json:"chatId"`
}

type SendMessage struct {
	ChatID      string `json:"chatId"`
	Content     string `json:"content"`
	MessageType string `json:"messageType"`
}

type TypingStart struct {
	ChatID   string `json:"chatId"`
	UserName string `json:"userName"`
}

type TypingStop struct {
	ChatID   string `json:"chatId"`
	UserName string `json:"userName"`
}

type MarkMessagesRead struct {
	ChatID string `json:"chatId"`
}

func (JoinUser) Kind() string         { return KindJoinUser }
func (JoinChat) Kind() string         { return KindJoinChat }
func (LeaveChat) Kind() string        { return KindLeaveChat }
func (SendMessage) Kind() string      { return KindSendMessage }
func (TypingStart) Kind() string      { return KindTypingStart }
func (TypingStop) Kind() string       { return KindTypingStop }
func (MarkMessagesRead) Kind() string { return KindMarkMessagesRead }

// Decode parses a frame into its typed event and validates required fields.
// A bare JSON string payload is accepted as the id for the single-id events.
func Decode(raw []byte) (Inbound, error) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	switch frame.Event {
	case KindJoinUser:
		var ev JoinUser
		if id, ok := bareString(frame.Data); ok {
			ev.UserID = id
		} else if err := decodeData(frame.Data, &ev); err != nil {
			return nil, err
		}
		ev.UserID = strings.TrimSpace(ev.UserID)
		if ev.UserID == "" {
			return nil, fmt.Errorf("%w: userId is required", ErrInvalidPayload)
		}
		return ev, nil
	case KindJoinChat:
		id, err := chatIDFrom(frame.Data)
		if err != nil {
			return nil, err
		}
		return JoinChat{ChatID: id}, nil
	case KindLeaveChat:
		id, err := chatIDFrom(frame.Data)
		if err != nil {
			return nil, err
		}
		return LeaveChat{ChatID: id}, nil
	case KindMarkMessagesRead:
		id, err := chatIDFrom(frame.Data)
		if err != nil {
			return nil, err
		}
		return MarkMessagesRead{ChatID: id}, nil
	case KindSendMessage:
		var ev SendMessage
		if err := decodeData(frame.Data, &ev); err != nil {
			return nil, err
		}
		ev.ChatID = strings.TrimSpace(ev.ChatID)
		if ev.ChatID == "" {
			return nil, fmt.Errorf("%w: chatId is required", ErrInvalidPayload)
		}
		return ev, nil
	case KindTypingStart:
		var ev TypingStart
		if err := decodeData(frame.Data, &ev); err != nil {
			return nil, err
		}
		ev.ChatID = strings.TrimSpace(ev.ChatID)
		if ev.ChatID == "" {
			return nil, fmt.Errorf("%w: chatId is required", ErrInvalidPayload)
		}
		return ev, nil
	case KindTypingStop:
		var ev TypingStop
		if err := decodeData(frame.Data, &ev); err != nil {
			return nil, err
		}
		ev.ChatID = strings.TrimSpace(ev.ChatID)
		if ev.ChatID == "" {
			return nil, fmt.Errorf("%w: chatId is required", ErrInvalidPayload)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, frame.Event)
	}
}

func chatIDFrom(data json.RawMessage) (string, error) {
	id, ok := bareString(data)
	if !ok {
		var ref JoinChat
		if err := decodeData(data, &ref); err != nil {
			return "", err
		}
		id = ref.ChatID
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: chatId is required", ErrInvalidPayload)
	}
	return id, nil
}

func bareString(data json.RawMessage) (string, bool) {
	var s string
	if len(data) == 0 || data[0] != '"' {
		return "", false
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return "", false
	}
	return s, true
}

func decodeData(data json.RawMessage, out any) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: data is required", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

// Server payloads.

type ChatNotification struct {
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
}

type TypingNotice struct {
	ChatID   string `json:"chatId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
}

type ReadNotice struct {
	ChatID string `json:"chatId"`
	UserID string `json:"userId"`
	Count  int    `json:"count"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func errorEvent(code, message string) Outbound {
	return Outbound{Event: KindError, Data: ErrorPayload{Code: code, Message: message}}
}

func UserRoom(id string) string { return "user:" + id }
func ChatRoom(id string) string { return "chat:" + id }
