package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

var (
	ErrEmptyContent       = errors.New("chat: message content is required")
	ErrContentTooLong     = errors.New("chat: message content is too long")
	ErrInvalidMessageType = errors.New("chat: invalid message type")
	ErrMessageNotFound    = errors.New("chat: message not found")
)

const MaxContentLength = 2000

type MessageID string

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageOffer MessageType = "offer"
)

type Receipt struct {
	UserID UserID
	ReadAt time.Time
}

type Message struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Type           MessageType
	CreatedAt      time.Time
	ReadBy         []Receipt
}

type Page struct {
	Number int
	Limit  int
}

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// Normalized applies defaults: first page, 50 items, at most 100.
func (p Page) Normalized() Page {
	out := p
	if out.Number < 1 {
		out.Number = 1
	}
	if out.Limit <= 0 {
		out.Limit = DefaultPageLimit
	}
	if out.Limit > MaxPageLimit {
		out.Limit = MaxPageLimit
	}
	return out
}

func (p Page) Offset() int {
	n := p.Normalized()
	return (n.Number - 1) * n.Limit
}

// MessageRepository stores messages. It never touches conversation state.
type MessageRepository interface {
	Append(ctx context.Context, msg *Message) error
	ListFor(ctx context.Context, id ConversationID, page Page) ([]*Message, error)
	MarkReadFor(ctx context.Context, id ConversationID, reader UserID, at time.Time) (int, error)
}

type CreateMessageParams struct {
	ID             MessageID
	ConversationID ConversationID
	SenderID       UserID
	Content        string
	Type           MessageType
	Now            time.Time
}

func NewMessage(params CreateMessageParams) (*Message, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("chat: message id is required")
	}
	if strings.TrimSpace(string(params.ConversationID)) == "" {
		return nil, ErrConversationNotFound
	}
	if strings.TrimSpace(string(params.SenderID)) == "" {
		return nil, ErrParticipantRequired
	}
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentLength {
		return nil, fmt.Errorf("%w: max %d characters", ErrContentTooLong, MaxContentLength)
	}
	kind, err := ParseMessageType(string(params.Type))
	if err != nil {
		return nil, err
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	return &Message{
		ID:             params.ID,
		ConversationID: params.ConversationID,
		SenderID:       params.SenderID,
		Content:        content,
		Type:           kind,
		CreatedAt:      now.UTC(),
	}, nil
}

func ParseMessageType(raw string) (MessageType, error) {
	switch MessageType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MessageText:
		return MessageText, nil
	case MessageImage:
		return MessageImage, nil
	case MessageOffer:
		return MessageOffer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidMessageType, raw)
	}
}

func (m *Message) ReadByUser(user UserID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == user {
			return true
		}
	}
	return false
}

// MarkRead appends a receipt unless the reader sent the message or already read it.
func (m *Message) MarkRead(reader UserID, at time.Time) bool {
	if m.SenderID == reader || m.ReadByUser(reader) {
		return false
	}
	m.ReadBy = append(m.ReadBy, Receipt{UserID: reader, ReadAt: at.UTC()})
	return true
}

// IsValidationError reports whether err is caused by bad chat input.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrEmptyContent) ||
		errors.Is(err, ErrContentTooLong) ||
		errors.Is(err, ErrInvalidMessageType) ||
		errors.Is(err, ErrSelfConversation) ||
		errors.Is(err, ErrParticipantRequired)
}
