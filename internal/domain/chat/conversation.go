package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"kisaanconnect/internal/domain/shared/events"
)

var (
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrConversationExists   = errors.New("chat: conversation already exists for participants")
	ErrSelfConversation     = errors.New("chat: cannot start a conversation with yourself")
	ErrParticipantRequired  = errors.New("chat: both participants are required")
	ErrNotParticipant       = errors.New("chat: user is not a participant")
)

type ConversationID string

// UserID mirrors user.ID without importing the user package into every caller.
type UserID string

type LastMessage struct {
	Content  string
	SenderID UserID
	At       time.Time
}

type Conversation struct {
	ID           ConversationID
	Participants [2]UserID
	PairKey      string
	ListingID    string
	LastMessage  *LastMessage
	Unread       map[UserID]int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	events.EventRecorder
}

// ConversationRepository persists conversations. Create must report
// ErrConversationExists when the pair key is already taken. ReleaseUnread
// lowers a counter by count, never below zero.
type ConversationRepository interface {
	ByID(ctx context.Context, id ConversationID) (*Conversation, error)
	ByPair(ctx context.Context, pairKey string) (*Conversation, error)
	ListFor(ctx context.Context, user UserID) ([]*Conversation, error)
	Create(ctx context.Context, conv *Conversation) error
	AttachListing(ctx context.Context, id ConversationID, listingID string, now time.Time) error
	RecordMessage(ctx context.Context, id ConversationID, last LastMessage, recipient UserID) error
	ReleaseUnread(ctx context.Context, id ConversationID, user UserID, count int) error
}

type CreateConversationParams struct {
	ID        ConversationID
	A         UserID
	B         UserID
	ListingID string
	Now       time.Time
}

func NewConversation(params CreateConversationParams) (*Conversation, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("chat: conversation id is required")
	}
	participants, err := NormalizePair(params.A, params.B)
	if err != nil {
		return nil, err
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()
	conv := &Conversation{
		ID:           params.ID,
		Participants: participants,
		PairKey:      pairKey(participants),
		ListingID:    strings.TrimSpace(params.ListingID),
		Unread: map[UserID]int{
			participants[0]: 0,
			participants[1]: 0,
		},
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	conv.Record(ConversationStartedEvent{
		ConversationID: conv.ID,
		Participants:   participants,
		ListingID:      conv.ListingID,
		At:             now,
	})
	return conv, nil
}

// NormalizePair orders the two participants so that (a,b) and (b,a) produce the same pair.
func NormalizePair(a, b UserID) ([2]UserID, error) {
	a = UserID(strings.TrimSpace(string(a)))
	b = UserID(strings.TrimSpace(string(b)))
	if a == "" || b == "" {
		return [2]UserID{}, ErrParticipantRequired
	}
	if a == b {
		return [2]UserID{}, ErrSelfConversation
	}
	pair := []string{string(a), string(b)}
	sort.Strings(pair)
	return [2]UserID{UserID(pair[0]), UserID(pair[1])}, nil
}

// PairKey returns the uniqueness key shared by both orderings of a user pair.
func PairKey(a, b UserID) (string, error) {
	pair, err := NormalizePair(a, b)
	if err != nil {
		return "", err
	}
	return pairKey(pair), nil
}

func pairKey(pair [2]UserID) string {
	return string(pair[0]) + ":" + string(pair[1])
}

func (c *Conversation) HasParticipant(user UserID) bool {
	return c.Participants[0] == user || c.Participants[1] == user
}

// Other returns the participant that is not user.
func (c *Conversation) Other(user UserID) UserID {
	if c.Participants[0] == user {
		return c.Participants[1]
	}
	return c.Participants[0]
}

func (c *Conversation) UnreadFor(user UserID) int {
	if c.Unread == nil {
		return 0
	}
	return c.Unread[user]
}

// LastActivity is the sort key for conversation lists.
func (c *Conversation) LastActivity() time.Time {
	if c.LastMessage != nil && !c.LastMessage.At.IsZero() {
		return c.LastMessage.At
	}
	return c.UpdatedAt
}

// SortByActivity orders conversations newest first.
func SortByActivity(items []*Conversation) {
	sort.SliceStable(items, func(i, j int) bool {
		ai, aj := items[i].LastActivity(), items[j].LastActivity()
		if ai.Equal(aj) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return ai.After(aj)
	})
}
