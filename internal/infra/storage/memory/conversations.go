package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	domainchat "kisaanconnect/internal/domain/chat"
)

// ConversationRepository keeps conversations in memory with a unique pair index.
type ConversationRepository struct {
	mu     sync.RWMutex
	byID   map[domainchat.ConversationID]*domainchat.Conversation
	byPair map[string]domainchat.ConversationID
}

func NewConversationRepository() *ConversationRepository {
	return &ConversationRepository{
		byID:   make(map[domainchat.ConversationID]*domainchat.Conversation),
		byPair: make(map[string]domainchat.ConversationID),
	}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conv, ok := r.byID[id]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(conv), nil
}

func (r *ConversationRepository) ByPair(ctx context.Context, pairKey string) (*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byPair[pairKey]
	if !ok {
		return nil, domainchat.ErrConversationNotFound
	}
	return cloneConversation(r.byID[id]), nil
}

func (r *ConversationRepository) ListFor(ctx context.Context, user domainchat.UserID) ([]*domainchat.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*domainchat.Conversation, 0)
	for _, conv := range r.byID {
		if conv.HasParticipant(user) {
			out = append(out, cloneConversation(conv))
		}
	}
	domainchat.SortByActivity(out)
	return out, nil
}

// Create inserts conv unless its pair is already taken.
func (r *ConversationRepository) Create(ctx context.Context, conv *domainchat.Conversation) error {
	if conv == nil || strings.TrimSpace(conv.PairKey) == "" {
		return domainchat.ErrParticipantRequired
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byPair[conv.PairKey]; taken {
		return domainchat.ErrConversationExists
	}
	r.byPair[conv.PairKey] = conv.ID
	r.byID[conv.ID] = cloneConversation(conv)
	return nil
}

func (r *ConversationRepository) AttachListing(ctx context.Context, id domainchat.ConversationID, listingID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	conv.ListingID = listingID
	conv.UpdatedAt = now.UTC()
	return nil
}

// RecordMessage sets the summary and bumps the recipient counter under one lock.
func (r *ConversationRepository) RecordMessage(ctx context.Context, id domainchat.ConversationID, last domainchat.LastMessage, recipient domainchat.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	summary := last
	conv.LastMessage = &summary
	if conv.Unread == nil {
		conv.Unread = make(map[domainchat.UserID]int)
	}
	conv.Unread[recipient]++
	conv.UpdatedAt = last.At.UTC()
	return nil
}

func (r *ConversationRepository) ReleaseUnread(ctx context.Context, id domainchat.ConversationID, user domainchat.UserID, count int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	conv, ok := r.byID[id]
	if !ok {
		return domainchat.ErrConversationNotFound
	}
	if conv.Unread == nil {
		conv.Unread = make(map[domainchat.UserID]int)
	}
	conv.Unread[user] = max(conv.Unread[user]-count, 0)
	return nil
}

func cloneConversation(c *domainchat.Conversation) *domainchat.Conversation {
	if c == nil {
		return nil
	}
	out := &domainchat.Conversation{
		ID:           c.ID,
		Participants: c.Participants,
		PairKey:      c.PairKey,
		ListingID:    c.ListingID,
		Active:       c.Active,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
		Unread:       make(map[domainchat.UserID]int, len(c.Unread)),
	}
	if c.LastMessage != nil {
		last := *c.LastMessage
		out.LastMessage = &last
	}
	for k, v := range c.Unread {
		out.Unread[k] = v
	}
	return out
}

// MessageRepository keeps messages per conversation in insertion order.
type MessageRepository struct {
	mu     sync.RWMutex
	byConv map[domainchat.ConversationID][]*domainchat.Message
}

func NewMessageRepository() *MessageRepository {
	return &MessageRepository{byConv: make(map[domainchat.ConversationID][]*domainchat.Message)}
}

func (r *MessageRepository) Append(ctx context.Context, msg *domainchat.Message) error {
	if msg == nil {
		return domainchat.ErrEmptyContent
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byConv[msg.ConversationID] = append(r.byConv[msg.ConversationID], cloneMessage(msg))
	return nil
}

// ListFor returns a page ordered by creation time, oldest first.
func (r *MessageRepository) ListFor(ctx context.Context, id domainchat.ConversationID, page domainchat.Page) ([]*domainchat.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	all := make([]*domainchat.Message, len(r.byConv[id]))
	copy(all, r.byConv[id])
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})
	page = page.Normalized()
	start := page.Offset()
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Limit
	if end > len(all) {
		end = len(all)
	}
	out := make([]*domainchat.Message, 0, end-start)
	for _, msg := range all[start:end] {
		out = append(out, cloneMessage(msg))
	}
	return out, nil
}

func (r *MessageRepository) MarkReadFor(ctx context.Context, id domainchat.ConversationID, reader domainchat.UserID, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, msg := range r.byConv[id] {
		if msg.MarkRead(reader, at) {
			count++
		}
	}
	return count, nil
}

func cloneMessage(m *domainchat.Message) *domainchat.Message {
	out := *m
	out.ReadBy = append([]domainchat.Receipt(nil), m.ReadBy...)
	return &out
}

var (
	_ domainchat.ConversationRepository = (*ConversationRepository)(nil)
	_ domainchat.MessageRepository      = (*MessageRepository)(nil)
)
