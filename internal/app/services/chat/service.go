package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"kisaanconnect/internal/app/outbox"
	"kisaanconnect/internal/app/policies"
	"kisaanconnect/internal/app/tasks"
	domainchat "kisaanconnect/internal/domain/chat"
	domainlistings "kisaanconnect/internal/domain/listings"
	domainuser "kisaanconnect/internal/domain/user"
)

var ErrParticipantNotFound = errors.New("chat: participant not found")

// Service owns the conversation and message stores. Every read and write
// checks that the caller participates in the conversation.
type Service struct {
	Conversations domainchat.ConversationRepository
	Messages      domainchat.MessageRepository
	Users         domainuser.Repository
	Listings      domainlistings.Repository
	Push          policies.PushNotifier
	Outbox        outbox.Outbox
	Encoder       outbox.EventEncoder
	Tasks         *tasks.Group
	Now           func() time.Time
	Logger        *slog.Logger
}

type StartParams struct {
	CallerID      domainchat.UserID
	ParticipantID domainchat.UserID
	ListingID     string
}

type ConversationView struct {
	Conversation *domainchat.Conversation
	Participant  *domainuser.User
	Listing      *domainlistings.Listing
}

type HistoryParams struct {
	ConversationID domainchat.ConversationID
	ReaderID       domainchat.UserID
	Page           domainchat.Page
}

type History struct {
	Conversation *domainchat.Conversation
	Messages     []*domainchat.Message
	Senders      map[domainchat.UserID]*domainuser.User
	Page         domainchat.Page
	MarkedRead   int
}

type SendParams struct {
	ConversationID domainchat.ConversationID
	SenderID       domainchat.UserID
	Content        string
	Type           string
}

type SendResult struct {
	Conversation *domainchat.Conversation
	Message      *domainchat.Message
	Sender       *domainuser.User
	RecipientID  domainchat.UserID
}

// FindBetween returns the pair's conversation. The listing argument never
// narrows the lookup.
func (s *Service) FindBetween(ctx context.Context, a, b domainchat.UserID, _ string) (*domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	key, err := domainchat.PairKey(a, b)
	if err != nil {
		return nil, err
	}
	return s.Conversations.ByPair(ctx, key)
}

// ConversationsFor lists the user's active conversations, most recent first.
func (s *Service) ConversationsFor(ctx context.Context, user domainchat.UserID) ([]ConversationView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	convs, err := s.Conversations.ListFor(ctx, user)
	if err != nil {
		return nil, err
	}
	active := convs[:0]
	for _, conv := range convs {
		if conv.Active {
			active = append(active, conv)
		}
	}
	domainchat.SortByActivity(active)

	ids := make([]domainuser.ID, 0, len(active))
	for _, conv := range active {
		ids = append(ids, domainuser.ID(conv.Other(user)))
	}
	users, err := s.Users.ByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load participants: %w", err)
	}
	views := make([]ConversationView, 0, len(active))
	for _, conv := range active {
		views = append(views, ConversationView{
			Conversation: conv,
			Participant:  users[domainuser.ID(conv.Other(user))],
			Listing:      s.lookupListing(ctx, conv.ListingID),
		})
	}
	return views, nil
}

// CreateOrGet returns the pair's conversation, creating it when missing.
// A concurrent creator losing the unique-pair race falls back to the lookup.
func (s *Service) CreateOrGet(ctx context.Context, a, b domainchat.UserID, listingID string) (*domainchat.Conversation, bool, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, false, err
	}
	key, err := domainchat.PairKey(a, b)
	if err != nil {
		return nil, false, err
	}
	listingID = strings.TrimSpace(listingID)

	existing, err := s.Conversations.ByPair(ctx, key)
	switch {
	case err == nil:
		return s.attachListing(ctx, existing, listingID), false, nil
	case !errors.Is(err, domainchat.ErrConversationNotFound):
		return nil, false, err
	}

	conv, err := domainchat.NewConversation(domainchat.CreateConversationParams{
		ID:        domainchat.ConversationID(uuid.NewString()),
		A:         a,
		B:         b,
		ListingID: listingID,
		Now:       s.now(),
	})
	if err != nil {
		return nil, false, err
	}
	if err := s.Conversations.Create(ctx, conv); err != nil {
		if !errors.Is(err, domainchat.ErrConversationExists) {
			return nil, false, err
		}
		existing, lookupErr := s.Conversations.ByPair(ctx, key)
		if lookupErr != nil {
			return nil, false, lookupErr
		}
		if s.Logger != nil {
			s.Logger.Debug("conversation create lost race", "conversation_id", existing.ID)
		}
		return s.attachListing(ctx, existing, listingID), false, nil
	}
	if err := outbox.RecordPending(ctx, s.Outbox, s.Encoder, conv); err != nil && s.Logger != nil {
		s.Logger.Warn("conversation event not recorded", "conversation_id", conv.ID, "error", err)
	}
	if s.Logger != nil {
		s.Logger.Info("conversation started", "conversation_id", conv.ID, "listing_id", conv.ListingID)
	}
	return conv, true, nil
}

// Start validates the other participant and returns the pair's conversation.
func (s *Service) Start(ctx context.Context, params StartParams) (*ConversationView, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	participantID := domainchat.UserID(strings.TrimSpace(string(params.ParticipantID)))
	if participantID == "" {
		return nil, domainchat.ErrParticipantRequired
	}
	if participantID == params.CallerID {
		return nil, domainchat.ErrSelfConversation
	}
	participant, err := s.Users.ByID(ctx, domainuser.ID(participantID))
	if err != nil {
		if errors.Is(err, domainuser.ErrNotFound) {
			return nil, ErrParticipantNotFound
		}
		return nil, err
	}
	listing := s.lookupListing(ctx, params.ListingID)
	listingID := ""
	if listing != nil {
		listingID = string(listing.ID)
	}
	conv, _, err := s.CreateOrGet(ctx, params.CallerID, participantID, listingID)
	if err != nil {
		return nil, err
	}
	if listing == nil {
		listing = s.lookupListing(ctx, conv.ListingID)
	}
	return &ConversationView{Conversation: conv, Participant: participant, Listing: listing}, nil
}

// Conversation loads a conversation the caller participates in.
func (s *Service) Conversation(ctx context.Context, id domainchat.ConversationID, caller domainchat.UserID) (*domainchat.Conversation, error) {
	if err := s.ensureDependencies(); err != nil {
		return nil, err
	}
	conv, err := s.Conversations.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !conv.HasParticipant(caller) {
		return nil, domainchat.ErrNotParticipant
	}
	return conv, nil
}

// History returns one page of messages oldest first and then marks the
// reader's unread messages as read. The returned messages reflect the state
// before marking.
func (s *Service) History(ctx context.Context, params HistoryParams) (*History, error) {
	conv, err := s.Conversation(ctx, params.ConversationID, params.ReaderID)
	if err != nil {
		return nil, err
	}
	page := params.Page.Normalized()
	msgs, err := s.Messages.ListFor(ctx, conv.ID, page)
	if err != nil {
		return nil, err
	}
	users, err := s.Users.ByIDs(ctx, []domainuser.ID{
		domainuser.ID(conv.Participants[0]),
		domainuser.ID(conv.Participants[1]),
	})
	if err != nil {
		return nil, fmt.Errorf("load senders: %w", err)
	}
	senders := make(map[domainchat.UserID]*domainuser.User, len(users))
	for id, u := range users {
		senders[domainchat.UserID(id)] = u
	}
	marked, err := s.markRead(ctx, conv, params.ReaderID)
	if err != nil {
		return nil, err
	}
	return &History{
		Conversation: conv,
		Messages:     msgs,
		Senders:      senders,
		Page:         page,
		MarkedRead:   marked,
	}, nil
}

// Send persists a message, updates the conversation summary and the
// recipient's unread counter, and schedules the push notification.
func (s *Service) Send(ctx context.Context, params SendParams) (*SendResult, error) {
	conv, err := s.Conversation(ctx, params.ConversationID, params.SenderID)
	if err != nil {
		return nil, err
	}
	kind, err := domainchat.ParseMessageType(params.Type)
	if err != nil {
		return nil, err
	}
	msg, err := domainchat.NewMessage(domainchat.CreateMessageParams{
		ID:             domainchat.MessageID(uuid.NewString()),
		ConversationID: conv.ID,
		SenderID:       params.SenderID,
		Content:        params.Content,
		Type:           kind,
		Now:            s.now(),
	})
	if err != nil {
		return nil, err
	}
	sender, err := s.Users.ByID(ctx, domainuser.ID(params.SenderID))
	if err != nil {
		return nil, fmt.Errorf("load sender: %w", err)
	}
	if err := s.Messages.Append(ctx, msg); err != nil {
		return nil, err
	}
	recipient := conv.Other(params.SenderID)
	last := domainchat.LastMessage{Content: msg.Content, SenderID: msg.SenderID, At: msg.CreatedAt}
	if err := s.Conversations.RecordMessage(ctx, conv.ID, last, recipient); err != nil {
		return nil, fmt.Errorf("update conversation summary: %w", err)
	}
	conv.LastMessage = &last
	if conv.Unread == nil {
		conv.Unread = map[domainchat.UserID]int{}
	}
	conv.Unread[recipient]++
	conv.UpdatedAt = msg.CreatedAt

	ev := domainchat.MessageSentEvent{
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		SenderID:       msg.SenderID,
		RecipientID:    recipient,
		Type:           msg.Type,
		At:             msg.CreatedAt,
	}
	conv.Record(ev)
	if err := outbox.RecordPending(ctx, s.Outbox, s.Encoder, conv); err != nil && s.Logger != nil {
		s.Logger.Warn("message event not recorded", "conversation_id", conv.ID, "error", err)
	}

	s.notifyRecipient(ctx, recipient, policies.ChatMessageNotice{
		ChatID:     string(conv.ID),
		SenderID:   string(msg.SenderID),
		SenderName: sender.Name,
		Content:    msg.Content,
		At:         msg.CreatedAt,
	})

	return &SendResult{
		Conversation: conv,
		Message:      msg,
		Sender:       sender,
		RecipientID:  recipient,
	}, nil
}

// MarkRead records receipts for every incoming message and lowers the
// reader's unread counter by the number of receipts written.
func (s *Service) MarkRead(ctx context.Context, id domainchat.ConversationID, reader domainchat.UserID) (int, error) {
	conv, err := s.Conversation(ctx, id, reader)
	if err != nil {
		return 0, err
	}
	return s.markRead(ctx, conv, reader)
}

func (s *Service) markRead(ctx context.Context, conv *domainchat.Conversation, reader domainchat.UserID) (int, error) {
	count, err := s.Messages.MarkReadFor(ctx, conv.ID, reader, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark messages read: %w", err)
	}
	if count == 0 {
		return 0, nil
	}
	if err := s.Conversations.ReleaseUnread(ctx, conv.ID, reader, count); err != nil {
		return 0, fmt.Errorf("release unread: %w", err)
	}
	return count, nil
}

func (s *Service) notifyRecipient(ctx context.Context, recipient domainchat.UserID, notice policies.ChatMessageNotice) {
	if s.Push == nil {
		return
	}
	group := s.Tasks
	if group == nil {
		group = &tasks.Group{Logger: s.Logger}
	}
	group.Go(ctx, "chat.push", func(ctx context.Context) error {
		user, err := s.Users.ByID(ctx, domainuser.ID(recipient))
		if err != nil {
			return fmt.Errorf("load recipient %s: %w", recipient, err)
		}
		s.Push.NotifyChatMessage(ctx, user.PushToken, notice)
		return nil
	})
}

func (s *Service) attachListing(ctx context.Context, conv *domainchat.Conversation, listingID string) *domainchat.Conversation {
	if listingID == "" || conv.ListingID == listingID {
		return conv
	}
	now := s.now()
	if err := s.Conversations.AttachListing(ctx, conv.ID, listingID, now); err != nil {
		if s.Logger != nil {
			s.Logger.Warn("attach listing to conversation failed", "conversation_id", conv.ID, "listing_id", listingID, "error", err)
		}
		return conv
	}
	conv.ListingID = listingID
	conv.UpdatedAt = now.UTC()
	return conv
}

func (s *Service) lookupListing(ctx context.Context, id string) *domainlistings.Listing {
	id = strings.TrimSpace(id)
	if id == "" || s.Listings == nil {
		return nil
	}
	listing, err := s.Listings.ByID(ctx, domainlistings.ListingID(id))
	if err != nil {
		if !errors.Is(err, domainlistings.ErrNotFound) && s.Logger != nil {
			s.Logger.Warn("listing lookup failed", "listing_id", id, "error", err)
		}
		return nil
	}
	return listing
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) ensureDependencies() error {
	switch {
	case s.Conversations == nil:
		return errors.New("chat: conversation repository required")
	case s.Messages == nil:
		return errors.New("chat: message repository required")
	case s.Users == nil:
		return errors.New("chat: user repository required")
	default:
		return nil
	}
}
