package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainchat "kisaanconnect/internal/domain/chat"
)

// ConversationRepository stores one document per user pair. Unread counters
// live in a map keyed by user id so a send is a single $inc.
type ConversationRepository struct {
	col *mongo.Collection
}

func NewConversationRepository(db *mongo.Database) *ConversationRepository {
	return &ConversationRepository{col: db.Collection(colConversations)}
}

func (r *ConversationRepository) ByID(ctx context.Context, id domainchat.ConversationID) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *ConversationRepository) ByPair(ctx context.Context, pairKey string) (*domainchat.Conversation, error) {
	return r.findOne(ctx, bson.M{"pair_key": pairKey})
}

func (r *ConversationRepository) ListFor(ctx context.Context, user domainchat.UserID) ([]*domainchat.Conversation, error) {
	cur, err := r.col.Find(ctx, bson.M{"participants": string(user)}, options.Find().SetSort(bson.D{{Key: "updated_at", Value: -1}}))
	if err != nil {
		return nil, err
	}
	var docs []conversationDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainchat.Conversation, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	domainchat.SortByActivity(out)
	return out, nil
}

func (r *ConversationRepository) Create(ctx context.Context, conv *domainchat.Conversation) error {
	if conv == nil || conv.PairKey == "" {
		return domainchat.ErrParticipantRequired
	}
	if _, err := r.col.InsertOne(ctx, newConversationDocument(conv)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return domainchat.ErrConversationExists
		}
		return err
	}
	return nil
}

func (r *ConversationRepository) AttachListing(ctx context.Context, id domainchat.ConversationID, listingID string, now time.Time) error {
	return r.update(ctx, id, bson.M{"$set": bson.M{"listing_id": listingID, "updated_at": millis(now)}})
}

func (r *ConversationRepository) RecordMessage(ctx context.Context, id domainchat.ConversationID, last domainchat.LastMessage, recipient domainchat.UserID) error {
	return r.update(ctx, id, bson.M{
		"$set": bson.M{
			"last_message": lastMessageDocument{Content: last.Content, SenderID: string(last.SenderID), At: millis(last.At)},
			"updated_at":   millis(last.At),
		},
		"$inc": bson.M{"unread." + string(recipient): 1},
	})
}

// ReleaseUnread subtracts in an update pipeline so a concurrent $inc from
// RecordMessage is never overwritten.
func (r *ConversationRepository) ReleaseUnread(ctx context.Context, id domainchat.ConversationID, user domainchat.UserID, count int) error {
	field := "unread." + string(user)
	return r.update(ctx, id, mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			field: bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{bson.M{"$ifNull": bson.A{"$" + field, 0}}, count}}}},
		}}},
	})
}

func (r *ConversationRepository) update(ctx context.Context, id domainchat.ConversationID, update any) error {
	res, err := r.col.UpdateByID(ctx, string(id), update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainchat.ErrConversationNotFound
	}
	return nil
}

func (r *ConversationRepository) findOne(ctx context.Context, filter bson.M) (*domainchat.Conversation, error) {
	var doc conversationDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainchat.ErrConversationNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

type lastMessageDocument struct {
	Content  string `bson:"content"`
	SenderID string `bson:"sender_id"`
	At       int64  `bson:"at"`
}

type conversationDocument struct {
	ID           string               `bson:"_id"`
	Participants []string             `bson:"participants"`
	PairKey      string               `bson:"pair_key"`
	ListingID    string               `bson:"listing_id,omitempty"`
	LastMessage  *lastMessageDocument `bson:"last_message,omitempty"`
	Unread       map[string]int       `bson:"unread"`
	Active       bool                 `bson:"active"`
	CreatedAt    int64                `bson:"created_at"`
	UpdatedAt    int64                `bson:"updated_at"`
}

func newConversationDocument(c *domainchat.Conversation) conversationDocument {
	doc := conversationDocument{
		ID:           string(c.ID),
		Participants: []string{string(c.Participants[0]), string(c.Participants[1])},
		PairKey:      c.PairKey,
		ListingID:    c.ListingID,
		Unread:       make(map[string]int, 2),
		Active:       c.Active,
		CreatedAt:    millis(c.CreatedAt),
		UpdatedAt:    millis(c.UpdatedAt),
	}
	for _, p := range c.Participants {
		doc.Unread[string(p)] = c.UnreadFor(p)
	}
	if c.LastMessage != nil {
		doc.LastMessage = &lastMessageDocument{
			Content:  c.LastMessage.Content,
			SenderID: string(c.LastMessage.SenderID),
			At:       millis(c.LastMessage.At),
		}
	}
	return doc
}

func (d conversationDocument) toAggregate() *domainchat.Conversation {
	conv := &domainchat.Conversation{
		ID:        domainchat.ConversationID(d.ID),
		PairKey:   d.PairKey,
		ListingID: d.ListingID,
		Unread:    make(map[domainchat.UserID]int, len(d.Unread)),
		Active:    d.Active,
		CreatedAt: fromMillis(d.CreatedAt),
		UpdatedAt: fromMillis(d.UpdatedAt),
	}
	for i := 0; i < len(d.Participants) && i < 2; i++ {
		conv.Participants[i] = domainchat.UserID(d.Participants[i])
	}
	for k, v := range d.Unread {
		conv.Unread[domainchat.UserID(k)] = v
	}
	if d.LastMessage != nil {
		conv.LastMessage = &domainchat.LastMessage{
			Content:  d.LastMessage.Content,
			SenderID: domainchat.UserID(d.LastMessage.SenderID),
			At:       fromMillis(d.LastMessage.At),
		}
	}
	return conv
}

// MessageRepository stores chat messages with their read receipts.
type MessageRepository struct {
	col *mongo.Collection
}

func NewMessageRepository(db *mongo.Database) *MessageRepository {
	return &MessageRepository{col: db.Collection(colMessages)}
}

func (r *MessageRepository) Append(ctx context.Context, msg *domainchat.Message) error {
	if msg == nil {
		return domainchat.ErrEmptyContent
	}
	_, err := r.col.InsertOne(ctx, newMessageDocument(msg))
	return err
}

func (r *MessageRepository) ListFor(ctx context.Context, id domainchat.ConversationID, page domainchat.Page) ([]*domainchat.Message, error) {
	page = page.Normalized()
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset())).
		SetLimit(int64(page.Limit))
	cur, err := r.col.Find(ctx, bson.M{"conversation_id": string(id)}, opts)
	if err != nil {
		return nil, err
	}
	var docs []messageDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainchat.Message, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	return out, nil
}

// MarkReadFor pushes a receipt onto every message reader neither sent nor read.
func (r *MessageRepository) MarkReadFor(ctx context.Context, id domainchat.ConversationID, reader domainchat.UserID, at time.Time) (int, error) {
	filter := bson.M{
		"conversation_id": string(id),
		"sender_id":       bson.M{"$ne": string(reader)},
		"read_by.user_id": bson.M{"$ne": string(reader)},
	}
	update := bson.M{"$push": bson.M{"read_by": receiptDocument{UserID: string(reader), ReadAt: millis(at)}}}
	res, err := r.col.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return int(res.ModifiedCount), nil
}

type receiptDocument struct {
	UserID string `bson:"user_id"`
	ReadAt int64  `bson:"read_at"`
}

type messageDocument struct {
	ID             string            `bson:"_id"`
	ConversationID string            `bson:"conversation_id"`
	SenderID       string            `bson:"sender_id"`
	Content        string            `bson:"content"`
	Type           string            `bson:"type"`
	CreatedAt      int64             `bson:"created_at"`
	ReadBy         []receiptDocument `bson:"read_by"`
}

func newMessageDocument(m *domainchat.Message) messageDocument {
	doc := messageDocument{
		ID:             string(m.ID),
		ConversationID: string(m.ConversationID),
		SenderID:       string(m.SenderID),
		Content:        m.Content,
		Type:           string(m.Type),
		CreatedAt:      millis(m.CreatedAt),
		ReadBy:         make([]receiptDocument, 0, len(m.ReadBy)),
	}
	for _, rec := range m.ReadBy {
		doc.ReadBy = append(doc.ReadBy, receiptDocument{UserID: string(rec.UserID), ReadAt: millis(rec.ReadAt)})
	}
	return doc
}

func (d messageDocument) toAggregate() *domainchat.Message {
	msg := &domainchat.Message{
		ID:             domainchat.MessageID(d.ID),
		ConversationID: domainchat.ConversationID(d.ConversationID),
		SenderID:       domainchat.UserID(d.SenderID),
		Content:        d.Content,
		Type:           domainchat.MessageType(d.Type),
		CreatedAt:      fromMillis(d.CreatedAt),
	}
	for _, rec := range d.ReadBy {
		msg.ReadBy = append(msg.ReadBy, domainchat.Receipt{UserID: domainchat.UserID(rec.UserID), ReadAt: fromMillis(rec.ReadAt)})
	}
	return msg
}

var (
	_ domainchat.ConversationRepository = (*ConversationRepository)(nil)
	_ domainchat.MessageRepository      = (*MessageRepository)(nil)
)
