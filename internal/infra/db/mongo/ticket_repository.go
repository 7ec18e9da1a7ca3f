package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainsupport "kisaanconnect/internal/domain/support"
)

type TicketRepository struct {
	col *mongo.Collection
}

func NewTicketRepository(db *mongo.Database) *TicketRepository {
	return &TicketRepository{col: db.Collection(colTickets)}
}

func (r *TicketRepository) ByID(ctx context.Context, id domainsupport.TicketID) (*domainsupport.Ticket, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *TicketRepository) ByNumber(ctx context.Context, number string) (*domainsupport.Ticket, error) {
	return r.findOne(ctx, bson.M{"number": number})
}

func (r *TicketRepository) Save(ctx context.Context, ticket *domainsupport.Ticket) error {
	doc := newTicketDocument(ticket)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *TicketRepository) List(ctx context.Context, filter domainsupport.ListFilter) ([]*domainsupport.Ticket, int, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.Priority != "" {
		query["priority"] = string(filter.Priority)
	}
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	var docs []ticketDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, 0, err
	}
	out := make([]*domainsupport.Ticket, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	return out, int(total), nil
}

// Stats groups tickets by status in one aggregation and counts the urgent
// open and recent ones separately.
func (r *TicketRepository) Stats(ctx context.Context, since time.Time) (domainsupport.Stats, error) {
	var stats domainsupport.Stats
	cur, err := r.col.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$status"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return stats, err
	}
	var groups []struct {
		Status string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return stats, err
	}
	for _, g := range groups {
		stats.Total += g.Count
		switch domainsupport.Status(g.Status) {
		case domainsupport.StatusOpen:
			stats.Open = g.Count
		case domainsupport.StatusInProgress:
			stats.InProgress = g.Count
		case domainsupport.StatusResolved:
			stats.Resolved = g.Count
		case domainsupport.StatusClosed:
			stats.Closed = g.Count
		}
	}
	urgent, err := r.col.CountDocuments(ctx, bson.M{"status": string(domainsupport.StatusOpen), "priority": string(domainsupport.PriorityUrgent)})
	if err != nil {
		return stats, err
	}
	stats.UrgentOpen = int(urgent)
	recent, err := r.col.CountDocuments(ctx, bson.M{"created_at": bson.M{"$gte": millis(since)}})
	if err != nil {
		return stats, err
	}
	stats.CreatedToday = int(recent)
	return stats, nil
}

func (r *TicketRepository) findOne(ctx context.Context, filter bson.M) (*domainsupport.Ticket, error) {
	var doc ticketDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainsupport.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

type responseDocument struct {
	AuthorID   string `bson:"author_id,omitempty"`
	AuthorName string `bson:"author_name"`
	FromAdmin  bool   `bson:"from_admin"`
	Message    string `bson:"message"`
	At         int64  `bson:"at"`
}

type ticketDocument struct {
	ID               string             `bson:"_id"`
	Number           string             `bson:"number"`
	UserID           string             `bson:"user_id,omitempty"`
	Name             string             `bson:"name"`
	Email            string             `bson:"email"`
	Phone            string             `bson:"phone,omitempty"`
	Category         string             `bson:"category"`
	Priority         string             `bson:"priority"`
	Status           string             `bson:"status"`
	Subject          string             `bson:"subject"`
	Message          string             `bson:"message"`
	AssignedTo       string             `bson:"assigned_to,omitempty"`
	Responses        []responseDocument `bson:"responses"`
	ExpectedResponse int64              `bson:"expected_response_ms"`
	CreatedAt        int64              `bson:"created_at"`
	UpdatedAt        int64              `bson:"updated_at"`
	LastResponseAt   int64              `bson:"last_response_at,omitempty"`
}

func newTicketDocument(t *domainsupport.Ticket) ticketDocument {
	doc := ticketDocument{
		ID:               string(t.ID),
		Number:           t.Number,
		UserID:           t.UserID,
		Name:             t.Name,
		Email:            t.Email,
		Phone:            t.Phone,
		Category:         string(t.Category),
		Priority:         string(t.Priority),
		Status:           string(t.Status),
		Subject:          t.Subject,
		Message:          t.Message,
		AssignedTo:       t.AssignedTo,
		Responses:        make([]responseDocument, 0, len(t.Responses)),
		ExpectedResponse: t.ExpectedResponse.Milliseconds(),
		CreatedAt:        millis(t.CreatedAt),
		UpdatedAt:        millis(t.UpdatedAt),
		LastResponseAt:   millis(t.LastResponseAt),
	}
	for _, resp := range t.Responses {
		doc.Responses = append(doc.Responses, responseDocument{
			AuthorID:   resp.AuthorID,
			AuthorName: resp.AuthorName,
			FromAdmin:  resp.FromAdmin,
			Message:    resp.Message,
			At:         millis(resp.At),
		})
	}
	return doc
}

func (d ticketDocument) toAggregate() *domainsupport.Ticket {
	t := &domainsupport.Ticket{
		ID:               domainsupport.TicketID(d.ID),
		Number:           d.Number,
		UserID:           d.UserID,
		Name:             d.Name,
		Email:            d.Email,
		Phone:            d.Phone,
		Category:         domainsupport.Category(d.Category),
		Priority:         domainsupport.Priority(d.Priority),
		Status:           domainsupport.Status(d.Status),
		Subject:          d.Subject,
		Message:          d.Message,
		AssignedTo:       d.AssignedTo,
		ExpectedResponse: time.Duration(d.ExpectedResponse) * time.Millisecond,
		CreatedAt:        fromMillis(d.CreatedAt),
		UpdatedAt:        fromMillis(d.UpdatedAt),
		LastResponseAt:   fromMillis(d.LastResponseAt),
	}
	for _, resp := range d.Responses {
		t.Responses = append(t.Responses, domainsupport.Response{
			AuthorID:   resp.AuthorID,
			AuthorName: resp.AuthorName,
			FromAdmin:  resp.FromAdmin,
			Message:    resp.Message,
			At:         fromMillis(resp.At),
		})
	}
	return t
}

var _ domainsupport.Repository = (*TicketRepository)(nil)
