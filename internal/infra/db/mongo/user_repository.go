package mongo

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainuser "kisaanconnect/internal/domain/user"
)

type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(colUsers)}
}

func (r *UserRepository) ByID(ctx context.Context, id domainuser.ID) (*domainuser.User, error) {
	return r.findOne(ctx, bson.M{"_id": string(id)})
}

func (r *UserRepository) ByIDs(ctx context.Context, ids []domainuser.ID) (map[domainuser.ID]*domainuser.User, error) {
	out := make(map[domainuser.ID]*domainuser.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, 0, len(ids))
	for _, id := range ids {
		raw = append(raw, string(id))
	}
	users, err := r.find(ctx, bson.M{"_id": bson.M{"$in": raw}})
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.ID] = u
	}
	return out, nil
}

func (r *UserRepository) ByPhone(ctx context.Context, phone string) (*domainuser.User, error) {
	return r.findOne(ctx, bson.M{"phone": phone})
}

func (r *UserRepository) ByEmail(ctx context.Context, email string) (*domainuser.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, domainuser.ErrNotFound
	}
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *UserRepository) ByRole(ctx context.Context, role domainuser.Role) ([]*domainuser.User, error) {
	return r.find(ctx, bson.M{"roles": string(role)})
}

func (r *UserRepository) Create(ctx context.Context, user *domainuser.User) error {
	_, err := r.col.InsertOne(ctx, newUserDocument(user))
	return mapUserWriteError(err)
}

func (r *UserRepository) Save(ctx context.Context, user *domainuser.User) error {
	doc := newUserDocument(user)
	res, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc)
	if err != nil {
		return mapUserWriteError(err)
	}
	if res.MatchedCount == 0 {
		return domainuser.ErrNotFound
	}
	return nil
}

// SetPushToken stores the address on id and removes it from any other user,
// so a shared device only notifies the last account that signed in.
func (r *UserRepository) SetPushToken(ctx context.Context, id domainuser.ID, token string, at time.Time) error {
	if token != "" {
		if _, err := r.col.UpdateMany(ctx,
			bson.M{"push_token": token, "_id": bson.M{"$ne": string(id)}},
			bson.M{"$set": bson.M{"push_token": ""}},
		); err != nil {
			return err
		}
	}
	res, err := r.col.UpdateByID(ctx, string(id), bson.M{"$set": bson.M{
		"push_token":            token,
		"push_token_updated_at": millis(at),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domainuser.ErrNotFound
	}
	return nil
}

func (r *UserRepository) ClearPushToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := r.col.UpdateMany(ctx, bson.M{"push_token": token}, bson.M{"$set": bson.M{"push_token": ""}})
	return err
}

func (r *UserRepository) List(ctx context.Context, filter domainuser.DirectoryFilter) ([]*domainuser.User, int, error) {
	query := bson.M{}
	if term := strings.TrimSpace(filter.Search); term != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"full_name": pattern},
			bson.M{"email": pattern},
			bson.M{"phone": pattern},
			bson.M{"location.state": pattern},
			bson.M{"location.district": pattern},
		}
	}
	total, err := r.col.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, err
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetSkip(int64((filter.Page - 1) * filter.Limit)).
		SetLimit(int64(filter.Limit))
	users, err := r.findWith(ctx, query, opts)
	if err != nil {
		return nil, 0, err
	}
	return users, int(total), nil
}

func (r *UserRepository) Census(ctx context.Context, since time.Time, topStates int) (domainuser.Census, error) {
	var census domainuser.Census
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return census, err
	}
	recent, err := r.col.CountDocuments(ctx, bson.M{"created_at": bson.M{"$gte": millis(since)}})
	if err != nil {
		return census, err
	}
	census.Total, census.Recent = int(total), int(recent)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"location.state": bson.M{"$nin": bson.A{"", nil}}}}},
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$location.state"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
	}
	if topStates > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: topStates}})
	}
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return census, err
	}
	var groups []struct {
		State string `bson:"_id"`
		Count int    `bson:"count"`
	}
	if err := cur.All(ctx, &groups); err != nil {
		return census, err
	}
	for _, g := range groups {
		census.ByState = append(census.ByState, domainuser.StateCount{State: g.State, Count: g.Count})
	}
	return census, nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domainuser.User, error) {
	var doc userDocument
	if err := r.col.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainuser.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *UserRepository) find(ctx context.Context, filter bson.M) ([]*domainuser.User, error) {
	return r.findWith(ctx, filter, options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
}

func (r *UserRepository) findWith(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainuser.User, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []userDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainuser.User, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	return out, nil
}

func mapUserWriteError(err error) error {
	if err == nil || !mongo.IsDuplicateKeyError(err) {
		return err
	}
	if strings.Contains(err.Error(), "uniq_email") {
		return domainuser.ErrEmailAlreadyUsed
	}
	return domainuser.ErrPhoneAlreadyUsed
}

type locationDocument struct {
	State       string `bson:"state"`
	District    string `bson:"district"`
	VillageTown string `bson:"village_town"`
	PinCode     string `bson:"pin_code"`
}

type userDocument struct {
	ID                 string           `bson:"_id"`
	Phone              string           `bson:"phone"`
	Email              string           `bson:"email,omitempty"`
	Name               string           `bson:"full_name"`
	PasswordHash       string           `bson:"password_hash"`
	Location           locationDocument `bson:"location"`
	ProfilePicture     string           `bson:"profile_picture"`
	ProfilePictureKey  string           `bson:"profile_picture_key,omitempty"`
	PushToken          string           `bson:"push_token"`
	PushTokenUpdatedAt int64            `bson:"push_token_updated_at,omitempty"`
	Roles              []string         `bson:"roles"`
	CreatedAt          int64            `bson:"created_at"`
	UpdatedAt          int64            `bson:"updated_at"`
}

func newUserDocument(u *domainuser.User) userDocument {
	roles := make([]string, 0, len(u.Roles))
	for _, role := range u.Roles {
		roles = append(roles, string(role))
	}
	return userDocument{
		ID:                 string(u.ID),
		Phone:              u.Phone,
		Email:              u.Email,
		Name:               u.Name,
		PasswordHash:       u.PasswordHash,
		Location:           locationDocument(u.Location),
		ProfilePicture:     u.ProfilePicture,
		ProfilePictureKey:  u.ProfilePictureKey,
		PushToken:          u.PushToken,
		PushTokenUpdatedAt: millis(u.PushTokenUpdatedAt),
		Roles:              roles,
		CreatedAt:          millis(u.CreatedAt),
		UpdatedAt:          millis(u.UpdatedAt),
	}
}

func (d userDocument) toAggregate() *domainuser.User {
	roles := make([]domainuser.Role, 0, len(d.Roles))
	for _, role := range d.Roles {
		roles = append(roles, domainuser.Role(role))
	}
	return &domainuser.User{
		ID:                 domainuser.ID(d.ID),
		Phone:              d.Phone,
		Email:              d.Email,
		Name:               d.Name,
		PasswordHash:       d.PasswordHash,
		Location:           domainuser.Location(d.Location),
		ProfilePicture:     d.ProfilePicture,
		ProfilePictureKey:  d.ProfilePictureKey,
		PushToken:          d.PushToken,
		PushTokenUpdatedAt: fromMillis(d.PushTokenUpdatedAt),
		Roles:              roles,
		CreatedAt:          fromMillis(d.CreatedAt),
		UpdatedAt:          fromMillis(d.UpdatedAt),
	}
}

var _ domainuser.Repository = (*UserRepository)(nil)
