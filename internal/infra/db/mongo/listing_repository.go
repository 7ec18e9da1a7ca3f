package mongo

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domainlistings "kisaanconnect/internal/domain/listings"
)

type ListingRepository struct {
	col *mongo.Collection
}

func NewListingRepository(db *mongo.Database) *ListingRepository {
	return &ListingRepository{col: db.Collection(colListings)}
}

func (r *ListingRepository) ByID(ctx context.Context, id domainlistings.ListingID) (*domainlistings.Listing, error) {
	var doc listingDocument
	if err := r.col.FindOne(ctx, bson.M{"_id": string(id)}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domainlistings.ErrNotFound
		}
		return nil, err
	}
	return doc.toAggregate(), nil
}

func (r *ListingRepository) Save(ctx context.Context, listing *domainlistings.Listing) error {
	doc := newListingDocument(listing)
	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	return err
}

func (r *ListingRepository) Delete(ctx context.Context, id domainlistings.ListingID) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": string(id)})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return domainlistings.ErrNotFound
	}
	return nil
}

// Search mirrors SearchParams.Matches with case-insensitive regexes.
func (r *ListingRepository) Search(ctx context.Context, params domainlistings.SearchParams) (domainlistings.SearchResult, error) {
	params = params.Normalized()
	filter := searchFilter(params)

	total, err := r.col.CountDocuments(ctx, filter)
	if err != nil {
		return domainlistings.SearchResult{}, err
	}
	opts := options.Find().
		SetSort(searchSort(params)).
		SetSkip(int64(params.Offset())).
		SetLimit(int64(params.Limit))
	items, err := r.find(ctx, filter, opts)
	if err != nil {
		return domainlistings.SearchResult{}, err
	}
	return domainlistings.SearchResult{Items: items, Total: int(total)}, nil
}

func (r *ListingRepository) BySeller(ctx context.Context, seller domainlistings.SellerID) ([]*domainlistings.Listing, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return r.find(ctx, bson.M{"seller_id": string(seller)}, opts)
}

func (r *ListingRepository) SuggestNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	prefix = strings.TrimSpace(prefix)
	filter := bson.M{"name": contains("^" + regexp.QuoteMeta(prefix))}
	raw, err := r.col.Distinct(ctx, "name", filter)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(raw))
	names := make([]string, 0, len(raw))
	for _, v := range raw {
		name, ok := v.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(name)
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		names = append(names, name)
	}
	sort.Strings(names)
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	return names, nil
}

func (r *ListingRepository) Count(ctx context.Context, since time.Time) (int, int, error) {
	total, err := r.col.CountDocuments(ctx, bson.M{})
	if err != nil {
		return 0, 0, err
	}
	recent, err := r.col.CountDocuments(ctx, bson.M{"created_at": bson.M{"$gte": millis(since)}})
	if err != nil {
		return 0, 0, err
	}
	return int(total), int(recent), nil
}

func (r *ListingRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domainlistings.Listing, error) {
	cur, err := r.col.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var docs []listingDocument
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]*domainlistings.Listing, 0, len(docs))
	for _, doc := range docs {
		out = append(out, doc.toAggregate())
	}
	return out, nil
}

func searchFilter(p domainlistings.SearchParams) bson.M {
	filter := bson.M{}
	if p.Seller != "" {
		filter["seller_id"] = string(p.Seller)
	}
	var and []bson.M
	if p.Text != "" {
		pattern := regexp.QuoteMeta(p.Text)
		and = append(and, bson.M{"$or": []bson.M{
			{"name": contains(pattern)},
			{"seller_name": contains(pattern)},
			{"location": contains(pattern)},
		}})
	}
	if p.Location != "" {
		and = append(and, bson.M{"location": contains(regexp.QuoteMeta(p.Location))})
	}
	if p.CropType != "" {
		and = append(and, bson.M{"name": contains(regexp.QuoteMeta(p.CropType))})
	}
	if len(and) > 0 {
		filter["$and"] = and
	}
	price := bson.M{}
	if p.MinPrice > 0 {
		price["$gte"] = p.MinPrice
	}
	if p.MaxPrice > 0 {
		price["$lte"] = p.MaxPrice
	}
	if len(price) > 0 {
		filter["price"] = price
	}
	return filter
}

func searchSort(p domainlistings.SearchParams) bson.D {
	dir := 1
	if p.Descending {
		dir = -1
	}
	switch p.Sort {
	case domainlistings.SortByPrice:
		return bson.D{{Key: "price", Value: dir}, {Key: "created_at", Value: -1}}
	case domainlistings.SortByName:
		return bson.D{{Key: "name_lower", Value: dir}, {Key: "created_at", Value: -1}}
	default:
		return bson.D{{Key: "created_at", Value: dir}, {Key: "_id", Value: dir}}
	}
}

func contains(pattern string) primitive.Regex {
	return primitive.Regex{Pattern: pattern, Options: "i"}
}

type listingDocument struct {
	ID         string  `bson:"_id"`
	Name       string  `bson:"name"`
	NameLower  string  `bson:"name_lower"`
	Price      float64 `bson:"price"`
	Quantity   float64 `bson:"quantity"`
	Unit       string  `bson:"unit"`
	ImageURL   string  `bson:"image_url"`
	ImageKey   string  `bson:"image_key,omitempty"`
	SellerID   string  `bson:"seller_id"`
	SellerName string  `bson:"seller_name"`
	Location   string  `bson:"location"`
	CreatedAt  int64   `bson:"created_at"`
	UpdatedAt  int64   `bson:"updated_at"`
}

func newListingDocument(l *domainlistings.Listing) listingDocument {
	return listingDocument{
		ID:         string(l.ID),
		Name:       l.Name,
		NameLower:  strings.ToLower(l.Name),
		Price:      l.Price,
		Quantity:   l.Quantity,
		Unit:       l.Unit,
		ImageURL:   l.ImageURL,
		ImageKey:   l.ImageKey,
		SellerID:   string(l.SellerID),
		SellerName: l.SellerName,
		Location:   l.Location,
		CreatedAt:  millis(l.CreatedAt),
		UpdatedAt:  millis(l.UpdatedAt),
	}
}

func (d listingDocument) toAggregate() *domainlistings.Listing {
	return &domainlistings.Listing{
		ID:         domainlistings.ListingID(d.ID),
		Name:       d.Name,
		Price:      d.Price,
		Quantity:   d.Quantity,
		Unit:       d.Unit,
		ImageURL:   d.ImageURL,
		ImageKey:   d.ImageKey,
		SellerID:   domainlistings.SellerID(d.SellerID),
		SellerName: d.SellerName,
		Location:   d.Location,
		CreatedAt:  fromMillis(d.CreatedAt),
		UpdatedAt:  fromMillis(d.UpdatedAt),
	}
}

var _ domainlistings.Repository = (*ListingRepository)(nil)
