package listings

import (
	"context"
	"errors"
	"strings"
	"time"

	"kisaanconnect/internal/domain/shared/events"
)

var (
	ErrNotFound           = errors.New("listings: crop not found")
	ErrNameRequired       = errors.New("listings: crop name is required")
	ErrPriceInvalid       = errors.New("listings: price must be positive")
	ErrQuantityInvalid    = errors.New("listings: quantity must be positive")
	ErrUnitInvalid        = errors.New("listings: unsupported unit")
	ErrImageRequired      = errors.New("listings: crop image is required")
	ErrSellerRequired     = errors.New("listings: seller is required")
	ErrNotOwner           = errors.New("listings: only the seller can modify this crop")
	ErrSuggestionTooShort = errors.New("listings: suggestion query needs at least 2 characters")
)

const DefaultImageURL = "/api/image/default"

type ListingID string
type SellerID string

var allowedUnits = map[string]struct{}{
	"kg":      {},
	"quintal": {},
	"ton":     {},
	"dozen":   {},
	"piece":   {},
	"litre":   {},
}

type Listing struct {
	ID         ListingID
	Name       string
	Price      float64
	Quantity   float64
	Unit       string
	ImageURL   string
	ImageKey   string
	SellerID   SellerID
	SellerName string
	Location   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	events.EventRecorder
}

type Repository interface {
	ByID(ctx context.Context, id ListingID) (*Listing, error)
	Save(ctx context.Context, listing *Listing) error
	Delete(ctx context.Context, id ListingID) error
	Search(ctx context.Context, params SearchParams) (SearchResult, error)
	BySeller(ctx context.Context, seller SellerID) ([]*Listing, error)
	SuggestNames(ctx context.Context, prefix string, limit int) ([]string, error)
	Count(ctx context.Context, since time.Time) (total int, recent int, err error)
}

type CreateParams struct {
	ID         ListingID
	Name       string
	Price      float64
	Quantity   float64
	Unit       string
	ImageURL   string
	ImageKey   string
	SellerID   SellerID
	SellerName string
	Location   string
	Now        time.Time
}

func NewListing(params CreateParams) (*Listing, error) {
	if strings.TrimSpace(string(params.ID)) == "" {
		return nil, errors.New("listings: id is required")
	}
	if strings.TrimSpace(string(params.SellerID)) == "" {
		return nil, ErrSellerRequired
	}
	name := strings.TrimSpace(params.Name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if params.Price <= 0 {
		return nil, ErrPriceInvalid
	}
	if params.Quantity <= 0 {
		return nil, ErrQuantityInvalid
	}
	unit, err := normalizeUnit(params.Unit)
	if err != nil {
		return nil, err
	}
	image := strings.TrimSpace(params.ImageURL)
	if image == "" {
		image = DefaultImageURL
	}
	now := params.Now
	if now.IsZero() {
		now = time.Now()
	}
	now = now.UTC()

	listing := &Listing{
		ID:         params.ID,
		Name:       name,
		Price:      params.Price,
		Quantity:   params.Quantity,
		Unit:       unit,
		ImageURL:   image,
		ImageKey:   strings.TrimSpace(params.ImageKey),
		SellerID:   params.SellerID,
		SellerName: strings.TrimSpace(params.SellerName),
		Location:   strings.TrimSpace(params.Location),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	listing.Record(ListingCreatedEvent{
		ListingID: listing.ID,
		SellerID:  listing.SellerID,
		Name:      listing.Name,
		Price:     listing.Price,
		At:        now,
	})
	return listing, nil
}

type UpdateParams struct {
	Name     *string
	Price    *float64
	Quantity *float64
	Unit     *string
	Location *string
	Now      time.Time
}

func (l *Listing) Update(params UpdateParams) error {
	next := *l
	if params.Name != nil {
		name := strings.TrimSpace(*params.Name)
		if name == "" {
			return ErrNameRequired
		}
		next.Name = name
	}
	if params.Price != nil {
		if *params.Price <= 0 {
			return ErrPriceInvalid
		}
		next.Price = *params.Price
	}
	if params.Quantity != nil {
		if *params.Quantity <= 0 {
			return ErrQuantityInvalid
		}
		next.Quantity = *params.Quantity
	}
	if params.Unit != nil {
		unit, err := normalizeUnit(*params.Unit)
		if err != nil {
			return err
		}
		next.Unit = unit
	}
	if params.Location != nil {
		next.Location = strings.TrimSpace(*params.Location)
	}
	l.Name, l.Price, l.Quantity, l.Unit, l.Location = next.Name, next.Price, next.Quantity, next.Unit, next.Location
	l.touch(params.Now)
	return nil
}

// ReplaceImage sets a new image and returns the storage key of the previous one.
func (l *Listing) ReplaceImage(url, key string, now time.Time) string {
	previous := l.ImageKey
	l.ImageURL = strings.TrimSpace(url)
	l.ImageKey = strings.TrimSpace(key)
	if l.ImageURL == "" {
		l.ImageURL = DefaultImageURL
	}
	l.touch(now)
	return previous
}

// MarkDeleted records the removal so the outbox can relay it.
func (l *Listing) MarkDeleted(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	l.Record(ListingDeletedEvent{ListingID: l.ID, SellerID: l.SellerID, At: now.UTC()})
}

func (l *Listing) OwnedBy(seller SellerID) bool {
	return l.SellerID == seller
}

func (l *Listing) touch(now time.Time) {
	if now.IsZero() {
		now = time.Now()
	}
	l.UpdatedAt = now.UTC()
}

func normalizeUnit(unit string) (string, error) {
	unit = strings.ToLower(strings.TrimSpace(unit))
	if unit == "" {
		return "kg", nil
	}
	if _, ok := allowedUnits[unit]; !ok {
		return "", ErrUnitInvalid
	}
	return unit, nil
}

// IsValidationError reports whether err is caused by bad listing input.
func IsValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrNameRequired),
		errors.Is(err, ErrPriceInvalid),
		errors.Is(err, ErrQuantityInvalid),
		errors.Is(err, ErrUnitInvalid),
		errors.Is(err, ErrImageRequired),
		errors.Is(err, ErrSuggestionTooShort):
		return true
	}
	return false
}
