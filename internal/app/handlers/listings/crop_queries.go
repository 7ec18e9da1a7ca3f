package listings

import (
	"context"
	"strings"
	"unicode/utf8"

	"kisaanconnect/internal/app/dto"
	"kisaanconnect/internal/app/queries"
	"kisaanconnect/internal/app/uow"
	domainlistings "kisaanconnect/internal/domain/listings"
)

const (
	searchCropsKey     = "crops.catalog"
	cropSuggestionsKey = "crops.suggestions"
	sellerCropsKey     = "crops.by_seller"
	getCropKey         = "crops.get"

	maxSuggestions = 10
)

// SearchCropsQuery describes catalog filters.
type SearchCropsQuery struct {
	Search    string
	Location  string
	CropType  string
	MinPrice  float64
	MaxPrice  float64
	SortBy    string
	SortOrder string
	Page      int
	Limit     int
}

func (q SearchCropsQuery) Key() string { return searchCropsKey }

type SearchCropsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *SearchCropsHandler) Handle(ctx context.Context, q SearchCropsQuery) (dto.CropCatalog, error) {
	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return dto.CropCatalog{}, err
	}
	defer release()

	params := domainlistings.SearchParams{
		Text:       q.Search,
		Location:   q.Location,
		CropType:   q.CropType,
		MinPrice:   q.MinPrice,
		MaxPrice:   q.MaxPrice,
		Sort:       domainlistings.CatalogSort(q.SortBy),
		Descending: !strings.EqualFold(strings.TrimSpace(q.SortOrder), "asc"),
		Page:       q.Page,
		Limit:      q.Limit,
	}.Normalized()

	result, err := unit.Listings().Search(ctx, params)
	if err != nil {
		return dto.CropCatalog{}, err
	}
	return dto.MapCropCatalog(result, params), nil
}

type CropSuggestionsQuery struct {
	Prefix string
}

func (q CropSuggestionsQuery) Key() string { return cropSuggestionsKey }

type CropSuggestionsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *CropSuggestionsHandler) Handle(ctx context.Context, q CropSuggestionsQuery) ([]string, error) {
	prefix := strings.TrimSpace(q.Prefix)
	if utf8.RuneCountInString(prefix) < 2 {
		return nil, domainlistings.ErrSuggestionTooShort
	}
	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	defer release()
	names, err := unit.Listings().SuggestNames(ctx, prefix, maxSuggestions)
	if err != nil {
		return nil, err
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

type SellerCropsQuery struct {
	SellerID string
}

func (q SellerCropsQuery) Key() string { return sellerCropsKey }

type SellerCropsHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *SellerCropsHandler) Handle(ctx context.Context, q SellerCropsQuery) ([]dto.Crop, error) {
	if strings.TrimSpace(q.SellerID) == "" {
		return nil, errSellerRequired
	}
	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return nil, err
	}
	defer release()
	items, err := unit.Listings().BySeller(ctx, domainlistings.SellerID(q.SellerID))
	if err != nil {
		return nil, err
	}
	return dto.MapCrops(items), nil
}

type GetCropQuery struct {
	CropID string
}

func (q GetCropQuery) Key() string { return getCropKey }

type GetCropHandler struct {
	UoWFactory uow.UoWFactory
}

func (h *GetCropHandler) Handle(ctx context.Context, q GetCropQuery) (dto.Crop, error) {
	if strings.TrimSpace(q.CropID) == "" {
		return dto.Crop{}, domainlistings.ErrNotFound
	}
	unit, ctx, release, err := uow.BeginReadOnly(ctx, h.UoWFactory)
	if err != nil {
		return dto.Crop{}, err
	}
	defer release()
	listing, err := unit.Listings().ByID(ctx, domainlistings.ListingID(q.CropID))
	if err != nil {
		return dto.Crop{}, err
	}
	return dto.MapCrop(listing), nil
}

var (
	_ queries.Handler[SearchCropsQuery, dto.CropCatalog] = (*SearchCropsHandler)(nil)
	_ queries.Handler[CropSuggestionsQuery, []string]    = (*CropSuggestionsHandler)(nil)
	_ queries.Handler[SellerCropsQuery, []dto.Crop]      = (*SellerCropsHandler)(nil)
	_ queries.Handler[GetCropQuery, dto.Crop]            = (*GetCropHandler)(nil)
)
