package dto

import (
	"time"

	domainlistings "kisaanconnect/internal/domain/listings"
)

type Crop struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Unit       string    `json:"unit"`
	ImageURL   string    `json:"imageUrl"`
	SellerName string    `json:"seller"`
	SellerID   string    `json:"sellerId"`
	Location   string    `json:"location"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type CropPagination struct {
	CurrentPage int  `json:"currentPage"`
	TotalPages  int  `json:"totalPages"`
	TotalCrops  int  `json:"totalCrops"`
	Limit       int  `json:"limit"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
}

type CropCatalog struct {
	Crops      []Crop         `json:"crops"`
	Pagination CropPagination `json:"pagination"`
}

func MapCrop(l *domainlistings.Listing) Crop {
	if l == nil {
		return Crop{}
	}
	return Crop{
		ID:         string(l.ID),
		Name:       l.Name,
		Price:      l.Price,
		Quantity:   l.Quantity,
		Unit:       l.Unit,
		ImageURL:   l.ImageURL,
		SellerName: l.SellerName,
		SellerID:   string(l.SellerID),
		Location:   l.Location,
		CreatedAt:  l.CreatedAt,
		UpdatedAt:  l.UpdatedAt,
	}
}

func MapCrops(items []*domainlistings.Listing) []Crop {
	out := make([]Crop, 0, len(items))
	for _, item := range items {
		out = append(out, MapCrop(item))
	}
	return out
}

func MapCropCatalog(result domainlistings.SearchResult, params domainlistings.SearchParams) CropCatalog {
	params = params.Normalized()
	totalPages := 0
	if params.Limit > 0 {
		totalPages = (result.Total + params.Limit - 1) / params.Limit
	}
	return CropCatalog{
		Crops: MapCrops(result.Items),
		Pagination: CropPagination{
			CurrentPage: params.Page,
			TotalPages:  totalPages,
			TotalCrops:  result.Total,
			Limit:       params.Limit,
			HasNextPage: params.Page*params.Limit < result.Total,
			HasPrevPage: params.Page > 1,
		},
	}
}
