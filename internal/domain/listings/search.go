package listings

import (
	"strings"
)

// CatalogSort defines a supported ordering field.
type CatalogSort string

const (
	SortByCreatedAt CatalogSort = "createdAt"
	SortByPrice     CatalogSort = "price"
	SortByName      CatalogSort = "name"

	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// SearchParams describe catalog filters and paging options.
type SearchParams struct {
	Text       string
	Location   string
	CropType   string
	Seller     SellerID
	MinPrice   float64
	MaxPrice   float64
	Sort       CatalogSort
	Descending bool
	Page       int
	Limit      int
}

// Normalized returns a sanitized copy of params.
func (p SearchParams) Normalized() SearchParams {
	normalized := p
	normalized.Text = strings.TrimSpace(normalized.Text)
	normalized.Location = strings.TrimSpace(normalized.Location)
	normalized.CropType = strings.TrimSpace(normalized.CropType)
	if normalized.MinPrice < 0 {
		normalized.MinPrice = 0
	}
	if normalized.MaxPrice < 0 || (normalized.MaxPrice > 0 && normalized.MaxPrice < normalized.MinPrice) {
		normalized.MaxPrice = 0
	}
	if normalized.Page < 1 {
		normalized.Page = 1
	}
	if normalized.Limit <= 0 {
		normalized.Limit = defaultSearchLimit
	}
	if normalized.Limit > maxSearchLimit {
		normalized.Limit = maxSearchLimit
	}
	switch normalized.Sort {
	case SortByCreatedAt, SortByPrice, SortByName:
	default:
		normalized.Sort = SortByCreatedAt
		normalized.Descending = true
	}
	return normalized
}

func (p SearchParams) Offset() int {
	n := p.Normalized()
	return (n.Page - 1) * n.Limit
}

// Matches applies the filters to a single listing. Stores without a query
// language use it directly.
func (p SearchParams) Matches(l *Listing) bool {
	if p.Seller != "" && l.SellerID != p.Seller {
		return false
	}
	if p.Text != "" {
		needle := strings.ToLower(p.Text)
		if !containsFold(l.Name, needle) && !containsFold(l.SellerName, needle) && !containsFold(l.Location, needle) {
			return false
		}
	}
	if p.Location != "" && !containsFold(l.Location, strings.ToLower(p.Location)) {
		return false
	}
	if p.CropType != "" && !containsFold(l.Name, strings.ToLower(p.CropType)) {
		return false
	}
	if p.MinPrice > 0 && l.Price < p.MinPrice {
		return false
	}
	if p.MaxPrice > 0 && l.Price > p.MaxPrice {
		return false
	}
	return true
}

// Less compares two listings according to the sort settings.
func (p SearchParams) Less(a, b *Listing) bool {
	var less bool
	switch p.Sort {
	case SortByPrice:
		if a.Price == b.Price {
			return a.CreatedAt.After(b.CreatedAt)
		}
		less = a.Price < b.Price
	case SortByName:
		an, bn := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if an == bn {
			return a.CreatedAt.After(b.CreatedAt)
		}
		less = an < bn
	default:
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		less = a.CreatedAt.Before(b.CreatedAt)
	}
	if p.Descending {
		return !less
	}
	return less
}

type SearchResult struct {
	Items []*Listing
	Total int
}

func containsFold(haystack, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(haystack), lowerNeedle)
}
