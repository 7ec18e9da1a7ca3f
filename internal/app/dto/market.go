package dto

import (
	"time"

	domainmarket "kisaanconnect/internal/domain/market"
)

type MarketPrice struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Category     string    `json:"category"`
	Unit         string    `json:"unit"`
	Location     string    `json:"location,omitempty"`
	Market       string    `json:"market,omitempty"`
	Quality      string    `json:"quality,omitempty"`
	CurrentPrice int       `json:"currentPrice"`
	AvgPrice     float64   `json:"avgPrice"`
	Change       float64   `json:"change"`
	Trend        string    `json:"trend"`
	History      []int     `json:"priceHistory"`
	LastUpdated  time.Time `json:"lastUpdated"`
}

func MapMarketPrices(quotes []domainmarket.Quote) []MarketPrice {
	out := make([]MarketPrice, 0, len(quotes))
	for _, q := range quotes {
		out = append(out, MarketPrice{
			ID:           q.Commodity.ID,
			Name:         q.Commodity.Name,
			Category:     q.Commodity.Category,
			Unit:         q.Commodity.Unit,
			Location:     q.Commodity.Location,
			Market:       q.Commodity.Market,
			Quality:      q.Commodity.Quality,
			CurrentPrice: q.CurrentPrice,
			AvgPrice:     q.Commodity.AvgPrice,
			Change:       q.Change,
			Trend:        string(q.Trend),
			History:      q.History,
			LastUpdated:  q.LastUpdated,
		})
	}
	return out
}
