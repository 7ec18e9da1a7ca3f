package market_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"kisaanconnect/internal/app/handlers/market"
	domainmarket "kisaanconnect/internal/domain/market"
)

type staticCatalog []domainmarket.Commodity

func (c staticCatalog) Commodities(context.Context) ([]domainmarket.Commodity, error) {
	return c, nil
}

func TestMarketPricesFiltersByCategory(t *testing.T) {
	board := &domainmarket.Board{
		Catalog: staticCatalog{
			{ID: 1, Name: "Tomato", Category: "vegetables", Unit: "kg", FloorPrice: 25, Spread: 10, BasePrice: 30, AvgPrice: 28},
			{ID: 2, Name: "Wheat", Category: "grains", Unit: "quintal", FloorPrice: 2000, Spread: 200, BasePrice: 2100, AvgPrice: 2080},
		},
		Rand: rand.New(rand.NewPCG(7, 11)),
		Now:  func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
	}
	h := &market.MarketPricesHandler{Board: board}

	all, err := h.Handle(context.Background(), market.MarketPricesQuery{Category: "all"})
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 prices, got %d", len(all))
	}
	grains, err := h.Handle(context.Background(), market.MarketPricesQuery{Category: "Grains"})
	if err != nil {
		t.Fatalf("quotes: %v", err)
	}
	if len(grains) != 1 || grains[0].Name != "Wheat" {
		t.Fatalf("expected Wheat only, got %+v", grains)
	}
	p := grains[0]
	if p.CurrentPrice < 2000 || p.CurrentPrice >= 2200 {
		t.Fatalf("expected price within spread, got %d", p.CurrentPrice)
	}
	if len(p.History) != 7 {
		t.Fatalf("expected 7 days of history, got %d", len(p.History))
	}
	if p.Trend != string(domainmarket.TrendOf(p.Change)) {
		t.Fatalf("expected trend to follow change %v, got %s", p.Change, p.Trend)
	}
}

func TestMarketPricesWithoutBoard(t *testing.T) {
	h := &market.MarketPricesHandler{}
	if _, err := h.Handle(context.Background(), market.MarketPricesQuery{}); err != domainmarket.ErrEmptyCatalog {
		t.Fatalf("expected ErrEmptyCatalog, got %v", err)
	}
}
