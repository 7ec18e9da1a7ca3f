package market

import (
	"context"

	"kisaanconnect/internal/app/dto"
	"kisaanconnect/internal/app/queries"
	domainmarket "kisaanconnect/internal/domain/market"
)

const marketPricesKey = "market.prices"

// MarketPricesQuery filters the board by category. Empty or "all" returns
// every commodity.
type MarketPricesQuery struct {
	Category string
}

func (q MarketPricesQuery) Key() string { return marketPricesKey }

type Quoter interface {
	Quotes(ctx context.Context, category string) ([]domainmarket.Quote, error)
}

type MarketPricesHandler struct {
	Board Quoter
}

func (h *MarketPricesHandler) Handle(ctx context.Context, q MarketPricesQuery) ([]dto.MarketPrice, error) {
	if h.Board == nil {
		return nil, domainmarket.ErrEmptyCatalog
	}
	quotes, err := h.Board.Quotes(ctx, q.Category)
	if err != nil {
		return nil, err
	}
	return dto.MapMarketPrices(quotes), nil
}

var _ queries.Handler[MarketPricesQuery, []dto.MarketPrice] = (*MarketPricesHandler)(nil)
