package market

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
)

var ErrEmptyCatalog = errors.New("market: catalog is empty")

// Commodity is a catalog entry. Current prices are drawn from
// [FloorPrice, FloorPrice+Spread) and compared against AvgPrice.
type Commodity struct {
	ID         int     `yaml:"id"`
	Name       string  `yaml:"name"`
	Category   string  `yaml:"category"`
	Unit       string  `yaml:"unit"`
	Location   string  `yaml:"location"`
	Market     string  `yaml:"market"`
	Quality    string  `yaml:"quality"`
	FloorPrice int     `yaml:"floor_price"`
	Spread     int     `yaml:"spread"`
	BasePrice  float64 `yaml:"base_price"`
	AvgPrice   float64 `yaml:"avg_price"`
}

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

type Quote struct {
	Commodity    Commodity
	CurrentPrice int
	Change       float64
	Trend        Trend
	History      []int
	LastUpdated  time.Time
}

// Catalog supplies the commodities shown on the price board.
type Catalog interface {
	Commodities(ctx context.Context) ([]Commodity, error)
}

const historyDays = 7

// Board turns catalog entries into randomized daily quotes.
type Board struct {
	Catalog Catalog
	Rand    *rand.Rand
	Now     func() time.Time

	mu sync.Mutex
}

func (b *Board) Quotes(ctx context.Context, category string) ([]Quote, error) {
	if b.Catalog == nil {
		return nil, ErrEmptyCatalog
	}
	items, err := b.Catalog.Commodities(ctx)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, ErrEmptyCatalog
	}
	category = strings.ToLower(strings.TrimSpace(category))
	now := time.Now()
	if b.Now != nil {
		now = b.Now()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Quote, 0, len(items))
	for _, item := range items {
		if category != "" && category != "all" && strings.ToLower(item.Category) != category {
			continue
		}
		current := item.FloorPrice
		if item.Spread > 0 {
			current += b.intN(item.Spread)
		}
		change := ChangePercent(float64(current), item.AvgPrice)
		out = append(out, Quote{
			Commodity:    item,
			CurrentPrice: current,
			Change:       change,
			Trend:        TrendOf(change),
			History:      b.history(item.BasePrice, historyDays),
			LastUpdated:  now.UTC(),
		})
	}
	return out, nil
}

// ChangePercent is (current-avg)/avg*100 rounded to one decimal.
func ChangePercent(current, avg float64) float64 {
	if avg == 0 {
		return 0
	}
	return math.Round((current-avg)/avg*100*10) / 10
}

func TrendOf(change float64) Trend {
	switch {
	case change >= 1:
		return TrendUp
	case change <= -1:
		return TrendDown
	default:
		return TrendStable
	}
}

// history walks the price by up to ±3 per day, clamped to ±20% of base.
func (b *Board) history(base float64, days int) []int {
	out := make([]int, 0, days)
	price := base
	low, high := base*0.8, base*1.2
	for i := 0; i < days; i++ {
		price += (b.float() - 0.5) * 6
		price = math.Max(low, math.Min(high, price))
		out = append(out, int(math.Floor(price)))
	}
	return out
}

func (b *Board) intN(n int) int {
	if b.Rand != nil {
		return b.Rand.IntN(n)
	}
	return rand.IntN(n)
}

func (b *Board) float() float64 {
	if b.Rand != nil {
		return b.Rand.Float64()
	}
	return rand.Float64()
}
