package market

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	domainmarket "kisaanconnect/internal/domain/market"
)

//go:embed catalog.yaml
var defaultCatalog []byte

var ErrInvalidCommodity = errors.New("market: invalid commodity")

type catalogFile struct {
	Commodities []domainmarket.Commodity `yaml:"commodities"`
}

// YAMLCatalog is a fixed commodity list parsed once at startup.
type YAMLCatalog struct {
	items []domainmarket.Commodity
}

// Load reads path when set and falls back to the embedded catalog.
func Load(path string) (*YAMLCatalog, error) {
	if strings.TrimSpace(path) == "" {
		return Parse(defaultCatalog)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read market catalog: %w", err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*YAMLCatalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse market catalog: %w", err)
	}
	if len(file.Commodities) == 0 {
		return nil, domainmarket.ErrEmptyCatalog
	}
	seen := make(map[int]struct{}, len(file.Commodities))
	for i, c := range file.Commodities {
		if strings.TrimSpace(c.Name) == "" || c.FloorPrice <= 0 || c.Spread < 0 || c.AvgPrice <= 0 {
			return nil, fmt.Errorf("%w: entry %d (%q)", ErrInvalidCommodity, i, c.Name)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidCommodity, c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.BasePrice <= 0 {
			file.Commodities[i].BasePrice = c.AvgPrice
		}
	}
	return &YAMLCatalog{items: file.Commodities}, nil
}

func (c *YAMLCatalog) Commodities(ctx context.Context) ([]domainmarket.Commodity, error) {
	return append([]domainmarket.Commodity(nil), c.items...), nil
}

var _ domainmarket.Catalog = (*YAMLCatalog)(nil)
