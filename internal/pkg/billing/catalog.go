package billing

import (
	"fmt"
	"sort"
	"strings"
)

// TierCatalog is the immutable bidirectional mapping between processor price
// IDs and internal tier names. It is built once at startup and shared.
type TierCatalog struct {
	priceByTier map[string]string
	tierByPrice map[string]string
}

// NewTierCatalog builds a catalog from a tier -> price mapping. The mapping
// must be injective and every entry non-empty.
func NewTierCatalog(pricesByTier map[string]string) (*TierCatalog, error) {
	c := &TierCatalog{
		priceByTier: make(map[string]string, len(pricesByTier)),
		tierByPrice: make(map[string]string, len(pricesByTier)),
	}
	for rawTier, rawPrice := range pricesByTier {
		tier := strings.TrimSpace(rawTier)
		price := strings.TrimSpace(rawPrice)
		if tier == "" || price == "" {
			return nil, fmt.Errorf("tier catalog entry %q=%q must have both a tier and a price", rawTier, rawPrice)
		}
		if _, ok := c.priceByTier[tier]; ok {
			return nil, fmt.Errorf("tier %q is mapped more than once", tier)
		}
		if other, ok := c.tierByPrice[price]; ok {
			return nil, fmt.Errorf("price %q is mapped to both %q and %q", price, other, tier)
		}
		c.priceByTier[tier] = price
		c.tierByPrice[price] = tier
	}
	if len(c.priceByTier) == 0 {
		return nil, fmt.Errorf("tier catalog is empty")
	}
	return c, nil
}

// ParseTierCatalog parses "tier=price_id,tier=price_id" as found in STRIPE_PRICES.
func ParseTierCatalog(raw string) (*TierCatalog, error) {
	pricesByTier := make(map[string]string)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		tier, price, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("tier catalog entry %q is not of the form tier=price_id", entry)
		}
		tier = strings.TrimSpace(tier)
		if _, dup := pricesByTier[tier]; dup {
			return nil, fmt.Errorf("tier %q is mapped more than once", tier)
		}
		pricesByTier[tier] = strings.TrimSpace(price)
	}
	return NewTierCatalog(pricesByTier)
}

// TierForPrice resolves a processor price ID. An unknown price is reported
// through ok=false, never as an error.
func (c *TierCatalog) TierForPrice(priceID string) (string, bool) {
	tier, ok := c.tierByPrice[strings.TrimSpace(priceID)]
	return tier, ok
}

func (c *TierCatalog) PriceForTier(tier string) (string, bool) {
	price, ok := c.priceByTier[strings.TrimSpace(tier)]
	return price, ok
}

func (c *TierCatalog) HasPrice(priceID string) bool {
	_, ok := c.TierForPrice(priceID)
	return ok
}

// Tiers returns the tier names in sorted order.
func (c *TierCatalog) Tiers() []string {
	out := make([]string, 0, len(c.priceByTier))
	for tier := range c.priceByTier {
		out = append(out, tier)
	}
	sort.Strings(out)
	return out
}
