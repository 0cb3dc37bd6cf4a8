package asset

import (
	"errors"
	"strings"
)

// ErrNotFound is returned when a symbol or asset id is not in the catalog.
var ErrNotFound = errors.New("asset not found")

// Descriptor identifies a tradable asset on the target chain.
type Descriptor struct {
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`
	AssetID  string `json:"asset_id"` // 0x-prefixed b256
}

// Base is the chain's base asset. Fees and swap inputs are paid in it.
var Base = Descriptor{
	Name:     "Ethereum",
	Symbol:   "ETH",
	Decimals: 9,
	AssetID:  "0xf8f8b6283d7fa5b672b530cbb84fcccb4ff8dc40f8176ef4544ddb1f1952ad07",
}

// Catalog holds the fixed set of assets the bot is willing to buy.
type Catalog struct {
	byID     map[string]Descriptor
	bySymbol map[string]Descriptor
	ordered  []Descriptor
}

// NewCatalog builds a catalog from descriptors. Asset ids are normalized to
// lowercase; duplicate ids or symbols are rejected so lookups stay unambiguous.
func NewCatalog(assets []Descriptor) (*Catalog, error) {
	c := &Catalog{
		byID:     make(map[string]Descriptor, len(assets)),
		bySymbol: make(map[string]Descriptor, len(assets)),
		ordered:  make([]Descriptor, 0, len(assets)),
	}
	for _, a := range assets {
		id := strings.ToLower(strings.TrimSpace(a.AssetID))
		sym := strings.ToUpper(strings.TrimSpace(a.Symbol))
		if id == "" || sym == "" {
			return nil, errors.New("asset catalog: empty symbol or asset id")
		}
		if _, dup := c.byID[id]; dup {
			return nil, errors.New("asset catalog: duplicate asset id " + id)
		}
		if _, dup := c.bySymbol[sym]; dup {
			return nil, errors.New("asset catalog: duplicate symbol " + sym)
		}
		a.AssetID = id
		a.Symbol = sym
		c.byID[id] = a
		c.bySymbol[sym] = a
		c.ordered = append(c.ordered, a)
	}
	return c, nil
}

// Default returns the catalog of supported test assets.
func Default() *Catalog {
	c, err := NewCatalog([]Descriptor{
		{
			Name:     "USDT Test",
			Symbol:   "USDT",
			Decimals: 6,
			AssetID:  "0x3f007b72f7bcb9b1e9abe2c76e63790cd574b7c34f1c91d6c2f407a5b55676b9",
		},
		{
			Name:     "Bitcoin Test",
			Symbol:   "BTC",
			Decimals: 8,
			AssetID:  "0xce90621a26908325c42e95acbbb358ca671a9a7b36dfb6a5405b407ad1efcd30",
		},
	})
	if err != nil {
		panic(err) // static catalog, cannot fail
	}
	return c
}

// Resolve finds an asset by exact asset id or case-insensitive symbol.
func (c *Catalog) Resolve(symbolOrID string) (Descriptor, error) {
	s := strings.TrimSpace(symbolOrID)
	if s == "" {
		return Descriptor{}, ErrNotFound
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if a, ok := c.byID[strings.ToLower(s)]; ok {
			return a, nil
		}
		return Descriptor{}, ErrNotFound
	}
	if a, ok := c.bySymbol[strings.ToUpper(s)]; ok {
		return a, nil
	}
	return Descriptor{}, ErrNotFound
}

// All returns the supported assets in catalog order.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, len(c.ordered))
	copy(out, c.ordered)
	return out
}
