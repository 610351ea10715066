package marketplace

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Trend string

const (
	TrendUp     Trend = "up"
	TrendDown   Trend = "down"
	TrendStable Trend = "stable"
)

// MarketPrice is a mandi quote per kg.
type MarketPrice struct {
	Price       decimal.Decimal `json:"price"`
	Trend       Trend           `json:"trend"`
	Change      decimal.Decimal `json:"change"`
	LastUpdated time.Time       `json:"lastUpdated"`
}

type quote struct {
	price, change int64
	trend         Trend
}

// Mock feed until a real market data API is wired.
var mockMarketPrices = map[string]quote{
	"tomato":      {32, 2, TrendUp},
	"potato":      {18, 1, TrendDown},
	"onion":       {28, 0, TrendStable},
	"rice":        {45, 3, TrendUp},
	"wheat":       {22, 0, TrendStable},
	"mango":       {60, 5, TrendUp},
	"banana":      {25, 2, TrendDown},
	"apple":       {80, 4, TrendUp},
	"orange":      {40, 0, TrendStable},
	"carrot":      {30, 3, TrendUp},
	"cauliflower": {25, 2, TrendDown},
	"brinjal":     {20, 0, TrendStable},
	"cabbage":     {18, 1, TrendUp},
	"capsicum":    {35, 0, TrendStable},
	"ladyfinger":  {28, 1, TrendDown},
	"cucumber":    {22, 0, TrendStable},
	"pumpkin":     {20, 1, TrendUp},
	"radish":      {15, 0, TrendStable},
	"spinach":     {12, 2, TrendUp},
	"coriander":   {10, 0, TrendStable},
}

var defaultQuote = quote{25, 0, TrendStable}

func (q quote) at(now time.Time) MarketPrice {
	return MarketPrice{
		Price:       decimal.NewFromInt(q.price),
		Trend:       q.trend,
		Change:      decimal.NewFromInt(q.change),
		LastUpdated: now.UTC(),
	}
}

// PriceFeed serves the mock market prices.
type PriceFeed struct {
	now func() time.Time
}

func NewPriceFeed() *PriceFeed { return &PriceFeed{now: time.Now} }

// Price returns the quote for product, or the default quote when unknown.
func (f *PriceFeed) Price(product string) MarketPrice {
	q, ok := mockMarketPrices[strings.ToLower(strings.TrimSpace(product))]
	if !ok {
		q = defaultQuote
	}
	return q.at(f.now())
}

// Lookup reports whether the feed knows product.
func (f *PriceFeed) Lookup(product string) (MarketPrice, bool) {
	q, ok := mockMarketPrices[strings.ToLower(strings.TrimSpace(product))]
	if !ok {
		return MarketPrice{}, false
	}
	return q.at(f.now()), true
}

func (f *PriceFeed) Prices() map[string]MarketPrice {
	now := f.now()
	out := make(map[string]MarketPrice, len(mockMarketPrices))
	for name, q := range mockMarketPrices {
		out[name] = q.at(now)
	}
	return out
}
