package model

import (
	"net/url"
	"strings"
)

type AttributeType string

const (
	AttributeModel    AttributeType = "model"
	AttributeBackdrop AttributeType = "backdrop"
	AttributeSymbol   AttributeType = "symbol"
)

type OfferAttribute struct {
	Type AttributeType `json:"type"`
	Name string        `json:"name"`
}

// Offer is a marketplace resale listing. It is produced by the marketplace
// client and consumed once per evaluation; the engine never mutates it.
type Offer struct {
	GiftID       int64            `json:"giftId"`
	Title        string           `json:"title"`
	Link         string           `json:"link"`
	PriceStars   int64            `json:"priceStars"`
	PriceTonNano int64            `json:"priceTonNano"`
	Attributes   []OfferAttribute `json:"attributes,omitempty"`
}

func (o Offer) PriceTon() float64 {
	return float64(o.PriceTonNano) / 1e9
}

// Identifier extracts the name-number slug from an offer link such as
// https://t.me/nft/SnoopDogg-1234. Empty when the link is not a gift link.
func (o Offer) Identifier() string {
	u, err := url.Parse(o.Link)
	if err != nil {
		return ""
	}
	if !strings.HasPrefix(u.Path, "/nft/") {
		return ""
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	return parts[len(parts)-1]
}
