package engine

import (
	"fmt"
	"strings"

	"gift_sniper/internal/model"
)

// Outcome classifies one offer evaluation.
type Outcome int

const (
	// OutcomeSkip means the offer fails a filter and is not worth claiming.
	OutcomeSkip Outcome = iota
	// OutcomeAttempt means the offer passed every filter and the balance
	// covers it; the caller should claim and buy.
	OutcomeAttempt
	// OutcomeInsufficient means the offer would be bought but the balance
	// does not cover it. The offer stays unclaimed so a later cycle with a
	// topped-up balance can still take it.
	OutcomeInsufficient
)

// Balances is the buyer session's known funds at evaluation time.
type Balances struct {
	Stars   int64
	TonNano int64
}

// Decision is the evaluator's verdict for one offer.
type Decision struct {
	Outcome Outcome
	// UseTon selects the purchase currency. TON wins whenever the offer
	// carries a TON price; stars are the fallback.
	UseTon bool
	Reason string
}

func containsFold(haystack string, needles []string) bool {
	h := strings.ToLower(haystack)
	for _, n := range needles {
		n = strings.TrimSpace(strings.ToLower(n))
		if n != "" && strings.Contains(h, n) {
			return true
		}
	}
	return false
}

func excludedBackdrop(offer model.Offer, excluded []string) (string, bool) {
	for _, attr := range offer.Attributes {
		if attr.Type != model.AttributeBackdrop {
			continue
		}
		if containsFold(attr.Name, excluded) {
			return attr.Name, true
		}
	}
	return "", false
}

// Evaluate applies the tenant's filters and balance to a single offer. It is
// pure: claiming, purchasing and logging are the caller's business.
func Evaluate(offer model.Offer, settings model.Settings, bal Balances) Decision {
	if offer.PriceStars <= 0 {
		return Decision{Outcome: OutcomeSkip, Reason: "offer has no star price"}
	}
	if containsFold(offer.Title, settings.GiftsNotToBuy) {
		return Decision{Outcome: OutcomeSkip, Reason: fmt.Sprintf("title %q is excluded", offer.Title)}
	}
	if name, ok := excludedBackdrop(offer, settings.BackdropsNotToBuy); ok {
		return Decision{Outcome: OutcomeSkip, Reason: fmt.Sprintf("backdrop %q is excluded", name)}
	}

	ceiling := settings.CeilingFor(offer.Title)
	if offer.PriceStars > ceiling {
		return Decision{
			Outcome: OutcomeSkip,
			Reason:  fmt.Sprintf("price %d exceeds ceiling %d", offer.PriceStars, ceiling),
		}
	}

	// TON wins when the offer carries a TON price the balance covers;
	// otherwise stars are the fallback.
	if offer.PriceTonNano > 0 && bal.TonNano >= offer.PriceTonNano {
		return Decision{Outcome: OutcomeAttempt, UseTon: true}
	}
	if offer.PriceStars > 0 && bal.Stars >= offer.PriceStars {
		return Decision{Outcome: OutcomeAttempt}
	}
	return Decision{
		Outcome: OutcomeInsufficient,
		Reason: fmt.Sprintf("balance %d stars / %.4f ton below price %d stars / %.4f ton",
			bal.Stars, float64(bal.TonNano)/1e9, offer.PriceStars, offer.PriceTon()),
	}
}
