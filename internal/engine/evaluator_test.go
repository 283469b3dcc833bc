package engine

import (
	"testing"

	"gift_sniper/internal/model"
)

func baseSettings() model.Settings {
	s := model.DefaultSettings()
	s.Recipient = "collector"
	s.DefaultMaxPrice = 200
	return s
}

func TestEvaluateCeiling(t *testing.T) {
	settings := baseSettings()
	bal := Balances{Stars: 1000}

	atCeiling := model.Offer{GiftID: 1, Title: "Snoop Dogg", Link: "https://t.me/nft/SnoopDogg-1", PriceStars: 200}
	if d := Evaluate(atCeiling, settings, bal); d.Outcome != OutcomeAttempt {
		t.Fatalf("price equal to ceiling should be attempted, got outcome %v (%s)", d.Outcome, d.Reason)
	}

	aboveCeiling := atCeiling
	aboveCeiling.PriceStars = 201
	if d := Evaluate(aboveCeiling, settings, bal); d.Outcome != OutcomeSkip {
		t.Fatalf("price above ceiling should be skipped, got outcome %v", d.Outcome)
	}
}

func TestEvaluatePerKindCeilingOverridesDefault(t *testing.T) {
	settings := baseSettings()
	settings.GiftLimits = map[string]int64{"Snoop Dogg": 500}
	bal := Balances{Stars: 1000}

	offer := model.Offer{GiftID: 1, Title: "Snoop Dogg", Link: "https://t.me/nft/SnoopDogg-2", PriceStars: 450}
	if d := Evaluate(offer, settings, bal); d.Outcome != OutcomeAttempt {
		t.Fatalf("per-kind ceiling should apply, got outcome %v (%s)", d.Outcome, d.Reason)
	}
}

func TestEvaluateTitleExclusionIsCaseInsensitiveSubstring(t *testing.T) {
	settings := baseSettings()
	settings.GiftsNotToBuy = []string{"snoop"}
	bal := Balances{Stars: 1000}

	offer := model.Offer{GiftID: 1, Title: "SNOOP Dogg", Link: "https://t.me/nft/SnoopDogg-3", PriceStars: 100}
	if d := Evaluate(offer, settings, bal); d.Outcome != OutcomeSkip {
		t.Fatalf("excluded title should be skipped, got outcome %v", d.Outcome)
	}
}

func TestEvaluateBackdropExclusion(t *testing.T) {
	settings := baseSettings()
	settings.BackdropsNotToBuy = []string{"midnight"}
	bal := Balances{Stars: 1000}

	offer := model.Offer{
		GiftID: 1, Title: "Snoop Dogg", Link: "https://t.me/nft/SnoopDogg-4", PriceStars: 100,
		Attributes: []model.OfferAttribute{
			{Type: model.AttributeModel, Name: "Midnight Crown"},
			{Type: model.AttributeBackdrop, Name: "Midnight Blue"},
		},
	}
	if d := Evaluate(offer, settings, bal); d.Outcome != OutcomeSkip {
		t.Fatalf("excluded backdrop should be skipped, got outcome %v", d.Outcome)
	}

	// same keyword on a non-backdrop attribute must not trigger
	offer.Attributes = offer.Attributes[:1]
	if d := Evaluate(offer, settings, bal); d.Outcome != OutcomeAttempt {
		t.Fatalf("model attribute must not match backdrop exclusion, got outcome %v (%s)", d.Outcome, d.Reason)
	}
}

func TestEvaluateUnpricedOfferSkipped(t *testing.T) {
	offer := model.Offer{GiftID: 1, Title: "Snoop Dogg", Link: "https://t.me/nft/SnoopDogg-5"}
	if d := Evaluate(offer, baseSettings(), Balances{Stars: 1000}); d.Outcome != OutcomeSkip {
		t.Fatalf("unpriced offer should be skipped, got outcome %v", d.Outcome)
	}
}

func TestEvaluateSkipsOfferWithoutStarPrice(t *testing.T) {
	settings := baseSettings()
	offer := model.Offer{
		GiftID: 1, Title: "Snoop Dogg", Link: "https://t.me/nft/SnoopDogg-7",
		PriceTonNano: 3_000_000_000,
	}
	// A TON price alone is not enough: the star price anchors the ceiling
	// check, so an offer without one is never attempted.
	d := Evaluate(offer, settings, Balances{TonNano: 5_000_000_000})
	if d.Outcome != OutcomeSkip {
		t.Fatalf("offer without a star price should be skipped, got outcome %v useTon %v", d.Outcome, d.UseTon)
	}
}

func TestEvaluateCurrencyPriority(t *testing.T) {
	settings := baseSettings()
	offer := model.Offer{
		GiftID: 1, Title: "Snoop Dogg", Link: "https://t.me/nft/SnoopDogg-6",
		PriceStars: 150, PriceTonNano: 2_000_000_000,
	}

	// TON covered: ton wins even though stars would also cover
	d := Evaluate(offer, settings, Balances{Stars: 1000, TonNano: 5_000_000_000})
	if d.Outcome != OutcomeAttempt || !d.UseTon {
		t.Fatalf("expected ton attempt, got outcome %v useTon %v", d.Outcome, d.UseTon)
	}

	// TON short, stars cover: fall back to stars
	d = Evaluate(offer, settings, Balances{Stars: 1000, TonNano: 1_000_000_000})
	if d.Outcome != OutcomeAttempt || d.UseTon {
		t.Fatalf("expected stars fallback, got outcome %v useTon %v", d.Outcome, d.UseTon)
	}

	// Neither covers
	d = Evaluate(offer, settings, Balances{Stars: 100, TonNano: 1_000_000_000})
	if d.Outcome != OutcomeInsufficient {
		t.Fatalf("expected insufficient, got outcome %v", d.Outcome)
	}
}

