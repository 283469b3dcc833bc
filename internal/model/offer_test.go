package model

import "testing"

func TestOfferIdentifier(t *testing.T) {
	cases := []struct {
		link string
		want string
	}{
		{"https://t.me/nft/SnoopDogg-1234", "SnoopDogg-1234"},
		{"https://t.me/nft/SnoopDogg-1234/", "SnoopDogg-1234"},
		{"https://t.me/some/other/path", ""},
		{"", ""},
		{"://bad url", ""},
	}
	for _, c := range cases {
		o := Offer{Link: c.link}
		if got := o.Identifier(); got != c.want {
			t.Errorf("Identifier(%q) = %q, want %q", c.link, got, c.want)
		}
	}
}

func TestOfferPriceTon(t *testing.T) {
	o := Offer{PriceTonNano: 2_500_000_000}
	if got := o.PriceTon(); got != 2.5 {
		t.Fatalf("PriceTon() = %f, want 2.5", got)
	}
}

func TestSettingsCeilingFor(t *testing.T) {
	s := Settings{
		DefaultMaxPrice: 200,
		GiftLimits:      map[string]int64{"Snoop Dogg": 500},
	}
	if got := s.CeilingFor("Snoop Dogg"); got != 500 {
		t.Fatalf("per-kind ceiling = %d, want 500", got)
	}
	if got := s.CeilingFor("Plush Pepe"); got != 200 {
		t.Fatalf("default ceiling = %d, want 200", got)
	}
}
