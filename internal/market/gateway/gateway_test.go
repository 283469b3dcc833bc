package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gift_sniper/internal/config"
	"gift_sniper/internal/market"
)

func testServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testClient(srv *httptest.Server) market.Client {
	d := NewDialer(config.GatewayConfig{BaseURL: srv.URL}, nil)
	return d.Client("t1", market.RoleBuyer, nil)
}

func TestSearchResaleDecodesOffers(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gifts/resale/search" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("X-Tenant"); got != "t1" {
			t.Errorf("X-Tenant = %q", got)
		}
		if got := r.URL.Query().Get("giftId"); got != "5" {
			t.Errorf("giftId = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok": true,
			"data": []map[string]any{
				{"giftId": 5, "title": "Snoop Dogg", "link": "https://t.me/nft/SnoopDogg-1", "priceStars": 150},
			},
		})
	})

	offers, err := testClient(srv).SearchResale(context.Background(), 5, 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(offers) != 1 || offers[0].PriceStars != 150 {
		t.Fatalf("unexpected offers: %+v", offers)
	}
}

func TestSendResoldGiftMapsRejectionCode(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":      false,
			"code":    market.CodeResaleNotAllowed,
			"message": "gift already sold",
		})
	})

	err := testClient(srv).SendResoldGift(context.Background(), "https://t.me/nft/SnoopDogg-1", "collector", false, market.Peer{})
	if err == nil {
		t.Fatal("expected error")
	}
	var rpc *market.RPCError
	if !errors.As(err, &rpc) || rpc.Code != market.CodeResaleNotAllowed {
		t.Fatalf("expected typed rejection, got %v", err)
	}
}

func TestMeRequiresConnection(t *testing.T) {
	srv := testServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "data": map[string]any{"id": 1}})
	})

	c := testClient(srv)
	if _, err := c.Me(context.Background()); !errors.Is(err, market.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected before connect, got %v", err)
	}

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if !c.IsConnected() {
		t.Fatal("client should report connected")
	}
	if _, err := c.Me(context.Background()); err != nil {
		t.Fatalf("me after connect: %v", err)
	}
}
