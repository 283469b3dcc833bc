package main

import (
	crand "crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// Stand-in for the marketplace session gateway. Offers are generated per
// search with randomized prices; a sale marks the slug sold so a second
// purchase of the same offer fails the way the real marketplace does.
func main() {
	addr := flag.String("addr", ":8080", "listen address")
	flag.Parse()

	var mu sync.Mutex
	sold := make(map[string]bool)
	stars := int64(5000)
	tonNano := int64(25_000_000_000)

	mux := http.NewServeMux()
	mux.HandleFunc("/mock/health", func(w http.ResponseWriter, _ *http.Request) {
		writeOK(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/mock/session/connect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeOK(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/mock/session/disconnect", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeOK(w, map[string]any{"ok": true})
	})

	mux.HandleFunc("/mock/session/me", func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("X-Tenant")
		role := r.Header.Get("X-Role")
		writeOK(w, map[string]any{
			"ok": true,
			"data": map[string]any{
				"id":        int64(100000 + rand.Intn(900000)),
				"firstName": "Mock " + role,
				"username":  tenant + "_" + role,
			},
		})
	})

	mux.HandleFunc("/mock/balance/stars", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		amount := stars
		mu.Unlock()
		writeOK(w, map[string]any{"ok": true, "data": map[string]any{"amount": amount}})
	})

	mux.HandleFunc("/mock/balance/ton", func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		amount := tonNano
		mu.Unlock()
		writeOK(w, map[string]any{"ok": true, "data": map[string]any{"amountNano": amount}})
	})

	mux.HandleFunc("/mock/peers/resolve", func(w http.ResponseWriter, r *http.Request) {
		recipient := r.URL.Query().Get("recipient")
		if recipient == "" {
			writeOK(w, map[string]any{"ok": false, "message": "recipient is required"})
			return
		}
		writeOK(w, map[string]any{
			"ok": true,
			"data": map[string]any{
				"id":         int64(200000 + rand.Intn(800000)),
				"accessHash": randString(16),
			},
		})
	})

	mux.HandleFunc("/mock/gifts/resale/search", func(w http.ResponseWriter, r *http.Request) {
		giftID, _ := strconv.ParseInt(r.URL.Query().Get("giftId"), 10, 64)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		if limit <= 0 {
			limit = 1
		}

		offers := make([]map[string]any, 0, limit)
		for i := 0; i < limit; i++ {
			slug := fmt.Sprintf("MockGift%d-%d", giftID, rand.Intn(100000))
			offer := map[string]any{
				"giftId":     giftID,
				"title":      fmt.Sprintf("Mock Gift %d", giftID),
				"link":       "https://t.me/nft/" + slug,
				"priceStars": int64(50 + rand.Intn(500)),
			}
			// every fifth offer also carries a TON price
			if rand.Intn(5) == 0 {
				offer["priceTonNano"] = int64(1+rand.Intn(10)) * 1_000_000_000
			}
			if rand.Intn(3) == 0 {
				offer["attributes"] = []map[string]any{
					{"type": "backdrop", "name": "Midnight Blue"},
				}
			}
			offers = append(offers, offer)
		}
		writeOK(w, map[string]any{"ok": true, "data": offers})
	})

	mux.HandleFunc("/mock/gifts/resale/send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var body struct {
			Link   string `json:"link"`
			UseTon bool   `json:"useTon"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)

		mu.Lock()
		defer mu.Unlock()
		if sold[body.Link] {
			writeOK(w, map[string]any{
				"ok":      false,
				"code":    "STARGIFT_RESELL_NOT_ALLOWED",
				"message": "gift already sold",
			})
			return
		}
		// ~10% of purchases lose the race to another buyer
		if rand.Intn(10) == 0 {
			sold[body.Link] = true
			writeOK(w, map[string]any{
				"ok":      false,
				"code":    "STARGIFT_RESELL_NOT_ALLOWED",
				"message": "gift already sold",
			})
			return
		}
		sold[body.Link] = true
		if body.UseTon {
			tonNano -= int64(1+rand.Intn(10)) * 1_000_000_000
		} else {
			stars -= int64(50 + rand.Intn(500))
		}
		writeOK(w, map[string]any{"ok": true})
	})

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Printf("mock gateway listening on %s", *addr)
	log.Fatal(srv.ListenAndServe())
}

func writeOK(w http.ResponseWriter, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

func randString(n int) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	if n <= 0 {
		return ""
	}
	raw := make([]byte, n)
	_, _ = crand.Read(raw)
	out := make([]byte, n)
	for i := range out {
		out[i] = letters[int(raw[i])%len(letters)]
	}
	return string(out)
}
