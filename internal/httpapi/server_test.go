package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gift_sniper/internal/catalog"
	"gift_sniper/internal/config"
	"gift_sniper/internal/engine"
	"gift_sniper/internal/logbus"
	"gift_sniper/internal/market/gateway"
	"gift_sniper/internal/model"
	"gift_sniper/internal/proxypool"
	"gift_sniper/internal/runstate"
	"gift_sniper/internal/store/sqlite"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		Server:  config.ServerConfig{Addr: ":0", Cors: config.CorsConfig{AllowOrigins: []string{"*"}}},
		Storage: config.StorageConfig{DataDir: dir, SQLitePath: filepath.Join(dir, "test.db")},
		Gateway: config.GatewayConfig{BaseURL: "http://127.0.0.1:0"},
	}

	store, err := sqlite.Open(context.Background(), cfg.Storage.SQLitePath)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	catalogPath := filepath.Join(dir, "gifts.json")
	if err := os.WriteFile(catalogPath, []byte(`{"1": "Snoop Dogg"}`), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cat, err := catalog.Load(catalogPath, "")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	pool, err := proxypool.New(cfg.Storage.ProxyFile())
	if err != nil {
		t.Fatalf("open pool: %v", err)
	}
	bus := logbus.New(50)
	registry := runstate.NewRegistry(cfg.Storage.RunStateDir())
	manager := engine.NewManager(engine.Options{
		Config:   cfg,
		Dialer:   gateway.NewDialer(cfg.Gateway, bus),
		Pool:     pool,
		Registry: registry,
		Settings: store,
		Catalog:  cat,
		Bus:      bus,
	})

	s := New(Options{
		Cfg:      cfg,
		Bus:      bus,
		Store:    store,
		Manager:  manager,
		Pool:     pool,
		Registry: registry,
		Catalog:  cat,
	})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK || body["ok"] != true {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
}

func TestTenantLifecycleAndLogin(t *testing.T) {
	srv := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/tenants", map[string]any{
		"username": "alice",
		"password": "hunter2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("create tenant = %d %v", resp.StatusCode, body)
	}
	data := body["data"].(map[string]any)
	id, _ := data["id"].(string)
	if id == "" {
		t.Fatal("created tenant has no id")
	}
	if _, leaked := data["passwordHash"]; leaked {
		t.Fatal("password hash must not appear in responses")
	}

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/login", map[string]any{
		"username": "alice", "password": "hunter2",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/login", map[string]any{
		"username": "alice", "password": "wrong",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login = %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/tenants?id="+id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete tenant = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/v1/login", map[string]any{
		"username": "alice", "password": "hunter2",
	})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("login after delete = %d", resp.StatusCode)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	srv := newTestServer(t)

	settings := model.DefaultSettings()
	settings.Recipient = "collector"
	settings.GiftLimits = map[string]int64{"Snoop Dogg": 500}
	settings.GiftsNotToBuy = []string{"pepe"}

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/v1/settings", map[string]any{
		"tenant":   "t1",
		"settings": settings,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("save settings = %d %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/v1/settings?tenant=t1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get settings = %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["recipient"] != "collector" {
		t.Fatalf("recipient = %v", data["recipient"])
	}
	limits := data["giftLimits"].(map[string]any)
	if limits["Snoop Dogg"].(float64) != 500 {
		t.Fatalf("gift limit = %v", limits["Snoop Dogg"])
	}
}

func TestSettingsDefaultWhenUnset(t *testing.T) {
	srv := newTestServer(t)
	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/settings?tenant=nobody", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get settings = %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["defaultMaxPrice"].(float64) != 200 {
		t.Fatalf("default ceiling = %v", data["defaultMaxPrice"])
	}
}

func TestProxyEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/proxies", map[string]any{
		"host": "10.0.0.1", "port": 1080,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add proxy = %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/v1/proxies/stats", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stats = %d", resp.StatusCode)
	}
	data := body["data"].(map[string]any)
	if data["total"].(float64) != 1 || data["available"].(float64) != 1 {
		t.Fatalf("stats = %v", data)
	}

	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/proxies?host=10.0.0.1&port=1080", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("delete proxy = %d", resp.StatusCode)
	}
	resp, _ = doJSON(t, http.MethodDelete, srv.URL+"/api/v1/proxies?host=10.0.0.1&port=1080", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("delete missing proxy = %d", resp.StatusCode)
	}
}

func TestEngineStartUnknownTenantFails(t *testing.T) {
	srv := newTestServer(t)
	// tenant has default settings with no recipient, so start is rejected
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/v1/engine/start", map[string]any{"tenant": "ghost"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("start = %d", resp.StatusCode)
	}
}
