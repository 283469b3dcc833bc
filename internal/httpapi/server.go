package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"gift_sniper/internal/catalog"
	"gift_sniper/internal/config"
	"gift_sniper/internal/engine"
	"gift_sniper/internal/logbus"
	"gift_sniper/internal/model"
	"gift_sniper/internal/proxypool"
	"gift_sniper/internal/runstate"
	"gift_sniper/internal/store/sqlite"
	"gift_sniper/internal/ws"
)

type Options struct {
	Cfg      config.Config
	Bus      *logbus.Bus
	Store    *sqlite.Store
	Manager  *engine.Manager
	Pool     *proxypool.Pool
	Registry *runstate.Registry
	Catalog  *catalog.Catalog
}

type Server struct {
	cfg      config.Config
	bus      *logbus.Bus
	store    *sqlite.Store
	manager  *engine.Manager
	pool     *proxypool.Pool
	registry *runstate.Registry
	catalog  *catalog.Catalog
	ws       *ws.Handler
}

func New(opts Options) *Server {
	return &Server{
		cfg:      opts.Cfg,
		bus:      opts.Bus,
		store:    opts.Store,
		manager:  opts.Manager,
		pool:     opts.Pool,
		registry: opts.Registry,
		catalog:  opts.Catalog,
		ws:       ws.NewHandler(opts.Bus, opts.Cfg.Server.Cors.AllowOrigins),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/ws", s.ws)

	api := http.NewServeMux()
	api.HandleFunc("/api/v1/login", s.handleLogin)
	api.HandleFunc("/api/v1/tenants", s.handleTenants)
	api.HandleFunc("/api/v1/settings", s.handleSettings)
	api.HandleFunc("/api/v1/engine/start", s.handleEngineStart)
	api.HandleFunc("/api/v1/engine/stop", s.handleEngineStop)
	api.HandleFunc("/api/v1/engine/status", s.handleEngineStatus)
	api.HandleFunc("/api/v1/engine/restore", s.handleEngineRestore)
	api.HandleFunc("/api/v1/proxies", s.handleProxies)
	api.HandleFunc("/api/v1/proxies/stats", s.handleProxyStats)
	api.HandleFunc("/api/v1/catalog", s.handleCatalog)

	mux.Handle("/api/", corsMiddleware(s.cfg.Server.Cors, api))
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	var body struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	tenant, err := s.store.GetTenantByUsername(r.Context(), strings.TrimSpace(body.Username))
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(tenant.PasswordHash), []byte(body.Password)) != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
		return
	}
	if !tenant.Active {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "account is disabled"})
		return
	}
	if !tenant.ExpireAt.IsZero() && tenant.ExpireAt.Before(time.Now()) {
		writeJSON(w, http.StatusForbidden, map[string]any{"error": "account has expired"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": tenant})
}

func (s *Server) handleTenants(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenants, err := s.store.ListTenants(r.Context())
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": tenants})
	case http.MethodPost:
		var body struct {
			ID       string `json:"id,omitempty"`
			Username string `json:"username"`
			Password string `json:"password,omitempty"`
			ExpireAt int64  `json:"expireAt,omitempty"`
			IsAdmin  *bool  `json:"isAdmin,omitempty"`
			Active   *bool  `json:"active,omitempty"`
		}
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		username := strings.TrimSpace(body.Username)
		if username == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "username is required"})
			return
		}

		var current model.Tenant
		if strings.TrimSpace(body.ID) != "" {
			if found, err := s.store.GetTenant(r.Context(), strings.TrimSpace(body.ID)); err == nil {
				current = found
			}
		}
		if current.ID == "" {
			if found, err := s.store.GetTenantByUsername(r.Context(), username); err == nil {
				current = found
			}
		}

		next := current
		next.Username = username
		if next.ID == "" {
			next.Active = true
		}
		if body.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(body.Password), bcrypt.DefaultCost)
			if err != nil {
				writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
				return
			}
			next.PasswordHash = string(hash)
		}
		if body.ExpireAt > 0 {
			next.ExpireAt = time.UnixMilli(body.ExpireAt)
		}
		if body.IsAdmin != nil {
			next.IsAdmin = *body.IsAdmin
		}
		if body.Active != nil {
			next.Active = *body.Active
		}

		tenant, err := s.store.UpsertTenant(r.Context(), next)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": tenant})
	case http.MethodDelete:
		id := r.URL.Query().Get("id")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "id is required"})
			return
		}
		if err := s.manager.Stop(r.Context(), id); err != nil && !errors.Is(err, engine.ErrNotRunning) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if err := s.store.DeleteTenant(r.Context(), id); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sqlite.ErrTenantNotFound) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]any{"error": err.Error()})
			return
		}
		if err := s.registry.DeleteFile(id); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if err := os.Remove(filepath.Join(s.cfg.Storage.HistoryDir(), id+".json")); err != nil && !os.IsNotExist(err) {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tenant := r.URL.Query().Get("tenant")
		if tenant == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "tenant is required"})
			return
		}
		settings, err := s.store.TenantSettings(r.Context(), tenant)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": settings})
	case http.MethodPost:
		var body struct {
			Tenant   string         `json:"tenant"`
			Settings model.Settings `json:"settings"`
		}
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if body.Tenant == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "tenant is required"})
			return
		}
		if body.Settings.DefaultMaxPrice < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "defaultMaxPrice must be >= 0"})
			return
		}
		if err := s.store.SaveTenantSettings(r.Context(), body.Tenant, body.Settings); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": body.Settings})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleEngineStart(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.tenantFromBody(w, r)
	if !ok {
		return
	}
	if err := s.manager.Start(r.Context(), tenant); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrAlreadyRunning) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleEngineStop(w http.ResponseWriter, r *http.Request) {
	tenant, ok := s.tenantFromBody(w, r)
	if !ok {
		return
	}
	if err := s.manager.Stop(r.Context(), tenant); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrNotRunning) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if tenant := r.URL.Query().Get("tenant"); tenant != "" {
		status, err := s.manager.Status(tenant)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": status})
		return
	}
	statuses, err := s.manager.StatusAll()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": statuses})
}

func (s *Server) handleEngineRestore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if err := s.manager.RestoreAll(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleProxies(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		proxies, err := s.pool.List()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		if proxies == nil {
			proxies = []model.Proxy{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": proxies})
	case http.MethodPost:
		var body model.Proxy
		if err := readJSON(r, &body); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if body.Host == "" || body.Port <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "host and port are required"})
			return
		}
		if err := s.pool.Add(body); err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case http.MethodDelete:
		host := r.URL.Query().Get("host")
		port := r.URL.Query().Get("port")
		if host == "" || port == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "host and port are required"})
			return
		}
		var portNum int
		if _, err := fmt.Sscanf(port, "%d", &portNum); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "port must be numeric"})
			return
		}
		if err := s.pool.Remove(host, portNum); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, proxypool.ErrNotFound) {
				status = http.StatusNotFound
			}
			writeJSON(w, status, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProxyStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	stats, err := s.pool.Stats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": stats})
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": s.catalog.Entries()})
}

func (s *Server) tenantFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return "", false
	}
	var body struct {
		Tenant string `json:"tenant"`
	}
	if err := readJSON(r, &body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return "", false
	}
	tenant := strings.TrimSpace(body.Tenant)
	if tenant == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "tenant is required"})
		return "", false
	}
	return tenant, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json body: %w", err)
	}
	return nil
}
