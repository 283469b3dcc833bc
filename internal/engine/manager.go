package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"gift_sniper/internal/catalog"
	"gift_sniper/internal/config"
	"gift_sniper/internal/history"
	"gift_sniper/internal/logbus"
	"gift_sniper/internal/market"
	"gift_sniper/internal/model"
	"gift_sniper/internal/notify"
	"gift_sniper/internal/proxypool"
	"gift_sniper/internal/runstate"
)

var (
	ErrAlreadyRunning = errors.New("engine already running for tenant")
	ErrNotRunning     = errors.New("engine not running for tenant")
)

// SettingsSource resolves a tenant's engine settings at start time. The
// sqlite store implements it.
type SettingsSource interface {
	TenantSettings(ctx context.Context, tenant string) (model.Settings, error)
}

type Options struct {
	Config   config.Config
	Dialer   market.Dialer
	Pool     *proxypool.Pool
	Registry *runstate.Registry
	Settings SettingsSource
	Catalog  *catalog.Catalog
	Notifier notify.Notifier
	Bus      *logbus.Bus
}

// Manager owns the per-tenant runners. All lifecycle transitions (start,
// stop, restore, status) go through it; runners never outlive their map
// entry by more than the stop join.
type Manager struct {
	cfg      config.Config
	dialer   market.Dialer
	pool     *proxypool.Pool
	registry *runstate.Registry
	settings SettingsSource
	catalog  *catalog.Catalog
	notifier notify.Notifier
	bus      *logbus.Bus

	// limiter caps marketplace search volume across every tenant.
	limiter   *rate.Limiter
	sessionMu sync.Mutex

	mu      sync.Mutex
	runners map[string]*Runner
}

func NewManager(opts Options) *Manager {
	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Manager{
		cfg:      opts.Config,
		dialer:   opts.Dialer,
		pool:     opts.Pool,
		registry: opts.Registry,
		settings: opts.Settings,
		catalog:  opts.Catalog,
		notifier: notifier,
		bus:      opts.Bus,
		limiter:  rate.NewLimiter(rate.Limit(opts.Config.Engine.GlobalQPS), opts.Config.Engine.GlobalBurst),
		runners:  make(map[string]*Runner),
	}
}

// Start launches the tenant's runner. A second start while the runner is
// alive is rejected; a run flag left behind by a dead runner (or a previous
// process) is treated as permission to start again.
func (m *Manager) Start(ctx context.Context, tenant string) error {
	settings, err := m.settings.TenantSettings(ctx, tenant)
	if err != nil {
		return fmt.Errorf("load settings for %s: %w", tenant, err)
	}
	if settings.Recipient == "" {
		return fmt.Errorf("tenant %s has no recipient configured", tenant)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.runners[tenant]; ok && r.Alive() {
		return ErrAlreadyRunning
	}
	delete(m.runners, tenant)

	state, err := m.registry.GetOrCreate(tenant)
	if err != nil {
		return err
	}
	hist, err := history.Open(
		filepath.Join(m.cfg.Storage.HistoryDir(), tenant+".json"),
		m.cfg.Engine.HistoryRetention(),
	)
	if err != nil {
		return err
	}

	if err := state.SetRunning(true); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		tenant:    tenant,
		cfg:       m.cfg,
		settings:  settings,
		dialer:    m.dialer,
		pool:      m.pool,
		state:     state,
		history:   hist,
		catalog:   m.catalog,
		notifier:  m.notifier,
		bus:       m.bus,
		limiter:   m.limiter,
		sessionMu: &m.sessionMu,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	m.runners[tenant] = r

	if m.bus != nil {
		m.bus.Log(tenant, "info", "starting engine", map[string]any{"recipient": settings.Recipient})
	}
	go r.Run(runCtx)
	return nil
}

// Stop ends the tenant's run. The proxy is released up front so it is free
// for other tenants even if the runner takes its full join timeout to drain.
func (m *Manager) Stop(ctx context.Context, tenant string) error {
	m.mu.Lock()
	r, ok := m.runners[tenant]
	if ok {
		delete(m.runners, tenant)
	}
	m.mu.Unlock()

	if _, err := m.pool.ReleaseByTenant(tenant); err != nil {
		if m.bus != nil {
			m.bus.Log(tenant, "warn", fmt.Sprintf("proxy release failed: %v", err), nil)
		}
	}

	if !ok || !r.Alive() {
		// No live runner; clear a stale run flag if the document has one.
		state, err := m.registry.GetOrCreate(tenant)
		if err != nil {
			return err
		}
		if !state.Running() {
			m.registry.Remove(tenant)
			return ErrNotRunning
		}
		if err := state.SetRunning(false); err != nil {
			return err
		}
		m.registry.Remove(tenant)
		return nil
	}

	r.Stop()
	select {
	case <-r.Done():
	case <-time.After(10 * time.Second):
		return fmt.Errorf("runner for %s did not stop within 10s", tenant)
	case <-ctx.Done():
		return ctx.Err()
	}
	m.registry.Remove(tenant)
	return nil
}

// Status builds the API snapshot for one tenant from the persisted document
// plus runner liveness.
func (m *Manager) Status(tenant string) (model.RunStatus, error) {
	state, err := m.registry.GetOrCreate(tenant)
	if err != nil {
		return model.RunStatus{}, err
	}
	doc, startTime := state.Snapshot()

	m.mu.Lock()
	r, ok := m.runners[tenant]
	m.mu.Unlock()
	alive := ok && r.Alive()

	status := model.RunStatus{
		Tenant:         tenant,
		Running:        doc.Running,
		Alive:          alive,
		BalanceStars:   doc.BalanceStars,
		BalanceTon:     doc.BalanceTon,
		Cycle:          doc.Cycle,
		RecentLogs:     doc.RecentLogs,
		PurchasedGifts: doc.PurchasedGifts,
	}
	if doc.Running && !startTime.IsZero() {
		status.UptimeSeconds = int64(time.Since(startTime).Seconds())
	}
	return status, nil
}

// StatusAll reports every tenant with a persisted run document plus every
// tenant with a live runner.
func (m *Manager) StatusAll() ([]model.RunStatus, error) {
	tenants, err := m.registry.Tenants()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(tenants))
	for _, t := range tenants {
		seen[t] = true
	}
	m.mu.Lock()
	for t := range m.runners {
		if !seen[t] {
			seen[t] = true
			tenants = append(tenants, t)
		}
	}
	m.mu.Unlock()

	out := make([]model.RunStatus, 0, len(tenants))
	for _, t := range tenants {
		st, err := m.Status(t)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// RestoreAll restarts every tenant whose persisted document still carries
// the run flag. Called once on process start so a crash or deploy does not
// silently park running tenants.
func (m *Manager) RestoreAll(ctx context.Context) error {
	tenants, err := m.registry.Tenants()
	if err != nil {
		return err
	}
	var firstErr error
	for _, tenant := range tenants {
		state, err := m.registry.GetOrCreate(tenant)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !state.Running() {
			m.registry.Remove(tenant)
			continue
		}
		if err := m.Start(ctx, tenant); err != nil && !errors.Is(err, ErrAlreadyRunning) {
			if m.bus != nil {
				m.bus.Log(tenant, "error", fmt.Sprintf("restore failed: %v", err), nil)
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// StopAll drains every runner for process shutdown. Unlike Stop, the
// persisted run flags are left alone so RestoreAll can bring every tenant
// back on the next boot.
func (m *Manager) StopAll(ctx context.Context) {
	m.mu.Lock()
	runners := make([]*Runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.runners = make(map[string]*Runner)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			r.Drain()
			select {
			case <-r.Done():
			case <-ctx.Done():
				if m.bus != nil {
					m.bus.Log(r.tenant, "warn", "runner did not drain before shutdown deadline", nil)
				}
			}
		}(r)
	}
	wg.Wait()
}
