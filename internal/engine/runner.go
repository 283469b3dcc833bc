package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
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

// Runner drives one tenant's acquisition loop: two marketplace sessions, a
// health supervisor goroutine, and the sweep cycle. A Runner is built by the
// Manager, runs until stopped or until an emergency shutdown, and always
// releases its proxy and sessions on the way out.
type Runner struct {
	tenant   string
	cfg      config.Config
	settings model.Settings

	dialer   market.Dialer
	pool     *proxypool.Pool
	state    *runstate.State
	history  *history.Store
	catalog  *catalog.Catalog
	notifier notify.Notifier
	bus      *logbus.Bus
	limiter  *rate.Limiter

	// sessionMu is shared across runners; marketplace session handshakes
	// must not overlap between tenants.
	sessionMu *sync.Mutex

	scanner market.Client
	buyer   market.Client
	proxy   *model.Proxy
	peer    market.Peer

	balMu      sync.Mutex
	balStars   int64
	balTonNano int64

	restartMu  sync.Mutex
	shouldWait atomic.Bool

	// keepRunFlag marks a process-level drain: the goroutine unwinds but the
	// persisted run flag survives so the next boot restores the tenant.
	keepRunFlag atomic.Bool

	cancel context.CancelFunc
	done   chan struct{}
}

// Alive reports whether the runner's goroutine is still executing.
func (r *Runner) Alive() bool {
	select {
	case <-r.done:
		return false
	default:
		return true
	}
}

// Run is the runner's main goroutine. It returns when the run flag is
// cleared, the context is cancelled, or startup fails.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)

	var healthDone chan struct{}
	defer func() {
		r.cleanup(healthDone)
	}()

	proxy, err := r.pool.Acquire(r.tenant)
	if err != nil {
		r.emergencyShutdown("proxy pool unavailable", err)
		return
	}
	if proxy == nil && !r.cfg.Engine.AllowProxyless {
		r.emergencyShutdown("no free proxy in the pool", nil)
		return
	}
	r.proxy = proxy

	if err := r.initSessions(ctx); err != nil {
		r.emergencyShutdown("session startup failed", err)
		return
	}
	if err := r.loadBalances(ctx); err != nil {
		r.emergencyShutdown("could not read buyer balances", err)
		return
	}

	scannerMe, _ := r.scanner.Me(ctx)
	buyerMe, _ := r.buyer.Me(ctx)
	stars, tonNano := r.balances()
	startup := fmt.Sprintf(
		"engine started: scanner %s (id %d), buyer %s (id %d), balance %d stars / %.4f ton",
		scannerMe.Username, scannerMe.ID, buyerMe.Username, buyerMe.ID,
		stars, float64(tonNano)/1e9,
	)
	r.log("info", startup, nil)
	_ = r.state.AddLog(startup)

	healthDone = make(chan struct{})
	go func() {
		defer close(healthDone)
		r.healthLoop(ctx)
	}()

	cycle := 0
	for r.state.Running() {
		if ctx.Err() != nil {
			return
		}
		if r.shouldWait.Load() {
			// A restart is in flight; idle instead of hammering dead sessions.
			if !sleepUntil(ctx, time.Now().Add(r.cfg.Engine.WaitPoll())) {
				return
			}
			continue
		}

		if err := r.sweep(ctx, cycle); err != nil {
			if ctx.Err() != nil {
				return
			}
			r.log("error", fmt.Sprintf("sweep %d failed: %v", cycle, err), nil)
			if !sleepUntil(ctx, time.Now().Add(r.cfg.Engine.CycleBackoff())) {
				return
			}
			continue
		}
		cycle++
		c := cycle
		_ = r.state.Mutate(func(doc *runstate.Document) {
			doc.Cycle = &c
		})

		if !sleepUntil(ctx, time.Now().Add(r.settings.SleepInterval())) {
			return
		}
	}
}

// Stop clears the run flag and cancels the runner's context. Callers wait on
// Done for the goroutine to drain.
func (r *Runner) Stop() {
	_ = r.state.SetRunning(false)
	if r.cancel != nil {
		r.cancel()
	}
}

// Drain cancels the runner without clearing the persisted run flag. Used on
// process shutdown so RestoreAll brings the tenant back after a redeploy.
func (r *Runner) Drain() {
	r.keepRunFlag.Store(true)
	if r.cancel != nil {
		r.cancel()
	}
}

func (r *Runner) Done() <-chan struct{} { return r.done }

func (r *Runner) cleanup(healthDone chan struct{}) {
	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	r.safeStop(stopCtx, r.scanner)
	r.safeStop(stopCtx, r.buyer)

	if r.proxy != nil {
		if _, err := r.pool.ReleaseByTenant(r.tenant); err != nil {
			r.log("warn", fmt.Sprintf("proxy release failed: %v", err), nil)
		}
		r.proxy = nil
	}

	if !r.keepRunFlag.Load() {
		_ = r.state.SetRunning(false)
	}
	if r.cancel != nil {
		r.cancel()
	}
	if healthDone != nil {
		<-healthDone
	}
	r.log("info", "engine stopped", nil)
}

// initSessions dials and connects both sessions and caches the recipient
// peer. The shared session mutex serializes handshakes across tenants.
func (r *Runner) initSessions(ctx context.Context) error {
	r.sessionMu.Lock()
	defer r.sessionMu.Unlock()

	r.scanner = r.dialer.Client(r.tenant, market.RoleScanner, r.proxy)
	r.buyer = r.dialer.Client(r.tenant, market.RoleBuyer, r.proxy)

	if err := r.scanner.Connect(ctx); err != nil {
		return fmt.Errorf("connect scanner: %w", err)
	}
	if err := r.buyer.Connect(ctx); err != nil {
		return fmt.Errorf("connect buyer: %w", err)
	}

	peer, err := r.buyer.ResolvePeer(ctx, r.settings.Recipient)
	if err != nil {
		// A zero peer just costs an inline resolve at purchase time.
		r.log("warn", fmt.Sprintf("recipient peer resolution failed: %v", err), nil)
		peer = market.Peer{}
	}
	r.peer = peer
	return nil
}

func (r *Runner) loadBalances(ctx context.Context) error {
	stars, err := r.buyer.StarsBalance(ctx)
	if err != nil {
		return err
	}
	tonNano, err := r.buyer.TonBalanceNano(ctx)
	if err != nil {
		return err
	}

	r.balMu.Lock()
	r.balStars = stars
	r.balTonNano = tonNano
	r.balMu.Unlock()

	ton := float64(tonNano) / 1e9
	return r.state.Mutate(func(doc *runstate.Document) {
		doc.BalanceStars = &stars
		doc.BalanceTon = &ton
	})
}

func (r *Runner) balances() (stars, tonNano int64) {
	r.balMu.Lock()
	defer r.balMu.Unlock()
	return r.balStars, r.balTonNano
}

func (r *Runner) deduct(useTon bool, offer model.Offer) {
	r.balMu.Lock()
	if useTon {
		r.balTonNano -= offer.PriceTonNano
	} else {
		r.balStars -= offer.PriceStars
	}
	r.balMu.Unlock()
}

func (r *Runner) log(level, message string, fields map[string]any) {
	if r.bus != nil {
		r.bus.Log(r.tenant, level, message, fields)
	}
}

// sleepUntil blocks until t or ctx cancellation; it reports whether the full
// wait completed.
func sleepUntil(ctx context.Context, t time.Time) bool {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
