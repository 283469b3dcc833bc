package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gift_sniper/internal/market"
)

// healthLoop periodically probes both sessions. Probe intervals are jittered
// so a fleet of tenants does not probe in lockstep. A probe timeout gets a
// short backoff; any other probe failure triggers the restart protocol.
func (r *Runner) healthLoop(ctx context.Context) {
	for r.state.Running() {
		jitter := r.cfg.Health.MinInterval() +
			time.Duration(rand.Int63n(int64(r.cfg.Health.MaxInterval()-r.cfg.Health.MinInterval())+1))
		if !sleepUntil(ctx, time.Now().Add(jitter)) {
			return
		}
		if !r.state.Running() {
			return
		}

		err := r.probe(ctx)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, context.DeadlineExceeded) {
			r.log("warn", "health probe timed out, backing off", nil)
			if !sleepUntil(ctx, time.Now().Add(r.cfg.Health.RestartCooldown())) {
				return
			}
			continue
		}

		r.log("warn", fmt.Sprintf("health probe failed, restarting sessions: %v", err), nil)
		if !r.restartSessions(ctx, err) {
			return
		}
	}
}

func (r *Runner) probe(ctx context.Context) error {
	probeCtx, cancel := context.WithTimeout(ctx, r.cfg.Health.ProbeTimeout())
	defer cancel()

	if r.scanner.IsConnected() {
		if _, err := r.scanner.Me(probeCtx); err != nil {
			return err
		}
	}
	if r.buyer.IsConnected() {
		if _, err := r.buyer.Me(probeCtx); err != nil {
			return err
		}
	}
	return nil
}

// restartSessions tears both sessions down and brings them back up. The
// restart mutex keeps concurrent triggers from stacking; shouldWait pauses
// the sweep loop for the duration. A failed restart is terminal: the runner
// goes through emergency shutdown and the method returns false.
func (r *Runner) restartSessions(ctx context.Context, reason error) bool {
	r.restartMu.Lock()
	defer r.restartMu.Unlock()

	r.shouldWait.Store(true)
	defer r.shouldWait.Store(false)

	r.log("warn", fmt.Sprintf("beginning session restart: %v", reason), nil)

	r.safeStop(ctx, r.scanner)
	r.safeStop(ctx, r.buyer)

	if !sleepUntil(ctx, time.Now().Add(r.cfg.Health.RestartCooldown())) {
		return false
	}
	if err := r.initSessions(ctx); err != nil {
		r.emergencyShutdown("session restart failed", err)
		return false
	}

	msg := fmt.Sprintf("restart successful, cooling down for %s", r.cfg.Health.RestartCooldown())
	r.log("info", msg, nil)
	_ = r.state.AddLog(msg)
	if !sleepUntil(ctx, time.Now().Add(r.cfg.Health.RestartCooldown())) {
		return false
	}
	_ = r.state.AddLog("session restart completed")
	return true
}

func (r *Runner) safeStop(ctx context.Context, client market.Client) {
	if client == nil || !client.IsConnected() {
		return
	}
	if err := client.Disconnect(ctx); err != nil {
		r.log("debug", fmt.Sprintf("ignoring disconnect error: %v", err), nil)
	}
}

// emergencyShutdown ends the run from inside the runner: the run flag is
// cleared, the tenant and the operator are told why, and the main loop
// unwinds through its usual cleanup.
func (r *Runner) emergencyShutdown(reason string, err error) {
	msg := "engine stopped: " + reason
	if err != nil {
		r.log("error", fmt.Sprintf("%s: %v", reason, err), nil)
	} else {
		r.log("error", reason, nil)
	}

	_ = r.state.SetRunning(false)
	r.shouldWait.Store(false)
	_ = r.state.AddLog(msg)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r.notifier.NotifyTenant(ctx, r.tenant, "Engine stopped", msg)
	r.notifier.NotifyOperator(ctx, r.tenant, msg)

	if r.cancel != nil {
		r.cancel()
	}
}
