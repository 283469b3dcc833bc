package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gift_sniper/internal/catalog"
	"gift_sniper/internal/logbus"
	"gift_sniper/internal/model"
	"gift_sniper/internal/proxypool"
	"gift_sniper/internal/runstate"
)

type fakeSettings struct {
	settings map[string]model.Settings
}

func (f *fakeSettings) TenantSettings(_ context.Context, tenant string) (model.Settings, error) {
	if s, ok := f.settings[tenant]; ok {
		return s, nil
	}
	return model.DefaultSettings(), nil
}

func newTestManager(t *testing.T, dialer *fakeDialer) *Manager {
	t.Helper()
	dir := t.TempDir()
	cfg := testConfig(dir)

	catalogPath := filepath.Join(dir, "gifts.json")
	if err := os.WriteFile(catalogPath, []byte(`{"1": "Snoop Dogg"}`), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	cat, err := catalog.Load(catalogPath, "")
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	pool, err := proxypool.New(filepath.Join(dir, "proxies.json"))
	if err != nil {
		t.Fatalf("open proxy pool: %v", err)
	}

	settings := model.DefaultSettings()
	settings.Recipient = "collector"
	settings.SleepBetweenCycles = 1

	return NewManager(Options{
		Config:   cfg,
		Dialer:   dialer,
		Pool:     pool,
		Registry: runstate.NewRegistry(filepath.Join(dir, "run_states")),
		Settings: &fakeSettings{settings: map[string]model.Settings{"t1": settings}},
		Catalog:  cat,
		Bus:      logbus.New(50),
	})
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManagerStartStopLifecycle(t *testing.T) {
	dialer := &fakeDialer{
		scanner: &fakeClient{},
		buyer:   &fakeClient{stars: 500},
	}
	m := newTestManager(t, dialer)
	ctx := context.Background()

	if err := m.Start(ctx, "t1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(ctx, "t1"); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("double start should be rejected, got %v", err)
	}

	waitFor(t, 3*time.Second, func() bool {
		st, err := m.Status("t1")
		return err == nil && st.Running && st.Alive
	})

	if err := m.Stop(ctx, "t1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	st, err := m.Status("t1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if st.Running || st.Alive {
		t.Fatalf("stopped tenant reported running=%v alive=%v", st.Running, st.Alive)
	}

	if err := m.Stop(ctx, "t1"); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("second stop should report not running, got %v", err)
	}
}

func TestManagerStartWithoutRecipientFails(t *testing.T) {
	m := newTestManager(t, &fakeDialer{scanner: &fakeClient{}, buyer: &fakeClient{}})
	if err := m.Start(context.Background(), "no-settings"); err == nil {
		t.Fatal("start without a recipient must fail")
	}
}

func TestManagerRestoreAll(t *testing.T) {
	dialer := &fakeDialer{scanner: &fakeClient{}, buyer: &fakeClient{stars: 500}}
	m := newTestManager(t, dialer)
	ctx := context.Background()

	if err := m.Start(ctx, "t1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		st, err := m.Status("t1")
		return err == nil && st.Alive
	})

	// simulate a process restart: drain without clearing run flags
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	m.StopAll(drainCtx)
	cancel()

	st, err := m.Status("t1")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Running {
		t.Fatal("drain must preserve the persisted run flag")
	}
	if st.Alive {
		t.Fatal("drained runner must not be alive")
	}

	if err := m.RestoreAll(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}
	waitFor(t, 3*time.Second, func() bool {
		st, err := m.Status("t1")
		return err == nil && st.Running && st.Alive
	})

	stopCtx, cancelStop := context.WithTimeout(ctx, 5*time.Second)
	defer cancelStop()
	m.StopAll(stopCtx)
}
