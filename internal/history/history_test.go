package history

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestClaimFirstWinnerOnly(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "t1.json"), 7*24*time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if s.Claim("SnoopDogg-1") {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Fatalf("expected exactly one winner, got %d", winners)
	}
	if !s.HasClaimed("SnoopDogg-1") {
		t.Fatal("identifier should be claimed")
	}
}

func TestClaimsSurviveReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t1.json")
	s, err := Open(path, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !s.Claim("SnoopDogg-2") {
		t.Fatal("first claim should win")
	}

	reloaded, err := Open(path, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !reloaded.HasClaimed("SnoopDogg-2") {
		t.Fatal("claim should survive a reload")
	}
	if reloaded.Claim("SnoopDogg-2") {
		t.Fatal("reloaded claim must not be claimable again")
	}
}

func TestPruneDropsExpiredClaims(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "t1.json"), time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Claim("SnoopDogg-3")

	s.Prune(time.Now())
	if s.Len() != 1 {
		t.Fatal("fresh claim must survive prune")
	}

	s.Prune(time.Now().Add(2 * time.Hour))
	if s.Len() != 0 {
		t.Fatal("expired claim must be pruned")
	}
	if s.HasClaimed("SnoopDogg-3") {
		t.Fatal("pruned identifier should be claimable again")
	}
}

func TestOpenPrunesExpiredEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t1.json")
	s, err := Open(path, time.Hour)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	s.Claim("SnoopDogg-4")

	// Reopen with a zero retention window: everything is stale.
	reloaded, err := Open(path, 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if reloaded.Len() != 0 {
		t.Fatalf("expected stale entries dropped on load, got %d", reloaded.Len())
	}
}
