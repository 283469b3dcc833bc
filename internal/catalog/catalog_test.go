package catalog

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromLocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gifts.json")
	if err := os.WriteFile(path, []byte(`{"2": "Plush Pepe", "1": "Snoop Dogg", "bad": "ignored"}`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := Load(path, "http://unreachable.invalid")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	entries := c.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (non-numeric ids dropped), got %d", len(entries))
	}
	if entries[0].GiftID != 1 || entries[0].Title != "Snoop Dogg" {
		t.Fatalf("entries not sorted by id: %+v", entries)
	}
}

func TestLoadFetchesAndCachesWhenMissing(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"7": "Durov's Cap"}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "gifts.json")
	c, err := Load(path, srv.URL)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry, got %d", c.Len())
	}
	if hits != 1 {
		t.Fatalf("expected one fetch, got %d", hits)
	}

	// second load must come from the cache file
	c2, err := Load(path, srv.URL)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if c2.Len() != 1 || hits != 1 {
		t.Fatalf("expected cached load without refetch, entries %d hits %d", c2.Len(), hits)
	}
}
