// Package history tracks gift identifiers this tenant has already claimed,
// so an offer is never attempted twice even across restarts. It models the
// marketplace's "already sold" state client-side; entries expire after the
// retention window because identifiers can legitimately be re-listed.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

type Store struct {
	mu        sync.Mutex
	path      string
	retention time.Duration
	claimed   map[string]time.Time
}

// Open loads the history file and drops entries older than the retention
// window before first use.
func Open(path string, retention time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &Store{
		path:      path,
		retention: retention,
		claimed:   make(map[string]time.Time),
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	cutoff := time.Now().Add(-retention)
	for id, stamp := range raw {
		at, err := time.Parse(time.RFC3339, stamp)
		if err != nil {
			continue
		}
		if at.After(cutoff) {
			s.claimed[id] = at
		}
	}
	return s, nil
}

func (s *Store) HasClaimed(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claimed[id]
	return ok
}

// Claim marks the identifier as handled and reports whether this call was
// the first to do so. Claiming twice is a no-op, not an error; the false
// return is what lets concurrent evaluations of the same offer agree on a
// single purchaser.
func (s *Store) Claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[id]; ok {
		return false
	}
	s.claimed[id] = time.Now()
	_ = s.flushLocked()
	return true
}

// Prune drops entries whose claim time is older than the retention window
// relative to now.
func (s *Store) Prune(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := now.Add(-s.retention)
	changed := false
	for id, at := range s.claimed {
		if !at.After(cutoff) {
			delete(s.claimed, id)
			changed = true
		}
	}
	if changed {
		_ = s.flushLocked()
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.claimed)
}

func (s *Store) flushLocked() error {
	raw := make(map[string]string, len(s.claimed))
	for id, at := range s.claimed {
		raw[id] = at.Format(time.RFC3339)
	}
	b, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o644)
}
