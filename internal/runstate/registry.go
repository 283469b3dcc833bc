package runstate

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Registry owns the tenant→state mapping for the process. States are
// created lazily on first access and dropped from memory when a tenant's
// run ends; the on-disk file stays for later restoration.
type Registry struct {
	mu     sync.Mutex
	dir    string
	states map[string]*State
}

func NewRegistry(dir string) *Registry {
	return &Registry{
		dir:    dir,
		states: make(map[string]*State),
	}
}

func (r *Registry) Path(tenant string) string {
	return filepath.Join(r.dir, tenant+".json")
}

func (r *Registry) GetOrCreate(tenant string) (*State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[tenant]; ok {
		return st, nil
	}
	st, err := Open(r.Path(tenant))
	if err != nil {
		return nil, err
	}
	r.states[tenant] = st
	return st, nil
}

func (r *Registry) Remove(tenant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, tenant)
}

// DeleteFile removes both the in-memory state and the persisted document.
// Used when a tenant account is deleted outright.
func (r *Registry) DeleteFile(tenant string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, tenant)
	err := os.Remove(r.Path(tenant))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Tenants lists every tenant that has a persisted run document, whether or
// not it is loaded. Used by restore-all on process start.
func (r *Registry) Tenants() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(name, ".json"))
	}
	return out, nil
}
