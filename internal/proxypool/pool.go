// Package proxypool leases egress proxies to tenants. The backing store is
// a single JSON file shared with the admin surface, so every operation
// re-reads it before mutating instead of trusting an in-memory copy.
package proxypool

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gift_sniper/internal/model"
)

var ErrNotFound = errors.New("proxy not found")

type Pool struct {
	mu   sync.Mutex
	path string
}

type Stats struct {
	Total     int `json:"total"`
	Available int `json:"available"`
	InUse     int `json:"inUse"`
}

func New(path string) (*Pool, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &Pool{path: path}, nil
}

// Acquire leases a free proxy to the tenant. Re-acquiring is idempotent: a
// tenant that already holds a lease gets the same proxy back with a
// refreshed last_used stamp. Returns (nil, nil) when the pool is exhausted;
// the caller decides whether that is fatal.
func (p *Pool) Acquire(tenant string) (*model.Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxies, err := p.load()
	if err != nil {
		return nil, err
	}

	now := time.Now().Format(time.RFC3339)
	for i := range proxies {
		if proxies[i].InUse && proxies[i].UsedBy == tenant {
			proxies[i].LastUsed = now
			if err := p.save(proxies); err != nil {
				return nil, err
			}
			out := proxies[i]
			return &out, nil
		}
	}

	for i := range proxies {
		if proxies[i].InUse {
			continue
		}
		proxies[i].InUse = true
		proxies[i].UsedBy = tenant
		proxies[i].LastUsed = now
		if err := p.save(proxies); err != nil {
			return nil, err
		}
		out := proxies[i]
		return &out, nil
	}

	return nil, nil
}

// Release frees the proxy regardless of who holds it. No-op when the proxy
// is already free or unknown.
func (p *Pool) Release(host string, port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxies, err := p.load()
	if err != nil {
		return err
	}
	for i := range proxies {
		if proxies[i].Host == host && proxies[i].Port == port {
			proxies[i].InUse = false
			proxies[i].UsedBy = ""
			proxies[i].LastUsed = time.Now().Format(time.RFC3339)
			return p.save(proxies)
		}
	}
	return nil
}

// ReleaseByTenant frees every proxy leased to the tenant. Used on forced
// stop, where the runner may never have recorded which proxy it held.
func (p *Pool) ReleaseByTenant(tenant string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxies, err := p.load()
	if err != nil {
		return false, err
	}
	released := false
	now := time.Now().Format(time.RFC3339)
	for i := range proxies {
		if proxies[i].UsedBy == tenant {
			proxies[i].InUse = false
			proxies[i].UsedBy = ""
			proxies[i].LastUsed = now
			released = true
		}
	}
	if released {
		if err := p.save(proxies); err != nil {
			return false, err
		}
	}
	return released, nil
}

func (p *Pool) Add(proxy model.Proxy) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxies, err := p.load()
	if err != nil {
		return err
	}
	proxy.InUse = false
	proxy.UsedBy = ""
	proxy.LastUsed = ""
	proxies = append(proxies, proxy)
	return p.save(proxies)
}

func (p *Pool) Remove(host string, port int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxies, err := p.load()
	if err != nil {
		return err
	}
	out := proxies[:0]
	found := false
	for _, proxy := range proxies {
		if proxy.Host == host && proxy.Port == port {
			found = true
			continue
		}
		out = append(out, proxy)
	}
	if !found {
		return ErrNotFound
	}
	return p.save(out)
}

func (p *Pool) List() ([]model.Proxy, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.load()
}

func (p *Pool) Stats() (Stats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	proxies, err := p.load()
	if err != nil {
		return Stats{}, err
	}
	st := Stats{Total: len(proxies)}
	for _, proxy := range proxies {
		if proxy.InUse {
			st.InUse++
		} else {
			st.Available++
		}
	}
	return st, nil
}

func (p *Pool) load() ([]model.Proxy, error) {
	b, err := os.ReadFile(p.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var proxies []model.Proxy
	if err := json.Unmarshal(b, &proxies); err != nil {
		return nil, err
	}
	return proxies, nil
}

func (p *Pool) save(proxies []model.Proxy) error {
	if proxies == nil {
		proxies = []model.Proxy{}
	}
	b, err := json.MarshalIndent(proxies, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, b, 0o644)
}
