// Package catalog maps gift kind ids to their display titles. The mapping
// is served by a public CDN and changes rarely, so it is fetched once and
// cached on disk; subsequent loads never touch the network.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/go-resty/resty/v2"
)

type Entry struct {
	GiftID int64
	Title  string
}

type Catalog struct {
	entries []Entry
}

// Load reads the local mapping file, fetching and caching it from url when
// the file does not exist yet.
func Load(path, url string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		b, err = fetch(path, url)
	}
	if err != nil {
		return nil, err
	}

	var raw map[string]string
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(raw))
	for id, title := range raw {
		giftID, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			continue
		}
		entries = append(entries, Entry{GiftID: giftID, Title: title})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].GiftID < entries[j].GiftID })
	return &Catalog{entries: entries}, nil
}

func fetch(path, url string) ([]byte, error) {
	resp, err := resty.New().R().Get(url)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch gift catalog: status %d", resp.StatusCode())
	}
	b := resp.Body()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return nil, err
	}
	return b, nil
}

func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Catalog) Len() int { return len(c.entries) }
