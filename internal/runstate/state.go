// Package runstate persists one tenant's engine run: the running flag,
// live balances, cycle counter, log ring and purchase ledger. Every
// mutation happens inside one mutex hold and is written back to disk
// before the lock is released, so the file always reflects the last
// applied mutation.
package runstate

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gift_sniper/internal/model"
)

// maxRecentLogs bounds the persisted log ring; older lines fall off.
const maxRecentLogs = 200

// Document is the on-disk shape of a run. Balances and cycle are pointers
// so "never fetched" stays distinct from zero.
type Document struct {
	Running           bool             `json:"running"`
	BalanceStars      *int64           `json:"balanceStars"`
	BalanceTon        *float64         `json:"balanceTon"`
	Cycle             *int             `json:"cycle"`
	RecentLogs        []string         `json:"recentLogs"`
	PurchasedGifts    []model.Purchase `json:"purchasedGifts"`
	OriginalStartTime *int64           `json:"originalStartTime,omitempty"`
}

type State struct {
	mu   sync.Mutex
	path string
	doc  Document

	// startTime is recomputed on load so uptime survives a process
	// restart; it is never persisted directly.
	startTime time.Time
}

// Open loads the tenant's run document if one exists. A document that says
// running with a recorded first-start anchor keeps its uptime: the clock
// restarts from the original anchor, not from process boot.
func Open(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	s := &State{path: path}

	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(b, &s.doc); err != nil {
		return nil, err
	}
	if s.doc.Running && s.doc.OriginalStartTime != nil {
		s.startTime = time.Unix(*s.doc.OriginalStartTime, 0)
	}
	return s, nil
}

// Mutate applies fn to the document under the state lock and persists the
// result. fn must not block; network calls never belong inside it.
func (s *State) Mutate(fn func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.doc)
	return s.persistLocked()
}

// SetRunning flips the running flag and maintains the start-time anchors:
// a fresh start records the first-start anchor once, a stop clears both.
func (s *State) SetRunning(v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v == s.doc.Running {
		return nil
	}
	s.doc.Running = v
	now := time.Now()
	if v {
		if s.doc.OriginalStartTime == nil {
			anchor := now.Unix()
			s.doc.OriginalStartTime = &anchor
		}
		s.startTime = now
	} else {
		s.startTime = time.Time{}
		s.doc.OriginalStartTime = nil
	}
	return s.persistLocked()
}

func (s *State) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Running
}

func (s *State) AddLog(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry := "[" + time.Now().Format("2006-01-02 15:04:05") + "] " + message
	s.doc.RecentLogs = append(s.doc.RecentLogs, entry)
	if n := len(s.doc.RecentLogs); n > maxRecentLogs {
		s.doc.RecentLogs = s.doc.RecentLogs[n-maxRecentLogs:]
	}
	return s.persistLocked()
}

// RecordPurchase appends to the ledger and decrements the paid currency in
// one transaction. Balances never go negative: insufficiency is checked by
// the evaluator before any purchase is attempted.
func (s *State) RecordPurchase(recipient, link, currency string, price float64) error {
	return s.Mutate(func(doc *Document) {
		doc.PurchasedGifts = append(doc.PurchasedGifts, model.Purchase{
			Timestamp: time.Now().Format("2006-01-02 15:04:05"),
			Recipient: recipient,
			GiftLink:  link,
			Price:     price,
			Currency:  currency,
		})
		switch currency {
		case "ton":
			if doc.BalanceTon != nil {
				v := *doc.BalanceTon - price
				doc.BalanceTon = &v
			}
		case "stars":
			if doc.BalanceStars != nil {
				v := *doc.BalanceStars - int64(price)
				doc.BalanceStars = &v
			}
		}
	})
}

// Snapshot returns a deep copy of the document plus the effective start
// time; zero start time means not running.
func (s *State) Snapshot() (Document, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.doc
	out.RecentLogs = append([]string(nil), s.doc.RecentLogs...)
	out.PurchasedGifts = append([]model.Purchase(nil), s.doc.PurchasedGifts...)
	if s.doc.BalanceStars != nil {
		v := *s.doc.BalanceStars
		out.BalanceStars = &v
	}
	if s.doc.BalanceTon != nil {
		v := *s.doc.BalanceTon
		out.BalanceTon = &v
	}
	if s.doc.Cycle != nil {
		v := *s.doc.Cycle
		out.Cycle = &v
	}
	if s.doc.OriginalStartTime != nil {
		v := *s.doc.OriginalStartTime
		out.OriginalStartTime = &v
	}
	return out, s.startTime
}

func (s *State) persistLocked() error {
	b, err := json.MarshalIndent(s.doc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, b, 0o644)
}
