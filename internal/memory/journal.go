// Package memory keeps the append-only interaction journal used for
// diagnostics and long-term context snapshots.
package memory

import (
	"sync"
	"time"
)

// Event is one journal entry.
type Event struct {
	At     time.Time      `json:"at"`
	UserID string         `json:"user_id"`
	Kind   string         `json:"kind"`
	Skill  string         `json:"skill,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// Journal is a bounded append-only event log. Oldest events fall off when the
// bound is reached.
type Journal struct {
	mu     sync.RWMutex
	events []Event
	max    int
}

// NewJournal builds a journal holding at most max events (default 4096).
func NewJournal(max int) *Journal {
	if max <= 0 {
		max = 4096
	}
	return &Journal{max: max}
}

// Append records one event.
func (j *Journal) Append(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	if len(j.events) > j.max {
		j.events = j.events[len(j.events)-j.max:]
	}
}

// Recent returns up to limit events for userID, newest last.
func (j *Journal) Recent(userID string, limit int) []Event {
	if limit <= 0 {
		limit = 20
	}
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []Event
	for i := len(j.events) - 1; i >= 0 && len(out) < limit; i-- {
		if j.events[i].UserID == userID {
			out = append(out, j.events[i])
		}
	}
	for l, r := 0, len(out)-1; l < r; l, r = l+1, r-1 {
		out[l], out[r] = out[r], out[l]
	}
	return out
}

// Snapshot summarizes the journal: total events and per-kind counts.
type Snapshot struct {
	Total  int            `json:"total"`
	ByKind map[string]int `json:"by_kind"`
	Oldest time.Time      `json:"oldest,omitempty"`
	Newest time.Time      `json:"newest,omitempty"`
}

// Snapshot returns the journal's aggregate view.
func (j *Journal) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	s := Snapshot{Total: len(j.events), ByKind: make(map[string]int)}
	for _, ev := range j.events {
		s.ByKind[ev.Kind]++
	}
	if len(j.events) > 0 {
		s.Oldest = j.events[0].At
		s.Newest = j.events[len(j.events)-1].At
	}
	return s
}
