package flow

import (
	"sort"
	"sync"
	"time"
)

// Entry is a configured integration instance produced by a finished flow.
type Entry struct {
	EntryID   string         `json:"entry_id"`
	Domain    string         `json:"domain"`
	Title     string         `json:"title"`
	UniqueID  string         `json:"unique_id,omitempty"`
	Source    string         `json:"source"`
	Data      map[string]any `json:"data"`
	CreatedAt time.Time      `json:"created_at"`
}

// String returns a data value as a string, or "" when absent.
func (e Entry) String(key string) string {
	value, _ := e.Data[key].(string)
	return value
}

// Entries is the in-memory entry store. Nothing is persisted.
type Entries struct {
	mu    sync.RWMutex
	items map[string]Entry
}

func NewEntries() *Entries {
	return &Entries{items: make(map[string]Entry)}
}

func (s *Entries) Add(entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[entry.EntryID] = entry
}

func (s *Entries) Get(entryID string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.items[entryID]
	return entry, ok
}

func (s *Entries) Remove(entryID string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[entryID]
	if ok {
		delete(s.items, entryID)
	}
	return entry, ok
}

// List returns entries ordered by creation time. An empty domain lists all.
func (s *Entries) List(domain string) []Entry {
	s.mu.RLock()
	out := make([]Entry, 0, len(s.items))
	for _, entry := range s.items {
		if domain != "" && entry.Domain != domain {
			continue
		}
		out = append(out, entry)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].EntryID < out[j].EntryID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Entries) HasUniqueID(domain, uniqueID string) bool {
	if uniqueID == "" {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.items {
		if entry.Domain == domain && entry.UniqueID == uniqueID {
			return true
		}
	}
	return false
}
