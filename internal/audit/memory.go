package audit

import (
	"context"
	"sync"
)

// MemorySink is an in-memory append-only audit log.
// Useful for testing and single-node development.
type MemorySink struct {
	mu      sync.RWMutex
	entries []*Entry
	secret  string
}

// NewMemorySink creates a new in-memory audit sink
func NewMemorySink(secret string) *MemorySink {
	return &MemorySink{secret: secret}
}

// Append seals the entry into the chain and stores it
func (s *MemorySink) Append(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previousHash := ""
	if len(s.entries) > 0 {
		previousHash = s.entries[len(s.entries)-1].Hash
	}
	seal(entry, previousHash, s.secret)

	cp := *entry
	s.entries = append(s.entries, &cp)
	return nil
}

// Entries returns a snapshot of all entries in append order
func (s *MemorySink) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Entry, len(s.entries))
	for i, e := range s.entries {
		cp := *e
		result[i] = &cp
	}
	return result
}

// VerifyChain replays the log and confirms the hash chain is intact
func (s *MemorySink) VerifyChain(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return verifyEntries(s.entries, s.secret)
}
