package rolechange

import (
	"context"
	"sync"
)

// MemoryRequestStore is an in-memory RequestStore for tests and development
type MemoryRequestStore struct {
	mu       sync.Mutex
	requests map[string]*Request
}

func NewMemoryRequestStore() *MemoryRequestStore {
	return &MemoryRequestStore{requests: make(map[string]*Request)}
}

func (s *MemoryRequestStore) Create(ctx context.Context, req *Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *req
	s.requests[req.ID] = &cp
	return nil
}

func (s *MemoryRequestStore) Get(ctx context.Context, id string) (*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	cp := *req
	return &cp, nil
}

func (s *MemoryRequestStore) Transition(ctx context.Context, id string, decision Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	req, ok := s.requests[id]
	if !ok {
		return ErrRequestNotFound
	}
	if req.Status != StatusPending {
		return ErrAlreadyProcessed
	}
	req.Status = decision.Status
	req.DecidedBy = decision.DecidedBy
	req.DecidedAt = decision.DecidedAt
	req.DecisionReason = decision.Reason
	return nil
}

func (s *MemoryRequestStore) ListPending(ctx context.Context) ([]*Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var pending []*Request
	for _, req := range s.requests {
		if req.Status == StatusPending {
			cp := *req
			pending = append(pending, &cp)
		}
	}
	return pending, nil
}
