package ownership

import (
	"context"
	"sort"
	"sync"

	"indexcover/pkg/domain"
)

type holdingKey struct {
	policyID domain.PolicyID
	holder   domain.AccountID
}

// Memory is the in-process share ledger.
type Memory struct {
	mu       sync.RWMutex
	holdings map[holdingKey]uint64
}

func NewMemory() *Memory {
	return &Memory{holdings: make(map[holdingKey]uint64)}
}

func (s *Memory) Balance(_ context.Context, policyID domain.PolicyID, holder domain.AccountID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.holdings[holdingKey{policyID, holder}], nil
}

func (s *Memory) Credit(_ context.Context, policyID domain.PolicyID, holder domain.AccountID, shares uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.holdings[holdingKey{policyID, holder}] += shares
	return nil
}

func (s *Memory) Clear(_ context.Context, policyID domain.PolicyID, holder domain.AccountID) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := holdingKey{policyID, holder}
	shares := s.holdings[key]
	delete(s.holdings, key)
	return shares, nil
}

func (s *Memory) Outstanding(_ context.Context, policyID domain.PolicyID) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total uint64
	for key, shares := range s.holdings {
		if key.policyID == policyID {
			total += shares
		}
	}
	return total, nil
}

func (s *Memory) ByHolder(_ context.Context, holder domain.AccountID) ([]Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Position
	for key, shares := range s.holdings {
		if key.holder == holder && shares > 0 {
			out = append(out, Position{PolicyID: key.policyID, Shares: shares})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PolicyID < out[j].PolicyID })
	return out, nil
}
