package store

import (
	"context"
	"sync"

	"indexcover/internal/policy/models"
	"indexcover/pkg/domain"
)

// Memory is the in-process policy table. Records are stored in creation
// order so the slice index is the policy id; byIndicator is maintained
// incrementally at creation time.
type Memory struct {
	mu          sync.RWMutex
	policies    []*models.Policy
	byIndicator map[domain.Indicator][]domain.PolicyID
}

func NewMemory() *Memory {
	return &Memory{byIndicator: make(map[domain.Indicator][]domain.PolicyID)}
}

func (s *Memory) Create(_ context.Context, policy *models.Policy) (domain.PolicyID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := domain.PolicyID(len(s.policies))
	stored := *policy
	stored.ID = id
	s.policies = append(s.policies, &stored)
	s.byIndicator[stored.Indicator] = append(s.byIndicator[stored.Indicator], id)
	return id, nil
}

func (s *Memory) Get(_ context.Context, id domain.PolicyID) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if int(id) >= len(s.policies) {
		return nil, nil
	}
	out := *s.policies[id]
	return &out, nil
}

func (s *Memory) Update(_ context.Context, policy *models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(policy.ID) >= len(s.policies) {
		return nil
	}
	stored := *policy
	s.policies[policy.ID] = &stored
	return nil
}

func (s *Memory) List(_ context.Context) ([]*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Policy, 0, len(s.policies))
	for _, p := range s.policies {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}

func (s *Memory) ListActiveByIndicator(_ context.Context, indicator domain.Indicator) ([]*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Policy
	for _, id := range s.byIndicator[indicator] {
		if p := s.policies[id]; p.Status == models.StatusActive {
			copied := *p
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *Memory) NextID(_ context.Context) (domain.PolicyID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.PolicyID(len(s.policies)), nil
}
