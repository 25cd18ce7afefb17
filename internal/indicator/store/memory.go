package store

import (
	"context"
	"sort"
	"sync"

	"indexcover/internal/indicator/models"
	"indexcover/pkg/domain"
)

// Memory is the in-process indicator registry.
type Memory struct {
	mu      sync.RWMutex
	records map[domain.Indicator]models.Record
}

func NewMemory() *Memory {
	return &Memory{records: make(map[domain.Indicator]models.Record)}
}

func (s *Memory) Get(_ context.Context, name domain.Indicator) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[name]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *Memory) Upsert(_ context.Context, record models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.Name] = record
	return nil
}

func (s *Memory) List(_ context.Context) ([]*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.Record, 0, len(s.records))
	for _, record := range s.records {
		r := record
		out = append(out, &r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
