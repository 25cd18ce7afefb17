package store

import (
	"context"
	"encoding/json"
	"time"

	"indexcover/internal/indicator/models"
	platformredis "indexcover/internal/platform/redis"
	"indexcover/pkg/domain"
)

const cacheTTL = 5 * time.Minute

// Cached decorates a Store with a Redis read-through cache for Get. Upserts
// write through so readers never see a value older than the registry's.
// Cache failures degrade to the inner store; they are never surfaced.
type Cached struct {
	inner Store
	redis *platformredis.Client
}

func NewCached(inner Store, redis *platformredis.Client) *Cached {
	return &Cached{inner: inner, redis: redis}
}

func cacheKey(name domain.Indicator) string {
	return "indexcover:indicator:" + name.String()
}

func (s *Cached) Get(ctx context.Context, name domain.Indicator) (*models.Record, error) {
	// Cache miss, redis outage, and stale JSON all fall through to the
	// registry read below.
	if raw, err := s.redis.Get(ctx, cacheKey(name)).Result(); err == nil {
		var record models.Record
		if json.Unmarshal([]byte(raw), &record) == nil {
			return &record, nil
		}
	}

	record, err := s.inner.Get(ctx, name)
	if err != nil || record == nil {
		return record, err
	}

	if raw, err := json.Marshal(record); err == nil {
		_ = s.redis.Set(ctx, cacheKey(name), raw, cacheTTL).Err()
	}
	return record, nil
}

func (s *Cached) Upsert(ctx context.Context, record models.Record) error {
	if err := s.inner.Upsert(ctx, record); err != nil {
		return err
	}
	if raw, err := json.Marshal(&record); err == nil {
		_ = s.redis.Set(ctx, cacheKey(record.Name), raw, cacheTTL).Err()
	}
	return nil
}

func (s *Cached) List(ctx context.Context) ([]*models.Record, error) {
	return s.inner.List(ctx)
}
