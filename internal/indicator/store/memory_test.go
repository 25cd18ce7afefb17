package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indexcover/internal/indicator/models"
	"indexcover/pkg/domain"
)

func record(name domain.Indicator, value uint64, lastUpdated time.Time) models.Record {
	return models.Record{Name: name, Value: value, LastUpdated: lastUpdated}
}

func TestMemoryRegistry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()

	t.Run("Get for unknown indicator returns nil", func(t *testing.T) {
		record, err := store.Get(ctx, "GDP")
		require.NoError(t, err)
		assert.Nil(t, record)
	})

	t.Run("Upsert creates on first update", func(t *testing.T) {
		now := time.Now().Truncate(time.Second)
		require.NoError(t, store.Upsert(ctx, record("CPI", 13900, now)))

		got, err := store.Get(ctx, "CPI")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, uint64(13900), got.Value)
		assert.Equal(t, now, got.LastUpdated)
	})

	t.Run("Upsert replaces the latest reading", func(t *testing.T) {
		later := time.Now().Add(time.Hour)
		require.NoError(t, store.Upsert(ctx, record("CPI", 15000, later)))

		got, err := store.Get(ctx, "CPI")
		require.NoError(t, err)
		assert.Equal(t, uint64(15000), got.Value)
	})

	t.Run("List returns records sorted by name", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, record("GDP", 42, time.Now())))

		records, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, "CPI", records[0].Name.String())
		assert.Equal(t, "GDP", records[1].Name.String())
	})
}
