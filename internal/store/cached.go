package store

import (
	"context"

	"github.com/ArowuTest/lottery-odds/internal/models"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// CachedStore puts a read-through cache in front of a RunStore. Only
// finished runs are cached; a running run changes until SaveRun.
type CachedStore struct {
	RunStore
	cache *ristretto.Cache[string, *models.SimulationRun]
}

// NewCachedStore caches up to maxRuns finished runs.
func NewCachedStore(inner RunStore, maxRuns int64) (*CachedStore, error) {
	if maxRuns <= 0 {
		maxRuns = 1
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, *models.SimulationRun]{
		NumCounters: maxRuns * 10,
		MaxCost:     maxRuns,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create run cache")
	}
	return &CachedStore{RunStore: inner, cache: cache}, nil
}

func (s *CachedStore) SaveRun(ctx context.Context, run *models.SimulationRun) error {
	s.cache.Del(run.ID.String())
	// Flush so a Set queued by an earlier GetRun cannot land after the Del.
	s.cache.Wait()
	return s.RunStore.SaveRun(ctx, run)
}

func (s *CachedStore) GetRun(ctx context.Context, id uuid.UUID) (*models.SimulationRun, error) {
	key := id.String()
	if v, ok := s.cache.Get(key); ok {
		return cloneRun(v), nil
	}
	run, err := s.RunStore.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != models.RunRunning {
		s.cache.Set(key, cloneRun(run), 1)
	}
	return run, nil
}

// Close releases the cache's background goroutines.
func (s *CachedStore) Close() {
	s.cache.Close()
}
