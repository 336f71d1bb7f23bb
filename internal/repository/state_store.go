package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"TickPilot/internal/domain/repository"
	"TickPilot/pkg/cache"
)

// CacheStateStore persists engine snapshots through pkg/cache. Values are
// JSON and every Save is a full overwrite.
type CacheStateStore struct {
	c   cache.Service
	ttl time.Duration
}

func NewCacheStateStore(c cache.Service, ttl time.Duration) *CacheStateStore {
	return &CacheStateStore{c: c, ttl: ttl}
}

// Load reports false when the key has never been written or has expired.
func (s *CacheStateStore) Load(ctx context.Context, key string, dest interface{}) (bool, error) {
	if err := s.c.Get(ctx, key, dest); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", key, err)
	}
	return true, nil
}

func (s *CacheStateStore) Save(ctx context.Context, key string, value interface{}) error {
	if err := s.c.Set(ctx, key, value, s.ttl); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

var _ repository.StateStore = (*CacheStateStore)(nil)
