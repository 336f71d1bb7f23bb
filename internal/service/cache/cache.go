package cache

import "time"

// Store is a process-local key/value cache with per-entry TTL.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, v any, ttl time.Duration)
}
