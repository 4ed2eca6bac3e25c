package types

import (
	"time"
)

// CacheStore is the storage backend behind the request cache. Implementations
// must apply the lazy expiry rule: a stored entry is only returned while
// now - CreatedAt < TTL.
type CacheStore interface {
	LifecycleManager
	Get(key string) (*CacheEntry, bool)
	Set(key string, value []byte, ttl time.Duration, tags []string) error
	Delete(key string) error
	InvalidateTags(tags ...string) error
	Clear() error
}

type CacheStoreCreator func(config interface{}) (CacheStore, error)

// CacheEntry is a single cached response. Tags carry the structured
// invalidation labels attached at store time; a mutation invalidates by tag
// set rather than by key substring.
type CacheEntry struct {
	Key       string        `json:"key"`
	Value     []byte        `json:"value"`
	TTL       time.Duration `json:"ttl"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Tags      []string      `json:"tags"`
}

func (e *CacheEntry) IsExpired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
