package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/types"
	"github.com/saiset-co/sai-resource/utils"
)

type MemoryState int32

const (
	MemoryStateStopped MemoryState = iota
	MemoryStateStarting
	MemoryStateRunning
	MemoryStateStopping
)

type MemoryConfig struct {
	MaxEntries      int    `json:"max_entries"`
	CleanupInterval string `json:"cleanup_interval"`
}

// MemoryCache is the default CacheStore: a mutex-guarded entry table with
// lazy expiry at lookup and a tag index for structured invalidation. The
// optional cleanup routine only reclaims memory; correctness never depends
// on it because Get applies the expiry check itself.
type MemoryCache struct {
	parentCtx context.Context
	config    *MemoryConfig
	logger    types.Logger
	data      map[string]*types.CacheEntry
	tagIndex  map[string]map[string]struct{}
	mu        sync.RWMutex
	state     atomic.Value

	// Rebuilt on every Start so the store survives Stop/Start cycles.
	cancel      context.CancelFunc
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

func NewMemoryCache(ctx context.Context, logger types.Logger, config *types.CacheConfig) (types.CacheStore, error) {
	var memConfig = &MemoryConfig{
		MaxEntries:      10000,
		CleanupInterval: "5m",
	}

	if config != nil && config.Config != nil {
		err := utils.UnmarshalConfig(config.Config, memConfig)
		if err != nil {
			return nil, types.WrapError(err, "failed to unmarshal memory cache config")
		}
	}

	cache := &MemoryCache{
		parentCtx: ctx,
		config:    memConfig,
		logger:    logger,
		data:      make(map[string]*types.CacheEntry),
		tagIndex:  make(map[string]map[string]struct{}),
	}

	cache.state.Store(MemoryStateStopped)

	return cache, nil
}

func (m *MemoryCache) Get(key string) (*types.CacheEntry, bool) {
	now := time.Now()

	m.mu.RLock()
	entry, exists := m.data[key]
	m.mu.RUnlock()

	if !exists {
		return nil, false
	}

	if entry.IsExpired(now) {
		m.mu.Lock()
		if entry, exists = m.data[key]; exists && entry.IsExpired(now) {
			m.removeEntryUnsafe(key, entry)
		}
		m.mu.Unlock()
		return nil, false
	}

	return entry, true
}

func (m *MemoryCache) Set(key string, value []byte, ttl time.Duration, tags []string) error {
	if key == "" {
		return types.ErrCacheKeyEmpty
	}

	now := time.Now()
	entry := &types.CacheEntry{
		Key:       key,
		Value:     value,
		TTL:       ttl,
		CreatedAt: now,
		Tags:      tags,
	}
	if ttl > 0 {
		entry.ExpiresAt = now.Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.config.MaxEntries > 0 {
		if _, exists := m.data[key]; !exists && len(m.data) >= m.config.MaxEntries {
			m.evictOneUnsafe()
		}
	}

	if oldEntry, exists := m.data[key]; exists {
		m.unregisterTagsUnsafe(key, oldEntry.Tags)
	}

	m.data[key] = entry
	m.registerTagsUnsafe(key, tags)

	return nil
}

func (m *MemoryCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, exists := m.data[key]; exists {
		m.removeEntryUnsafe(key, entry)
	}
	return nil
}

func (m *MemoryCache) InvalidateTags(tags ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for _, tag := range tags {
		for key := range m.tagIndex[tag] {
			if entry, exists := m.data[key]; exists {
				m.removeEntryUnsafe(key, entry)
				removed++
			}
		}
		delete(m.tagIndex, tag)
	}

	if removed > 0 {
		m.logger.Debug("Cache entries invalidated by tag",
			zap.Strings("tags", tags),
			zap.Int("removed", removed))
	}

	return nil
}

func (m *MemoryCache) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data = make(map[string]*types.CacheEntry)
	m.tagIndex = make(map[string]map[string]struct{})
	return nil
}

func (m *MemoryCache) Start() error {
	if !m.state.CompareAndSwap(MemoryStateStopped, MemoryStateStarting) {
		return types.ErrServiceAlreadyRunning
	}

	defer m.state.CompareAndSwap(MemoryStateStarting, MemoryStateRunning)

	runCtx, cancel := context.WithCancel(m.parentCtx)
	m.cancel = cancel
	m.stopCleanup = make(chan struct{})
	m.cleanupDone = make(chan struct{})

	if m.config.CleanupInterval != "" {
		go m.startCleanupRoutine(runCtx, m.stopCleanup, m.cleanupDone)
	} else {
		close(m.cleanupDone)
	}

	return nil
}

func (m *MemoryCache) Stop() error {
	if !m.state.CompareAndSwap(MemoryStateRunning, MemoryStateStopping) {
		return types.ErrServiceNotRunning
	}

	defer m.state.Store(MemoryStateStopped)

	m.cancel()
	close(m.stopCleanup)

	select {
	case <-m.cleanupDone:
	case <-time.After(5 * time.Second):
		m.logger.Warn("Cleanup routine stop timeout")
	}

	return m.Clear()
}

func (m *MemoryCache) IsRunning() bool {
	return m.state.Load().(MemoryState) == MemoryStateRunning
}

func (m *MemoryCache) startCleanupRoutine(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	cleanupInterval, err := time.ParseDuration(m.config.CleanupInterval)
	if err != nil {
		m.logger.Error("Invalid cleanup interval, using default 5m",
			zap.String("interval", m.config.CleanupInterval),
			zap.Error(err))
		cleanupInterval = 5 * time.Minute
	}

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.cleanup()
		}
	}
}

func (m *MemoryCache) cleanup() {
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	expired := 0
	for key, entry := range m.data {
		if entry.IsExpired(now) {
			m.removeEntryUnsafe(key, entry)
			expired++
		}
	}

	if expired > 0 {
		m.logger.Debug("Cleanup completed", zap.Int("expired_entries", expired))
	}
}

func (m *MemoryCache) evictOneUnsafe() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range m.data {
		if oldestKey == "" || entry.CreatedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.CreatedAt
		}
	}

	if oldestKey != "" {
		m.removeEntryUnsafe(oldestKey, m.data[oldestKey])
	}
}

func (m *MemoryCache) removeEntryUnsafe(key string, entry *types.CacheEntry) {
	m.unregisterTagsUnsafe(key, entry.Tags)
	delete(m.data, key)
}

func (m *MemoryCache) registerTagsUnsafe(key string, tags []string) {
	for _, tag := range tags {
		keys := m.tagIndex[tag]
		if keys == nil {
			keys = make(map[string]struct{})
			m.tagIndex[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

func (m *MemoryCache) unregisterTagsUnsafe(key string, tags []string) {
	for _, tag := range tags {
		if keys, exists := m.tagIndex[tag]; exists {
			delete(keys, key)
			if len(keys) == 0 {
				delete(m.tagIndex, tag)
			}
		}
	}
}
