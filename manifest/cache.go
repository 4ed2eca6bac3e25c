package manifest

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/saiset-co/sai-resource/types"
	"github.com/saiset-co/sai-resource/utils"
)

// Resolver is the slice of the request cache the manifest layer needs.
type Resolver interface {
	Resolve(ctx context.Context, method, path string, body interface{}, opts *types.CallOptions) ([]byte, error)
}

// Record combines a fetched manifest with its compiled index. Records for
// moduleIDs sharing a content hash share the Manifest and Compiled pointers.
type Record struct {
	ModuleID    string
	ContentHash string
	Manifest    *types.Manifest
	Compiled    *CompiledIndex
}

// hashEntry is the content-addressed tier: valid forever for its hash, only
// removed by Invalidate garbage collection or a full Clear.
type hashEntry struct {
	manifest *types.Manifest
	compiled *CompiledIndex
}

type moduleEntry struct {
	hash    string
	record  *Record
	stamped time.Time
}

// Cache fetches and reuses module manifests with two validity tiers: a
// TTL-stamped moduleID tier and an immutable content-hash tier. Responses
// without a content hash are cached at the moduleID tier only.
type Cache struct {
	logger   types.Logger
	resolver Resolver
	ttl      time.Duration

	group singleflight.Group

	mu       sync.Mutex
	byModule map[string]*moduleEntry
	byHash   map[string]*hashEntry
}

type manifestResponse struct {
	ManifestHash string         `json:"manifest_hash"`
	Manifest     types.Manifest `json:"manifest"`
}

func NewCache(logger types.Logger, resolver Resolver, config *types.ManifestConfig) *Cache {
	ttl := 60 * time.Second
	if config != nil && config.TTL > 0 {
		ttl = config.TTL
	}

	return &Cache{
		logger:   logger,
		resolver: resolver,
		ttl:      ttl,
		byModule: make(map[string]*moduleEntry),
		byHash:   make(map[string]*hashEntry),
	}
}

// GetManifest returns the manifest record for moduleID, serving from the
// moduleID tier while fresh, reusing the hash tier without recompiling when
// possible, and fetching otherwise. Concurrent calls for one moduleID share
// a single fetch.
func (c *Cache) GetManifest(ctx context.Context, moduleID string) (*Record, error) {
	if moduleID == "" {
		return nil, types.Errorf(types.ErrManifestInvalid, "empty module id")
	}

	now := time.Now()

	c.mu.Lock()
	if entry, exists := c.byModule[moduleID]; exists && now.Sub(entry.stamped) < c.ttl {
		if entry.hash != "" {
			if he, known := c.byHash[entry.hash]; known {
				// Hash reuse: the content is immutable per hash, so only the
				// moduleID tier timestamp moves.
				entry.stamped = now
				record := entry.record
				if record == nil {
					record = &Record{
						ModuleID:    moduleID,
						ContentHash: entry.hash,
						Manifest:    he.manifest,
						Compiled:    he.compiled,
					}
					entry.record = record
				}
				c.mu.Unlock()
				return record, nil
			}
		} else if entry.record != nil {
			c.mu.Unlock()
			return entry.record, nil
		}
	}
	c.mu.Unlock()

	result, err, _ := c.group.Do(moduleID, func() (interface{}, error) {
		return c.fetch(ctx, moduleID)
	})
	if err != nil {
		return nil, err
	}

	return result.(*Record), nil
}

func (c *Cache) fetch(ctx context.Context, moduleID string) (*Record, error) {
	respBody, err := c.resolver.Resolve(ctx, "GET", "/modules/"+moduleID+"/manifest", nil, nil)
	if err != nil {
		return nil, err
	}

	var payload manifestResponse
	if err := utils.Unmarshal(respBody, &payload); err != nil {
		return nil, types.Errorf(types.ErrManifestInvalid, "module %s: %v", moduleID, err)
	}

	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if payload.ManifestHash == "" {
		record := &Record{
			ModuleID: moduleID,
			Manifest: &payload.Manifest,
			Compiled: Compile(&payload.Manifest),
		}
		c.byModule[moduleID] = &moduleEntry{record: record, stamped: now}

		c.logger.Debug("Manifest cached without content hash",
			zap.String("module", moduleID))
		return record, nil
	}

	he, known := c.byHash[payload.ManifestHash]
	if !known {
		he = &hashEntry{
			manifest: &payload.Manifest,
			compiled: Compile(&payload.Manifest),
		}
		c.byHash[payload.ManifestHash] = he

		c.logger.Debug("Compiled manifest index",
			zap.String("module", moduleID),
			zap.String("hash", payload.ManifestHash))
	}

	record := &Record{
		ModuleID:    moduleID,
		ContentHash: payload.ManifestHash,
		Manifest:    he.manifest,
		Compiled:    he.compiled,
	}
	c.byModule[moduleID] = &moduleEntry{
		hash:    payload.ManifestHash,
		record:  record,
		stamped: now,
	}

	return record, nil
}

// Invalidate drops the moduleID tier entry; the hash tier entry is garbage
// collected once no other moduleID references its hash.
func (c *Cache) Invalidate(moduleID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.byModule[moduleID]
	if !exists {
		return
	}
	delete(c.byModule, moduleID)

	if entry.hash == "" {
		return
	}

	for _, other := range c.byModule {
		if other.hash == entry.hash {
			return
		}
	}

	delete(c.byHash, entry.hash)
	c.logger.Debug("Unreferenced manifest hash collected",
		zap.String("module", moduleID),
		zap.String("hash", entry.hash))
}

// Clear removes both tiers unconditionally.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.byModule = make(map[string]*moduleEntry)
	c.byHash = make(map[string]*hashEntry)
}

// KnownHashes reports how many distinct manifest contents are currently
// compiled, for tests and diagnostics.
func (c *Cache) KnownHashes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.byHash)
}
