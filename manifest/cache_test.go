package manifest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/logger"
	"github.com/saiset-co/sai-resource/types"
)

type fakeResolver struct {
	mu        sync.Mutex
	calls     map[string]int
	delay     time.Duration
	responses map[string]string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{
		calls:     make(map[string]int),
		responses: make(map[string]string),
	}
}

func (f *fakeResolver) Resolve(_ context.Context, _, path string, _ interface{}, _ *types.CallOptions) ([]byte, error) {
	f.mu.Lock()
	f.calls[path]++
	body, exists := f.responses[path]
	f.mu.Unlock()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if !exists {
		return nil, &types.APIError{Status: 404, Message: "module not found", Path: path}
	}
	return []byte(body), nil
}

func (f *fakeResolver) callsFor(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[path]
}

func newTestManifestCache(resolver Resolver, ttl time.Duration) *Cache {
	return NewCache(logger.NewZapWrapper(zap.NewNop()), resolver, &types.ManifestConfig{TTL: ttl})
}

const crmManifest = `{
	"manifest_hash": "h1",
	"manifest": {
		"module_id": "crm",
		"name": "CRM",
		"entities": [
			{"id": "customer", "label": "Customer", "fields": [{"id": "name", "type": "string"}]}
		],
		"views": [
			{"id": "customer-list", "kind": "list", "entity": "customer"}
		]
	}
}`

func TestGetManifestEmptyModuleID(t *testing.T) {
	cache := newTestManifestCache(newFakeResolver(), time.Minute)

	_, err := cache.GetManifest(context.Background(), "")
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrManifestInvalid))
}

func TestGetManifestServesFromModuleTier(t *testing.T) {
	resolver := newFakeResolver()
	resolver.responses["/modules/crm/manifest"] = crmManifest
	cache := newTestManifestCache(resolver, time.Minute)
	ctx := context.Background()

	first, err := cache.GetManifest(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, "crm", first.ModuleID)
	assert.Equal(t, "h1", first.ContentHash)

	second, err := cache.GetManifest(ctx, "crm")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, resolver.callsFor("/modules/crm/manifest"))
}

func TestGetManifestSharesCompiledIndexAcrossModules(t *testing.T) {
	resolver := newFakeResolver()
	resolver.responses["/modules/crm/manifest"] = crmManifest
	resolver.responses["/modules/ops/manifest"] = crmManifest
	cache := newTestManifestCache(resolver, time.Minute)
	ctx := context.Background()

	crm, err := cache.GetManifest(ctx, "crm")
	require.NoError(t, err)
	ops, err := cache.GetManifest(ctx, "ops")
	require.NoError(t, err)

	assert.Equal(t, "crm", crm.ModuleID)
	assert.Equal(t, "ops", ops.ModuleID)
	assert.Same(t, crm.Manifest, ops.Manifest)
	assert.Same(t, crm.Compiled, ops.Compiled)
	assert.Equal(t, 1, cache.KnownHashes())
}

func TestGetManifestReusesCompiledIndexAfterRefetch(t *testing.T) {
	resolver := newFakeResolver()
	resolver.responses["/modules/crm/manifest"] = crmManifest
	cache := newTestManifestCache(resolver, 20*time.Millisecond)
	ctx := context.Background()

	first, err := cache.GetManifest(ctx, "crm")
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	second, err := cache.GetManifest(ctx, "crm")
	require.NoError(t, err)

	assert.Equal(t, 2, resolver.callsFor("/modules/crm/manifest"))
	assert.Same(t, first.Compiled, second.Compiled)
	assert.Equal(t, 1, cache.KnownHashes())
}

func TestGetManifestWithoutHashUsesModuleTierOnly(t *testing.T) {
	resolver := newFakeResolver()
	resolver.responses["/modules/legacy/manifest"] = `{
		"manifest": {"module_id": "legacy", "entities": [{"id": "thing"}]}
	}`
	cache := newTestManifestCache(resolver, time.Minute)
	ctx := context.Background()

	record, err := cache.GetManifest(ctx, "legacy")
	require.NoError(t, err)
	assert.Empty(t, record.ContentHash)
	assert.NotNil(t, record.Compiled)
	assert.Equal(t, 0, cache.KnownHashes())

	again, err := cache.GetManifest(ctx, "legacy")
	require.NoError(t, err)
	assert.Same(t, record, again)
	assert.Equal(t, 1, resolver.callsFor("/modules/legacy/manifest"))
}

func TestGetManifestDeduplicatesConcurrentFetches(t *testing.T) {
	resolver := newFakeResolver()
	resolver.responses["/modules/crm/manifest"] = crmManifest
	resolver.delay = 50 * time.Millisecond
	cache := newTestManifestCache(resolver, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	records := make([]*Record, 6)
	errs := make([]error, 6)

	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			records[i], errs[i] = cache.GetManifest(ctx, "crm")
		}(i)
	}
	wg.Wait()

	for i := 0; i < 6; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, records[0], records[i])
	}
	assert.Equal(t, 1, resolver.callsFor("/modules/crm/manifest"))
}

func TestGetManifestPropagatesFetchError(t *testing.T) {
	cache := newTestManifestCache(newFakeResolver(), time.Minute)

	_, err := cache.GetManifest(context.Background(), "absent")
	require.Error(t, err)

	apiErr, ok := types.AsAPIError(err)
	require.True(t, ok)
	assert.Equal(t, 404, apiErr.Status)
}

func TestGetManifestInvalidPayload(t *testing.T) {
	resolver := newFakeResolver()
	resolver.responses["/modules/bad/manifest"] = `not json at all`
	cache := newTestManifestCache(resolver, time.Minute)

	_, err := cache.GetManifest(context.Background(), "bad")
	require.Error(t, err)
	assert.True(t, types.IsError(err, types.ErrManifestInvalid))
}

func TestInvalidateCollectsUnreferencedHash(t *testing.T) {
	resolver := newFakeResolver()
	resolver.responses["/modules/crm/manifest"] = crmManifest
	resolver.responses["/modules/ops/manifest"] = crmManifest
	cache := newTestManifestCache(resolver, time.Minute)
	ctx := context.Background()

	_, err := cache.GetManifest(ctx, "crm")
	require.NoError(t, err)
	_, err = cache.GetManifest(ctx, "ops")
	require.NoError(t, err)
	require.Equal(t, 1, cache.KnownHashes())

	cache.Invalidate("crm")
	assert.Equal(t, 1, cache.KnownHashes())

	cache.Invalidate("ops")
	assert.Equal(t, 0, cache.KnownHashes())

	_, err = cache.GetManifest(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.callsFor("/modules/crm/manifest"))
}

func TestClearDropsBothTiers(t *testing.T) {
	resolver := newFakeResolver()
	resolver.responses["/modules/crm/manifest"] = crmManifest
	cache := newTestManifestCache(resolver, time.Minute)
	ctx := context.Background()

	_, err := cache.GetManifest(ctx, "crm")
	require.NoError(t, err)

	cache.Clear()
	assert.Equal(t, 0, cache.KnownHashes())

	_, err = cache.GetManifest(ctx, "crm")
	require.NoError(t, err)
	assert.Equal(t, 2, resolver.callsFor("/modules/crm/manifest"))
}
