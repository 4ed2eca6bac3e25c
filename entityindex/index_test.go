package entityindex

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/logger"
	"github.com/saiset-co/sai-resource/manifest"
	"github.com/saiset-co/sai-resource/types"
)

type fakeManifestSource struct {
	mu      sync.Mutex
	calls   int
	records map[string]*manifest.Record
	errs    map[string]error
}

func newFakeManifestSource() *fakeManifestSource {
	return &fakeManifestSource{
		records: make(map[string]*manifest.Record),
		errs:    make(map[string]error),
	}
}

func (f *fakeManifestSource) GetManifest(_ context.Context, moduleID string) (*manifest.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if err, exists := f.errs[moduleID]; exists {
		return nil, err
	}
	if record, exists := f.records[moduleID]; exists {
		return record, nil
	}
	return nil, errors.New("unknown module " + moduleID)
}

func (f *fakeManifestSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeManifestSource) addManifest(moduleID string, m *types.Manifest) {
	f.records[moduleID] = &manifest.Record{
		ModuleID: moduleID,
		Manifest: m,
		Compiled: manifest.Compile(m),
	}
}

func newTestIndexCache(source ManifestSource) *Cache {
	return NewCache(logger.NewZapWrapper(zap.NewNop()), source)
}

func TestFingerprintSortedAndEnabledOnly(t *testing.T) {
	modules := []types.ModuleInfo{
		{ID: "ops", Enabled: true, CurrentHash: "h2"},
		{ID: "crm", Enabled: true, CurrentHash: "h1"},
		{ID: "off", Enabled: false, CurrentHash: "h3"},
	}

	assert.Equal(t, "crm:h1;ops:h2", Fingerprint(modules))

	reordered := []types.ModuleInfo{modules[1], modules[0]}
	assert.Equal(t, Fingerprint(modules), Fingerprint(reordered))
}

func TestLoadBuildsEntries(t *testing.T) {
	source := newFakeManifestSource()
	source.addManifest("crm", &types.Manifest{
		Name: "CRM",
		Entities: []*types.Entity{
			{ID: "customer", Label: "Customers"},
			{ID: "crm.contact", Name: "contact person"},
			{ID: "sales_order"},
		},
		Views: []*types.View{
			{ID: "v-list", Kind: "list", Entity: "customer"},
			{ID: "v-form", Kind: "form", EntityID: "crm.customer"},
			{ID: "c-list", Kind: "list", EntityIDAlt: "contact"},
		},
	})

	cache := newTestIndexCache(source)
	index := cache.Load(context.Background(), []types.ModuleInfo{
		{ID: "crm", Name: "crm-module", Enabled: true, CurrentHash: "h1"},
	})

	require.Len(t, index.ByID, 3)
	assert.Empty(t, index.Report.SkippedModules)

	customer := index.ByID["customer"]
	require.NotNil(t, customer)
	assert.Equal(t, "crm.customer", customer.EntityFullID)
	assert.Equal(t, "crm", customer.ModuleID)
	assert.Equal(t, "CRM", customer.ModuleName)
	assert.Equal(t, "Customers", customer.DisplayName)
	assert.Equal(t, "v-list", customer.ListViewID)
	assert.Equal(t, "v-form", customer.FormViewID)

	contact := index.ByID["contact"]
	require.NotNil(t, contact)
	assert.Equal(t, "crm.contact", contact.EntityFullID)
	assert.Equal(t, "contact person", contact.DisplayName)
	assert.Equal(t, "c-list", contact.ListViewID)
	assert.Empty(t, contact.FormViewID)

	order := index.ByID["sales_order"]
	require.NotNil(t, order)
	assert.Equal(t, "Sales Order", order.DisplayName)

	group := index.ByModule["crm"]
	require.NotNil(t, group)
	assert.Len(t, group.Entities, 3)
}

func TestLoadMemoizesByFingerprint(t *testing.T) {
	source := newFakeManifestSource()
	source.addManifest("crm", &types.Manifest{Entities: []*types.Entity{{ID: "customer"}}})

	cache := newTestIndexCache(source)
	modules := []types.ModuleInfo{{ID: "crm", Enabled: true, CurrentHash: "h1"}}
	ctx := context.Background()

	first := cache.Load(ctx, modules)
	second := cache.Load(ctx, modules)

	assert.Same(t, first, second)
	assert.Equal(t, 1, source.callCount())
}

func TestLoadRebuildsWhenHashChanges(t *testing.T) {
	source := newFakeManifestSource()
	source.addManifest("crm", &types.Manifest{Entities: []*types.Entity{{ID: "customer"}}})

	cache := newTestIndexCache(source)
	ctx := context.Background()

	first := cache.Load(ctx, []types.ModuleInfo{{ID: "crm", Enabled: true, CurrentHash: "h1"}})
	second := cache.Load(ctx, []types.ModuleInfo{{ID: "crm", Enabled: true, CurrentHash: "h2"}})

	assert.NotSame(t, first, second)
	assert.Equal(t, 2, source.callCount())
}

func TestLoadSkipsFailingModules(t *testing.T) {
	source := newFakeManifestSource()
	source.addManifest("crm", &types.Manifest{Entities: []*types.Entity{{ID: "customer"}}})
	source.errs["broken"] = errors.New("manifest fetch failed")

	cache := newTestIndexCache(source)
	index := cache.Load(context.Background(), []types.ModuleInfo{
		{ID: "crm", Enabled: true, CurrentHash: "h1"},
		{ID: "broken", Enabled: true, CurrentHash: "h9"},
	})

	assert.Len(t, index.ByID, 1)
	require.Len(t, index.Report.SkippedModules, 1)
	assert.Equal(t, "broken", index.Report.SkippedModules[0].ModuleID)
	assert.Contains(t, index.Report.SkippedModules[0].Reason, "manifest fetch failed")
}

func TestLoadIgnoresDisabledModules(t *testing.T) {
	source := newFakeManifestSource()
	source.addManifest("crm", &types.Manifest{Entities: []*types.Entity{{ID: "customer"}}})

	cache := newTestIndexCache(source)
	index := cache.Load(context.Background(), []types.ModuleInfo{
		{ID: "crm", Enabled: true, CurrentHash: "h1"},
		{ID: "dormant", Enabled: false, CurrentHash: "h2"},
	})

	assert.Len(t, index.ByModule, 1)
	assert.Equal(t, 1, source.callCount())
}

func TestInvalidateForcesRebuild(t *testing.T) {
	source := newFakeManifestSource()
	source.addManifest("crm", &types.Manifest{Entities: []*types.Entity{{ID: "customer"}}})

	cache := newTestIndexCache(source)
	modules := []types.ModuleInfo{{ID: "crm", Enabled: true, CurrentHash: "h1"}}
	ctx := context.Background()

	cache.Load(ctx, modules)
	cache.Invalidate()
	cache.Load(ctx, modules)

	assert.Equal(t, 2, source.callCount())
}

func TestViewMatchingAcceptsPrefixedReference(t *testing.T) {
	source := newFakeManifestSource()
	source.addManifest("crm", &types.Manifest{
		Entities: []*types.Entity{{ID: "customer"}},
		Views: []*types.View{
			{ID: "other-list", Kind: "list", Entity: "invoice"},
			{ID: "prefixed-list", Kind: "list", Entity: "crm.customer"},
		},
	})

	cache := newTestIndexCache(source)
	index := cache.Load(context.Background(), []types.ModuleInfo{
		{ID: "crm", Enabled: true, CurrentHash: "h1"},
	})

	entry := index.ByID["customer"]
	require.NotNil(t, entry)
	assert.Equal(t, "prefixed-list", entry.ListViewID)
}
