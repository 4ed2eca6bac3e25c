package entityindex

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-resource/manifest"
	"github.com/saiset-co/sai-resource/types"
	"github.com/saiset-co/sai-resource/utils"
)

// Entry resolves a bare entity identifier to the module that owns it and its
// preferred list/form views. ListViewID and FormViewID may be empty; callers
// must treat "no view" as a legitimate state.
type Entry struct {
	EntityID     string `json:"entity_id"`
	EntityFullID string `json:"entity_full_id"`
	ModuleID     string `json:"module_id"`
	ModuleName   string `json:"module_name"`
	DisplayName  string `json:"display_name"`
	ListViewID   string `json:"list_view_id"`
	FormViewID   string `json:"form_view_id"`
}

type ModuleEntities struct {
	ModuleID   string   `json:"module_id"`
	ModuleName string   `json:"module_name"`
	Entities   []*Entry `json:"entities"`
}

// Index is the derived cross-module view built from every enabled module's
// manifest.
type Index struct {
	ByID        map[string]*Entry          `json:"by_id"`
	ByModule    map[string]*ModuleEntities `json:"by_module"`
	Fingerprint string                     `json:"fingerprint"`
	Report      BuildReport                `json:"report"`
}

// BuildReport records which modules were skipped during a build and why, so
// best-effort degradation stays observable instead of silent.
type BuildReport struct {
	SkippedModules []SkippedModule `json:"skipped_modules"`
}

type SkippedModule struct {
	ModuleID string `json:"module_id"`
	Reason   string `json:"reason"`
}

// ManifestSource is the slice of the manifest cache this component needs.
type ManifestSource interface {
	GetManifest(ctx context.Context, moduleID string) (*manifest.Record, error)
}

// Cache memoizes the index in a single slot keyed by the fingerprint of the
// enabled modules; an unchanged fingerprint returns the previous build with
// zero manifest fetches.
type Cache struct {
	logger types.Logger
	source ManifestSource

	mu   sync.Mutex
	last *Index
}

func NewCache(logger types.Logger, source ManifestSource) *Cache {
	return &Cache{
		logger: logger,
		source: source,
	}
}

// Load builds (or returns the memoized) entity index for the enabled subset
// of modules. Individual module failures never abort the build.
func (c *Cache) Load(ctx context.Context, modules []types.ModuleInfo) *Index {
	fingerprint := Fingerprint(modules)

	c.mu.Lock()
	if c.last != nil && c.last.Fingerprint == fingerprint {
		index := c.last
		c.mu.Unlock()
		return index
	}
	c.mu.Unlock()

	index := c.build(ctx, modules, fingerprint)

	c.mu.Lock()
	c.last = index
	c.mu.Unlock()

	return index
}

// Invalidate drops the memoized slot so the next Load rebuilds.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.last = nil
	c.mu.Unlock()
}

// Fingerprint summarizes enabled-module identity and content: identical
// fingerprints guarantee identical derived index content.
func Fingerprint(modules []types.ModuleInfo) string {
	parts := make([]string, 0, len(modules))
	for _, module := range modules {
		if !module.Enabled {
			continue
		}
		parts = append(parts, module.ID+":"+module.CurrentHash)
	}
	sort.Strings(parts)
	return strings.Join(parts, ";")
}

func (c *Cache) build(ctx context.Context, modules []types.ModuleInfo, fingerprint string) *Index {
	index := &Index{
		ByID:        make(map[string]*Entry),
		ByModule:    make(map[string]*ModuleEntities),
		Fingerprint: fingerprint,
	}

	for _, module := range modules {
		if !module.Enabled {
			continue
		}

		record, err := c.source.GetManifest(ctx, module.ID)
		if err != nil {
			index.Report.SkippedModules = append(index.Report.SkippedModules, SkippedModule{
				ModuleID: module.ID,
				Reason:   err.Error(),
			})
			c.logger.Warn("Skipping module in entity index",
				zap.String("module", module.ID),
				zap.Error(err))
			continue
		}

		c.indexModule(index, module, record)
	}

	c.logger.Debug("Entity index built",
		zap.Int("entities", len(index.ByID)),
		zap.Int("modules", len(index.ByModule)),
		zap.Int("skipped", len(index.Report.SkippedModules)))

	return index
}

func (c *Cache) indexModule(index *Index, module types.ModuleInfo, record *manifest.Record) {
	moduleName := record.Manifest.Name
	if moduleName == "" {
		moduleName = module.Name
	}

	group := &ModuleEntities{
		ModuleID:   module.ID,
		ModuleName: moduleName,
	}

	for _, entity := range record.Manifest.Entities {
		if entity == nil || entity.ID == "" {
			continue
		}

		bareID := bareEntityID(entity.ID)
		entry := &Entry{
			EntityID:     bareID,
			EntityFullID: fullEntityID(module.ID, entity.ID),
			ModuleID:     module.ID,
			ModuleName:   moduleName,
			DisplayName:  displayName(entity, bareID),
			ListViewID:   findView(record.Manifest.Views, "list", module.ID, bareID, entity.ID),
			FormViewID:   findView(record.Manifest.Views, "form", module.ID, bareID, entity.ID),
		}

		group.Entities = append(group.Entities, entry)
		index.ByID[bareID] = entry
	}

	index.ByModule[module.ID] = group
}

// bareEntityID strips a namespace prefix: "crm.customer" becomes "customer".
func bareEntityID(id string) string {
	if idx := strings.LastIndex(id, "."); idx >= 0 {
		return id[idx+1:]
	}
	return id
}

func fullEntityID(moduleID, entityID string) string {
	if strings.Contains(entityID, ".") {
		return entityID
	}
	return moduleID + "." + entityID
}

func displayName(entity *types.Entity, bareID string) string {
	if entity.Label != "" {
		return entity.Label
	}
	if entity.Name != "" {
		return entity.Name
	}
	return utils.TitleFromID(bareID)
}

// findView picks the first view of the given kind whose entity reference
// names the entity by bare id, full id, or module-prefixed bare id; the
// three forms are equivalent.
func findView(views []*types.View, kind, moduleID, bareID, declaredID string) string {
	for _, view := range views {
		if view == nil || !strings.EqualFold(view.Kind, kind) {
			continue
		}

		ref := view.EntityRef()
		if ref == "" {
			continue
		}

		if ref == bareID || ref == declaredID || ref == moduleID+"."+bareID {
			return view.ID
		}
	}
	return ""
}
