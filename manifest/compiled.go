package manifest

import (
	"github.com/saiset-co/sai-resource/types"
)

// CompiledIndex is the derived lookup structure built once per distinct
// manifest content hash and shared by every module resolving to that hash.
// It must never be mutated after Compile returns.
type CompiledIndex struct {
	EntitiesByID   map[string]*types.Entity
	FieldsByEntity map[string]map[string]*types.Field
	ViewsByID      map[string]*types.View
}

// Compile builds the lookup tables for a manifest so consumers never rescan
// the manifest arrays per call.
func Compile(m *types.Manifest) *CompiledIndex {
	index := &CompiledIndex{
		EntitiesByID:   make(map[string]*types.Entity, len(m.Entities)),
		FieldsByEntity: make(map[string]map[string]*types.Field, len(m.Entities)),
		ViewsByID:      make(map[string]*types.View, len(m.Views)),
	}

	for _, entity := range m.Entities {
		if entity == nil || entity.ID == "" {
			continue
		}
		index.EntitiesByID[entity.ID] = entity

		fields := make(map[string]*types.Field, len(entity.Fields))
		for _, field := range entity.Fields {
			if field == nil || field.ID == "" {
				continue
			}
			fields[field.ID] = field
		}
		index.FieldsByEntity[entity.ID] = fields
	}

	for _, view := range m.Views {
		if view == nil || view.ID == "" {
			continue
		}
		index.ViewsByID[view.ID] = view
	}

	return index
}
