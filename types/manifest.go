package types

// Manifest is a module's declarative schema document: the entities it owns,
// their fields, and the views rendered over them.
type Manifest struct {
	ModuleID string    `json:"module_id"`
	Name     string    `json:"name"`
	Entities []*Entity `json:"entities"`
	Views    []*View   `json:"views"`
}

type Entity struct {
	ID     string   `json:"id"`
	Label  string   `json:"label"`
	Name   string   `json:"name"`
	Fields []*Field `json:"fields"`
}

type Field struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// View declares a rendering of an entity. Manifests produced by different
// builder versions name the entity reference field inconsistently, so all
// three spellings are accepted.
type View struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Name        string `json:"name"`
	Entity      string `json:"entity"`
	EntityID    string `json:"entity_id"`
	EntityIDAlt string `json:"entityId"`
}

// EntityRef returns the view's entity reference regardless of which field
// spelling the manifest used.
func (v *View) EntityRef() string {
	if v.Entity != "" {
		return v.Entity
	}
	if v.EntityID != "" {
		return v.EntityID
	}
	return v.EntityIDAlt
}
