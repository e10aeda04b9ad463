package core

import (
	"fmt"
	"sort"

	"crimestats/pkg/viewapi"
)

// Plugin contributes view templates.
type Plugin interface {
	Name() string
	Version() string
	Register(registry *PluginRegistry) error
}

// PluginRegistry accumulates plugin contributions during registration.
type PluginRegistry struct {
	views map[string]ViewTemplate
}

func NewPluginRegistry() *PluginRegistry {
	return &PluginRegistry{views: make(map[string]ViewTemplate)}
}

// RegisterViewTemplate validates and stores a view template.
func (r *PluginRegistry) RegisterViewTemplate(template ViewTemplate) error {
	if err := template.validate(); err != nil {
		return err
	}
	key := fmt.Sprintf("%s@%s", template.Key, template.Version)
	if _, exists := r.views[key]; exists {
		return fmt.Errorf("view template %s already registered", key)
	}
	r.views[key] = template
	return nil
}

// ViewTemplates returns the registered templates ordered by key and version.
func (r *PluginRegistry) ViewTemplates() []ViewTemplate {
	out := make([]ViewTemplate, 0, len(r.views))
	for _, template := range r.views {
		cp := template
		cp.Template = viewapi.CloneTemplate(template.Template)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key == out[j].Key {
			return out[i].Version < out[j].Version
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// PluginMetadata describes an installed plugin.
type PluginMetadata struct {
	Name    string                   `json:"name"`
	Version string                   `json:"version"`
	Views   []ViewTemplateDescriptor `json:"views"`
}
