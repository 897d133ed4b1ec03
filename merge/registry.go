package merge

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TemplateEntry describes a predefined template.
type TemplateEntry struct {
	ID          string            `mapstructure:"id" json:"id"`
	Names       map[string]string `mapstructure:"names" json:"names"`
	Description string            `mapstructure:"description" json:"description"`
	Path        string            `mapstructure:"path" json:"path"`
}

// DisplayName returns the entry name for locale, falling back to the base
// language, then English, then the ID.
func (e TemplateEntry) DisplayName(locale string) string {
	locale = strings.ToLower(strings.TrimSpace(locale))
	if name := e.Names[locale]; name != "" {
		return name
	}
	if base, _, ok := strings.Cut(locale, "-"); ok {
		if name := e.Names[base]; name != "" {
			return name
		}
	}
	if name := e.Names["en"]; name != "" {
		return name
	}
	return e.ID
}

// TemplateRegistry stores predefined templates keyed by ID.
type TemplateRegistry struct {
	mu      sync.RWMutex
	entries map[string]TemplateEntry
}

// NewTemplateRegistry creates an empty registry.
func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{entries: make(map[string]TemplateEntry)}
}

// Register adds a template entry.
func (r *TemplateRegistry) Register(entry TemplateEntry) error {
	if r == nil {
		return NewError(KindInternal, "template registry is nil", nil)
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		return NewError(KindValidation, "template id is required", nil)
	}
	if strings.TrimSpace(entry.Path) == "" {
		return NewError(KindValidation, fmt.Sprintf("template %q path is required", id), nil)
	}
	entry.ID = id

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[id]; exists {
		return NewError(KindValidation, fmt.Sprintf("template %q already registered", id), nil)
	}
	r.entries[id] = entry
	return nil
}

// Resolve returns the entry for id.
func (r *TemplateRegistry) Resolve(id string) (TemplateEntry, error) {
	if r == nil {
		return TemplateEntry{}, NewError(KindInternal, "template registry is nil", nil)
	}
	r.mu.RLock()
	entry, ok := r.entries[strings.TrimSpace(id)]
	r.mu.RUnlock()
	if !ok {
		return TemplateEntry{}, NewError(KindNotFound, fmt.Sprintf("template %q not found", id), nil)
	}
	return entry, nil
}

// List returns entries sorted by ID.
func (r *TemplateRegistry) List() []TemplateEntry {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]TemplateEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
