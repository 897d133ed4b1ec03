package mergetemplate

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// TemplateExecutor executes a named template with data.
type TemplateExecutor interface {
	ExecuteTemplate(w io.Writer, name string, data any) error
}

// PongoExecutor executes pongo2 templates registered from strings or loaded
// from a template directory.
type PongoExecutor struct {
	set *pongo2.TemplateSet

	mu        sync.RWMutex
	templates map[string]*pongo2.Template
}

var _ TemplateExecutor = (*PongoExecutor)(nil)

// NewPongoExecutor creates an executor with the built-in page template
// registered. When dir is not empty, templates not registered by name are
// loaded from it.
func NewPongoExecutor(dir string) (*PongoExecutor, error) {
	e := &PongoExecutor{templates: map[string]*pongo2.Template{}}
	if dir != "" {
		loader, err := pongo2.NewLocalFileSystemLoader(dir)
		if err != nil {
			return nil, fmt.Errorf("page template dir: %w", err)
		}
		e.set = pongo2.NewSet("docmerge", loader)
	} else {
		e.set = pongo2.NewSet("docmerge", pongo2.MustNewLocalFileSystemLoader(""))
	}
	if err := e.Register(DefaultPageTemplate, defaultPage); err != nil {
		return nil, err
	}
	return e, nil
}

// Register compiles source under name, replacing any earlier template.
func (e *PongoExecutor) Register(name, source string) error {
	if e == nil {
		return errors.New("pongo executor is nil")
	}
	tpl, err := e.set.FromString(source)
	if err != nil {
		return fmt.Errorf("compile template %q: %w", name, err)
	}
	e.mu.Lock()
	e.templates[name] = tpl
	e.mu.Unlock()
	return nil
}

// ExecuteTemplate renders name into w. data must be a map or pongo2.Context.
func (e *PongoExecutor) ExecuteTemplate(w io.Writer, name string, data any) error {
	if e == nil {
		return errors.New("pongo executor is nil")
	}
	tpl, err := e.lookup(name)
	if err != nil {
		return err
	}
	return tpl.ExecuteWriter(toContext(data), w)
}

func (e *PongoExecutor) lookup(name string) (*pongo2.Template, error) {
	e.mu.RLock()
	tpl, ok := e.templates[name]
	e.mu.RUnlock()
	if ok {
		return tpl, nil
	}
	tpl, err := e.set.FromCache(name)
	if err != nil {
		return nil, fmt.Errorf("load template %q: %w", name, err)
	}
	return tpl, nil
}

func toContext(data any) pongo2.Context {
	switch v := data.(type) {
	case nil:
		return pongo2.Context{}
	case pongo2.Context:
		return v
	case map[string]any:
		return pongo2.Context(v)
	default:
		return pongo2.Context{"data": v}
	}
}
