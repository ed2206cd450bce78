package web

import (
	"bytes"
	"fmt"
	"html/template"
	"log"
	"sync"

	"github.com/hpungsan/tessera/internal/content"
	"github.com/hpungsan/tessera/internal/hydrate"
)

// BlockRenderer renders one resolved block.
type BlockRenderer func(b content.Block) (template.HTML, error)

// Registry maps component type tags to block renderers.
type Registry struct {
	mu        sync.RWMutex
	renderers map[string]BlockRenderer
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{renderers: make(map[string]BlockRenderer)}
}

// DefaultRegistry registers a renderer for every known block type. Each one
// executes the "block-<type>" template from t.
func DefaultRegistry(t *template.Template) *Registry {
	r := NewRegistry()
	for _, blockType := range content.BlockTypes {
		r.Register(blockType, templateRenderer(t, "block-"+blockType))
	}
	return r
}

// Register binds a renderer to a type tag, replacing any existing one.
func (r *Registry) Register(blockType string, fn BlockRenderer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.renderers[blockType] = fn
}

// Render renders a hydrated record. Unknown types, unresolved content and
// renderer failures all render the placeholder.
func (r *Registry) Render(rec hydrate.Record) template.HTML {
	r.mu.RLock()
	fn, ok := r.renderers[rec.Type]
	r.mu.RUnlock()

	if !ok || rec.Content == nil {
		return placeholder(rec.Type)
	}
	out, err := fn(rec.Content)
	if err != nil {
		log.Printf("render %s component %s: %v", rec.Type, rec.ID, err)
		return placeholder(rec.Type)
	}
	return out
}

func placeholder(blockType string) template.HTML {
	msg := fmt.Sprintf("Component of type %s is not mapped or has no content.", blockType)
	return template.HTML(`<div class="block-placeholder">` + template.HTMLEscapeString(msg) + `</div>`)
}

func templateRenderer(t *template.Template, name string) BlockRenderer {
	return func(b content.Block) (template.HTML, error) {
		var buf bytes.Buffer
		if err := t.ExecuteTemplate(&buf, name, b); err != nil {
			return "", err
		}
		return template.HTML(buf.String()), nil
	}
}
