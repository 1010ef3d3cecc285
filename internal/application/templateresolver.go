package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ericfisherdev/tradeconfirm/internal/domain/port/driven"
	"github.com/ericfisherdev/tradeconfirm/internal/templates"
)

// ErrTemplateNotFound indicates a template has neither an override nor a bundled default.
var ErrTemplateNotFound = errors.New("template not found")

const defaultTemplateCacheSize = 64

type cachedTemplate struct {
	text     string
	override bool
}

// TemplateResolver resolves named message templates: a deployment override
// first, then the bundled default. Resolved texts are cached per name.
type TemplateResolver struct {
	store    driven.TemplateStore
	defaults func(name string) (string, error)
	logger   *slog.Logger
	capacity int

	mu           sync.Mutex
	cache        map[string]cachedTemplate
	order        []string
	skipOverride map[string]bool
}

// NewTemplateResolver creates a resolver backed by store. store may be nil,
// in which case only bundled defaults are used.
func NewTemplateResolver(store driven.TemplateStore, logger *slog.Logger) *TemplateResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TemplateResolver{
		store:        store,
		defaults:     templates.Default,
		logger:       logger,
		capacity:     defaultTemplateCacheSize,
		cache:        make(map[string]cachedTemplate),
		skipOverride: make(map[string]bool),
	}
}

// Render resolves name and substitutes vars. An override that references a
// variable the caller does not supply is abandoned for the bundled default
// until the name is invalidated.
func (r *TemplateResolver) Render(ctx context.Context, name string, vars map[string]string) (string, error) {
	t, err := r.resolve(ctx, name)
	if err != nil {
		return "", err
	}

	out, missing := templates.Render(t.text, vars)
	if len(missing) > 0 && t.override {
		r.logger.Warn("template override references undefined variables, using default",
			"template", name,
			"missing", missing,
		)
		r.mu.Lock()
		r.evictLocked(name)
		r.skipOverride[name] = true
		r.mu.Unlock()

		if t, err = r.resolve(ctx, name); err != nil {
			return "", err
		}
		out, missing = templates.Render(t.text, vars)
	}
	if len(missing) > 0 {
		r.logger.Warn("template references undefined variables", "template", name, "missing", missing)
	}

	return out, nil
}

// Text returns the raw template text for name and whether it came from an override.
func (r *TemplateResolver) Text(ctx context.Context, name string) (string, bool, error) {
	t, err := r.resolve(ctx, name)
	if err != nil {
		return "", false, err
	}
	return t.text, t.override, nil
}

// Invalidate drops the cached text for name and re-enables its override.
func (r *TemplateResolver) Invalidate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictLocked(name)
	delete(r.skipOverride, name)
}

// InvalidateAll clears every cached template.
func (r *TemplateResolver) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[string]cachedTemplate)
	r.order = nil
	r.skipOverride = make(map[string]bool)
}

func (r *TemplateResolver) resolve(ctx context.Context, name string) (cachedTemplate, error) {
	r.mu.Lock()
	if t, ok := r.cache[name]; ok {
		r.mu.Unlock()
		return t, nil
	}
	skip := r.skipOverride[name]
	r.mu.Unlock()

	cacheable := true
	if r.store != nil && !skip {
		text, found, err := r.store.GetOverride(ctx, name)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return cachedTemplate{}, ctx.Err()
			}
			r.logger.Warn("template override fetch failed, using default", "template", name, "error", err)
			cacheable = false
		case found:
			t := cachedTemplate{text: text, override: true}
			r.put(name, t)
			return t, nil
		}
	}

	text, err := r.defaults(name)
	if err != nil {
		if errors.Is(err, templates.ErrNoDefault) {
			return cachedTemplate{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, name)
		}
		return cachedTemplate{}, fmt.Errorf("load default template %q: %w", name, err)
	}

	t := cachedTemplate{text: text}
	if cacheable {
		r.put(name, t)
	}
	return t, nil
}

func (r *TemplateResolver) put(name string, t cachedTemplate) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cache[name]; !ok {
		for len(r.order) >= r.capacity {
			delete(r.cache, r.order[0])
			r.order = r.order[1:]
		}
		r.order = append(r.order, name)
	}
	r.cache[name] = t
}

func (r *TemplateResolver) evictLocked(name string) {
	if _, ok := r.cache[name]; !ok {
		return
	}
	delete(r.cache, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
