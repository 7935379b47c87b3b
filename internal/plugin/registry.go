// Package plugin provides the extension registry: per-extension document
// processors, per-strategy context rerankers, and named embedding providers.
package plugin

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/docscout/docscout/internal/contextgen"
	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/embed"
	"github.com/docscout/docscout/internal/errors"
)

// Plugin is the shared lifecycle contract. Init runs once at registration
// scope setup; Destroy at shutdown.
type Plugin interface {
	Name() string
	Init(config map[string]string) error
	Destroy() error
}

// Processor handles files of specific extensions ahead of the default
// document processor.
type Processor interface {
	Plugin
	// Extensions lists the file extensions this processor claims, with dot
	// (".adoc").
	Extensions() []string
	Process(path string, content []byte, repository string) (*docs.Document, []*docs.Chunk, error)
}

// Reranker combines the plugin lifecycle with the context reranker hook.
type Reranker interface {
	Plugin
	contextgen.Reranker
}

// EmbedderPlugin supplies a named embedding provider.
type EmbedderPlugin interface {
	Plugin
	Embedder() embed.Embedder
}

// Registry holds registered plugins. Registration is idempotent by name:
// re-registering a name replaces the prior entry.
type Registry struct {
	mu         sync.RWMutex
	processors map[string]Processor // by plugin name
	byExt      map[string]string    // extension -> plugin name
	rerankers  []Reranker           // registration order
	embedders  map[string]EmbedderPlugin

	defaultProcessor *docs.Processor
	logger           *slog.Logger
}

// NewRegistry creates a registry with the given fallback processor.
func NewRegistry(defaultProcessor *docs.Processor, logger *slog.Logger) *Registry {
	return &Registry{
		processors:       make(map[string]Processor),
		byExt:            make(map[string]string),
		embedders:        make(map[string]EmbedderPlugin),
		defaultProcessor: defaultProcessor,
		logger:           logger,
	}
}

// RegisterProcessor installs a processor plugin and claims its extensions.
func (r *Registry) RegisterProcessor(p Processor, cfg map[string]string) error {
	if err := p.Init(cfg); err != nil {
		return errors.Wrap(err, errors.KindFatal, "init processor plugin")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors[p.Name()] = p
	for _, ext := range p.Extensions() {
		r.byExt[strings.ToLower(ext)] = p.Name()
	}
	return nil
}

// RegisterReranker installs a reranker plugin. Re-registering a name
// replaces the prior entry in place, keeping its order.
func (r *Registry) RegisterReranker(rr Reranker, cfg map[string]string) error {
	if err := rr.Init(cfg); err != nil {
		return errors.Wrap(err, errors.KindFatal, "init reranker plugin")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.rerankers {
		if existing.Name() == rr.Name() {
			r.rerankers[i] = rr
			return nil
		}
	}
	r.rerankers = append(r.rerankers, rr)
	return nil
}

// RegisterEmbedder installs a named embedding provider plugin.
func (r *Registry) RegisterEmbedder(e EmbedderPlugin, cfg map[string]string) error {
	if err := e.Init(cfg); err != nil {
		return errors.Wrap(err, errors.KindFatal, "init embedder plugin")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedders[e.Name()] = e
	return nil
}

// Embedder returns the named provider plugin's embedder.
func (r *Registry) Embedder(name string) (embed.Embedder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.embedders[name]; ok {
		return e.Embedder(), true
	}
	return nil, false
}

// Rerankers returns the reranker hooks in registration order.
func (r *Registry) Rerankers() []contextgen.Reranker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]contextgen.Reranker, len(r.rerankers))
	for i, rr := range r.rerankers {
		out[i] = rr
	}
	return out
}

// Process runs the file through the plugin processor claiming its
// extension, if any; a plugin failure falls back to the default processor.
func (r *Registry) Process(path string, content []byte, repository string) (*docs.Document, []*docs.Chunk, error) {
	ext := strings.ToLower(filepath.Ext(path))

	r.mu.RLock()
	var proc Processor
	if name, ok := r.byExt[ext]; ok {
		proc = r.processors[name]
	}
	r.mu.RUnlock()

	if proc != nil {
		doc, chunks, err := proc.Process(path, content, repository)
		if err == nil {
			return doc, chunks, nil
		}
		r.logger.Warn("plugin processor failed, using default",
			slog.String("plugin", proc.Name()),
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return r.defaultProcessor.Process(path, content, repository)
}

// Destroy tears down every registered plugin. The first failure is
// returned; teardown continues regardless.
func (r *Registry) Destroy() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var first error
	keep := func(err error) {
		if err != nil && first == nil {
			first = err
		}
	}
	for _, p := range r.processors {
		keep(p.Destroy())
	}
	for _, rr := range r.rerankers {
		keep(rr.Destroy())
	}
	for _, e := range r.embedders {
		keep(e.Destroy())
	}
	r.processors = make(map[string]Processor)
	r.byExt = make(map[string]string)
	r.rerankers = nil
	r.embedders = make(map[string]EmbedderPlugin)
	return first
}
