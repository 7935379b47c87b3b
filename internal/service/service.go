// Package service wires the pipeline: git sync, document processing,
// embedding, indexing, and context generation behind one facade used by the
// MCP and HTTP surfaces.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/docscout/docscout/internal/catalog"
	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/contextgen"
	"github.com/docscout/docscout/internal/docs"
	"github.com/docscout/docscout/internal/embed"
	"github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/internal/gitsync"
	"github.com/docscout/docscout/internal/index"
	"github.com/docscout/docscout/internal/plugin"
)

// Per-operation deadlines.
const (
	indexTimeout = 10 * time.Second
)

// Service owns the indexing pipeline and its stores.
type Service struct {
	cfg       *config.Manager
	dataDir   string
	logger    *slog.Logger
	lock      *flock.Flock
	embedder  embed.Embedder
	vectors   index.VectorIndex
	keywords  *index.KeywordIndex
	catalog   *catalog.Catalog
	registry  *plugin.Registry
	syncer    *gitsync.Syncer
	scheduler *gitsync.Scheduler
	generator *contextgen.Generator
}

// New builds the service from configuration: locks the data directory,
// opens the stores, selects the vector backend, and installs scheduled
// syncs for repositories that configure an interval.
func New(ctx context.Context, cfgMgr *config.Manager, logger *slog.Logger) (*Service, error) {
	cfg := cfgMgr.Snapshot()
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "create data directory")
	}

	// One process per data directory.
	lock := flock.New(filepath.Join(dataDir, ".lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "acquire data directory lock")
	}
	if !locked {
		return nil, errors.Newf(errors.KindFatal, "data directory %s is locked by another process", dataDir)
	}

	s := &Service{cfg: cfgMgr, dataDir: dataDir, logger: logger, lock: lock}

	fail := func(err error) (*Service, error) {
		s.Close()
		return nil, err
	}

	// Embedder and vector index share one dimension so writes never bounce.
	dims := cfg.VectorStore.Dimensions
	if dims <= 0 {
		dims = config.DefaultDimensions
	}
	s.embedder = embed.New(ctx, cfg.Embeddings, dims, logger)

	s.vectors, err = openVectorIndex(ctx, cfg.VectorStore, dims, dataDir)
	if err != nil {
		return fail(err)
	}
	s.keywords, err = index.NewKeywordIndex(filepath.Join(dataDir, "keyword.bleve"))
	if err != nil {
		return fail(err)
	}
	s.catalog, err = catalog.Open(filepath.Join(dataDir, "catalog.db"))
	if err != nil {
		return fail(err)
	}

	s.registry = plugin.NewRegistry(docs.NewProcessor(), logger)
	s.syncer = gitsync.NewSyncer(dataDir, config.DefaultSyncWorkers, logger)
	s.scheduler = gitsync.NewScheduler(func(ctx context.Context, name string) error {
		return s.SyncRepository(ctx, name)
	}, logger)

	s.generator = contextgen.NewGenerator(s.embedder, s.vectors, s.keywords, s.catalog, cfgMgr, logger)

	for _, rc := range cfg.Repositories {
		s.scheduler.Start(ctx, rc)
	}
	return s, nil
}

func openVectorIndex(ctx context.Context, vs config.VectorStore, dims int, dataDir string) (index.VectorIndex, error) {
	switch vs.Backend {
	case index.BackendQdrant:
		return index.NewQdrantIndex(ctx, index.QdrantOptions{
			URL:        vs.URL,
			Collection: vs.Collection,
			Dimensions: dims,
		})
	default:
		return index.NewLocalIndex(index.LocalOptions{
			Dimensions: dims,
			Path:       filepath.Join(dataDir, "vectors.gob"),
		})
	}
}

// Config returns the configuration manager.
func (s *Service) Config() *config.Manager { return s.cfg }

// Generator returns the context generator.
func (s *Service) Generator() *contextgen.Generator { return s.generator }

// Registry returns the plugin registry.
func (s *Service) Registry() *plugin.Registry { return s.registry }

// SyncRepository syncs one repository by name and indexes its changes.
func (s *Service) SyncRepository(ctx context.Context, name string) error {
	rc, err := s.cfg.Repository(name)
	if err != nil {
		return err
	}
	res, err := s.syncer.Sync(ctx, rc)
	if err != nil {
		return err
	}
	return s.applyChanges(ctx, res)
}

// SyncAll syncs every configured repository in parallel, bounded by the
// sync worker limit. Per-repository failures are returned together.
func (s *Service) SyncAll(ctx context.Context) map[string]error {
	return s.syncer.SyncAll(ctx, s.cfg.Repositories(), func(res *gitsync.Result) error {
		return s.applyChanges(ctx, res)
	})
}

// applyChanges runs the change set through the pipeline: removals cascade
// first, then added and modified files are processed, embedded, and
// indexed.
func (s *Service) applyChanges(ctx context.Context, res *gitsync.Result) error {
	for _, path := range res.Changes.Removed {
		if err := s.removeDocument(ctx, res.Repository, path); err != nil {
			return err
		}
	}

	for _, path := range append(append([]string{}, res.Changes.Added...), res.Changes.Modified...) {
		content, err := res.Client.FileContent(path)
		if err != nil {
			if errors.IsKind(err, errors.KindNotFound) {
				continue
			}
			return err
		}
		if docs.IsBinary(content) {
			continue
		}
		if err := s.indexFile(ctx, res.Repository, path, content); err != nil {
			if errors.IsKind(err, errors.KindValidation) || errors.IsKind(err, errors.KindSecurity) {
				s.logger.Warn("skipping file",
					slog.String("repository", res.Repository),
					slog.String("path", path),
					slog.String("error", err.Error()))
				continue
			}
			return err
		}
	}
	return nil
}

// indexFile processes one file into chunks, embeds them, and writes to the
// catalog and both indexes. Unchanged documents (same derived ID) short
// circuit before embedding.
func (s *Service) indexFile(ctx context.Context, repository, path string, content []byte) error {
	doc, chunks, err := s.registry.Process(path, content, repository)
	if err != nil {
		return err
	}

	// Same content hash means the same document and chunk IDs; skip.
	prior, priorErr := s.catalog.DocumentByPath(ctx, repository, path)
	if priorErr == nil && prior.ID == doc.ID {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := s.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return errors.Wrap(err, errors.KindBackend, "embed chunks")
	}
	for i, c := range chunks {
		c.Embedding = vectors[i]
	}

	// Indexes first, catalog last. The catalog row is what arms the
	// unchanged-document short circuit, so it must not exist until both
	// indexes hold the new chunks; a failed index write then leaves the
	// prior row in place and the next sync retries the whole file.
	idxCtx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()
	if priorErr == nil {
		if err := s.vectors.DeleteByDocument(idxCtx, prior.ID); err != nil {
			return err
		}
		if err := s.keywords.DeleteByDocument(idxCtx, prior.ID); err != nil {
			return err
		}
	}
	if err := s.vectors.Upsert(idxCtx, chunks); err != nil {
		return err
	}
	if err := s.keywords.Upsert(idxCtx, chunks); err != nil {
		return err
	}

	_, err = s.catalog.ReplaceDocument(ctx, doc, chunks)
	return err
}

// removeDocument cascades a file deletion through catalog and indexes.
func (s *Service) removeDocument(ctx context.Context, repository, path string) error {
	doc, err := s.catalog.DocumentByPath(ctx, repository, path)
	if err != nil {
		if errors.IsKind(err, errors.KindNotFound) {
			return nil
		}
		return err
	}
	if err := s.vectors.DeleteByDocument(ctx, doc.ID); err != nil {
		return err
	}
	if err := s.keywords.DeleteByDocument(ctx, doc.ID); err != nil {
		return err
	}
	return s.catalog.DeleteDocument(ctx, doc.ID)
}

// AddRepository registers and immediately syncs a new repository.
func (s *Service) AddRepository(ctx context.Context, rc config.Repository) error {
	if err := s.cfg.AddRepository(rc); err != nil {
		return err
	}
	s.scheduler.Start(ctx, rc)
	return s.SyncRepository(ctx, rc.Name)
}

// UpdateRepository replaces a repository's configuration and reschedules it.
func (s *Service) UpdateRepository(ctx context.Context, name string, rc config.Repository) error {
	if err := s.cfg.UpdateRepository(name, rc); err != nil {
		return err
	}
	updated, err := s.cfg.Repository(name)
	if err != nil {
		return err
	}
	s.scheduler.Start(ctx, updated)
	return nil
}

// DeleteRepository tears a repository down: schedule, clone, and every
// derived chunk.
func (s *Service) DeleteRepository(ctx context.Context, name string) error {
	if _, err := s.cfg.Repository(name); err != nil {
		return err
	}
	s.scheduler.Stop(name)
	if err := s.syncer.Delete(name); err != nil {
		return err
	}
	if err := s.vectors.DeleteByRepository(ctx, name); err != nil {
		return err
	}
	if err := s.keywords.DeleteByRepository(ctx, name); err != nil {
		return err
	}
	if err := s.catalog.DeleteRepository(ctx, name); err != nil {
		return err
	}
	return s.cfg.RemoveRepository(name)
}

// Close releases every resource in reverse dependency order.
func (s *Service) Close() {
	if s.scheduler != nil {
		s.scheduler.Close()
	}
	if s.registry != nil {
		if err := s.registry.Destroy(); err != nil {
			s.logger.Warn("plugin teardown failed", slog.String("error", err.Error()))
		}
	}
	if s.keywords != nil {
		_ = s.keywords.Close()
	}
	if s.vectors != nil {
		_ = s.vectors.Close()
	}
	if s.catalog != nil {
		_ = s.catalog.Close()
	}
	if s.embedder != nil {
		_ = s.embedder.Close()
	}
	if s.lock != nil {
		_ = s.lock.Unlock()
	}
}
