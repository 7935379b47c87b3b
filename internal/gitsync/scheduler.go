package gitsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/errors"
)

// SyncFunc runs one scheduled sync for the named repository.
type SyncFunc func(ctx context.Context, name string) error

// Scheduler runs periodic syncs per repository. Repositories with
// syncInterval 0 are never scheduled (on-demand only). A permanent auth
// failure halts that repository's schedule; transient failures do not.
type Scheduler struct {
	syncFn SyncFunc
	logger *slog.Logger

	mu    sync.Mutex
	tasks map[string]context.CancelFunc
	wg    sync.WaitGroup
}

// NewScheduler creates an empty scheduler.
func NewScheduler(syncFn SyncFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncFn: syncFn,
		logger: logger,
		tasks:  make(map[string]context.CancelFunc),
	}
}

// Start installs (or reinstalls) the periodic task for the repository.
// An interval of zero removes any existing task instead.
func (s *Scheduler) Start(ctx context.Context, rc config.Repository) {
	s.Stop(rc.Name)
	if rc.SyncIntervalMinutes <= 0 {
		return
	}
	interval := time.Duration(rc.SyncIntervalMinutes) * time.Minute

	taskCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.tasks[rc.Name] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(taskCtx, rc.Name, interval)
	s.logger.Info("scheduled sync installed",
		slog.String("repository", rc.Name),
		slog.Duration("interval", interval))
}

func (s *Scheduler) run(ctx context.Context, name string, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := s.syncFn(ctx, name)
		if err == nil {
			continue
		}
		if errors.IsKind(err, errors.KindAuth) {
			s.logger.Error("halting scheduled sync after auth failure",
				slog.String("repository", name),
				slog.String("error", err.Error()))
			s.Stop(name)
			return
		}
		s.logger.Warn("scheduled sync failed",
			slog.String("repository", name),
			slog.String("error", err.Error()))
	}
}

// Stop removes the repository's periodic task, if any.
func (s *Scheduler) Stop(name string) {
	s.mu.Lock()
	cancel, ok := s.tasks[name]
	if ok {
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

// Scheduled reports whether the repository has an installed task.
func (s *Scheduler) Scheduled(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tasks[name]
	return ok
}

// Close cancels all tasks and waits for them to exit.
func (s *Scheduler) Close() {
	s.mu.Lock()
	for name, cancel := range s.tasks {
		cancel()
		delete(s.tasks, name)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
