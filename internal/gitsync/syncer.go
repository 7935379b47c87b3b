package gitsync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/errors"
)

// Sync limits.
const (
	DefaultConcurrency = 4
	SyncTimeout        = 120 * time.Second
)

// RepoState is the lifecycle state of a repository's sync.
type RepoState string

const (
	StateIdle    RepoState = "idle"
	StateSyncing RepoState = "syncing"
	StateReady   RepoState = "ready"
	StateError   RepoState = "error"
)

// Status is the visible sync status of one repository.
type Status struct {
	Repository string    `json:"repository"`
	State      RepoState `json:"state"`
	HeadCommit string    `json:"headCommit,omitempty"`
	LastSync   time.Time `json:"lastSync,omitempty"`
	LastError  string    `json:"lastError,omitempty"`
}

// Result is the outcome of one sync: the change set plus the client holding
// the updated tree, for reading file contents.
type Result struct {
	Repository string
	Changes    *ChangeSet
	Head       string
	Client     *Client
}

// Syncer coordinates repository syncs: one in flight per repository, at
// most Concurrency across repositories, with retry on transient failures.
type Syncer struct {
	dataDir string
	sem     *semaphore.Weighted
	logger  *slog.Logger

	mu        sync.Mutex
	repoLocks map[string]*sync.Mutex
	statuses  map[string]*Status
	clients   map[string]*Client
}

// NewSyncer creates a syncer storing clones under dataDir/repos.
func NewSyncer(dataDir string, concurrency int, logger *slog.Logger) *Syncer {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Syncer{
		dataDir:   dataDir,
		sem:       semaphore.NewWeighted(int64(concurrency)),
		logger:    logger,
		repoLocks: make(map[string]*sync.Mutex),
		statuses:  make(map[string]*Status),
		clients:   make(map[string]*Client),
	}
}

func (s *Syncer) repoLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.repoLocks[name]; ok {
		return l
	}
	l := &sync.Mutex{}
	s.repoLocks[name] = l
	return l
}

func (s *Syncer) client(rc config.Repository) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[rc.Name]; ok {
		return c, nil
	}
	c, err := NewClient(s.dataDir, rc)
	if err != nil {
		return nil, err
	}
	s.clients[rc.Name] = c
	return c, nil
}

func (s *Syncer) setStatus(name string, update func(*Status)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[name]
	if !ok {
		st = &Status{Repository: name, State: StateIdle}
		s.statuses[name] = st
	}
	update(st)
}

// Status returns the sync status of one repository.
func (s *Syncer) Status(name string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.statuses[name]; ok {
		return *st, true
	}
	return Status{}, false
}

// Statuses returns a snapshot of all known repository statuses.
func (s *Syncer) Statuses() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, 0, len(s.statuses))
	for _, st := range s.statuses {
		out = append(out, *st)
	}
	return out
}

// Sync updates one repository and returns its change set. Concurrent calls
// for the same repository serialize; different repositories run in parallel
// up to the global bound.
func (s *Syncer) Sync(ctx context.Context, rc config.Repository) (*Result, error) {
	lock := s.repoLock(rc.Name)
	lock.Lock()
	defer lock.Unlock()

	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer s.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, SyncTimeout)
	defer cancel()

	s.setStatus(rc.Name, func(st *Status) { st.State = StateSyncing })

	client, err := s.client(rc)
	if err != nil {
		s.recordFailure(rc.Name, err)
		return nil, err
	}

	var oldHead, newHead string
	err = errors.Retry(ctx, errors.DefaultRetryConfig(), func() error {
		var uerr error
		oldHead, newHead, uerr = client.Update()
		return uerr
	})
	if err != nil {
		s.recordFailure(rc.Name, err)
		return nil, err
	}

	changes, err := client.Diff(oldHead, newHead)
	if err != nil {
		s.recordFailure(rc.Name, err)
		return nil, err
	}

	matcher, err := NewPatternMatcher(rc.Paths, rc.Exclude)
	if err != nil {
		s.recordFailure(rc.Name, err)
		return nil, err
	}
	changes = filterChanges(changes, matcher)

	s.setStatus(rc.Name, func(st *Status) {
		st.State = StateReady
		st.HeadCommit = newHead
		st.LastSync = time.Now().UTC()
		st.LastError = ""
	})
	s.logger.Info("repository synced",
		slog.String("repository", rc.Name),
		slog.String("head", newHead),
		slog.Int("added", len(changes.Added)),
		slog.Int("modified", len(changes.Modified)),
		slog.Int("removed", len(changes.Removed)))

	return &Result{Repository: rc.Name, Changes: changes, Head: newHead, Client: client}, nil
}

func (s *Syncer) recordFailure(name string, err error) {
	s.setStatus(name, func(st *Status) {
		st.State = StateError
		st.LastError = err.Error()
		st.LastSync = time.Now().UTC()
	})
	s.logger.Error("repository sync failed",
		slog.String("repository", name),
		slog.String("error", err.Error()))
}

// SyncAll syncs every repository, bounded by the global concurrency limit.
// Failures are collected per repository; one failure does not stop others.
func (s *Syncer) SyncAll(ctx context.Context, repos []config.Repository, handle func(*Result) error) map[string]error {
	var wg sync.WaitGroup
	var mu sync.Mutex
	failures := make(map[string]error)

	for _, rc := range repos {
		wg.Add(1)
		go func(rc config.Repository) {
			defer wg.Done()
			res, err := s.Sync(ctx, rc)
			if err == nil && handle != nil {
				err = handle(res)
			}
			if err != nil {
				mu.Lock()
				failures[rc.Name] = err
				mu.Unlock()
			}
		}(rc)
	}
	wg.Wait()
	return failures
}

// Delete tears down the repository's clone and forgets its status.
func (s *Syncer) Delete(name string) error {
	lock := s.repoLock(name)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	client := s.clients[name]
	delete(s.clients, name)
	delete(s.statuses, name)
	s.mu.Unlock()

	if client != nil {
		return client.Remove()
	}
	return nil
}

func filterChanges(cs *ChangeSet, m *PatternMatcher) *ChangeSet {
	out := &ChangeSet{}
	for _, p := range cs.Added {
		if m.Match(p) {
			out.Added = append(out.Added, p)
		}
	}
	for _, p := range cs.Modified {
		if m.Match(p) {
			out.Modified = append(out.Modified, p)
		}
	}
	for _, p := range cs.Removed {
		if m.Match(p) {
			out.Removed = append(out.Removed, p)
		}
	}
	return out
}
