package config

import (
	"sync"

	"github.com/docscout/docscout/internal/errors"
)

// Manager guards the live configuration for concurrent access.
// Reads take the read lock; repository mutations take the write lock and
// persist the config before returning.
type Manager struct {
	mu   sync.RWMutex
	cfg  *Config
	path string
}

// NewManager wraps a loaded config. path may be empty for in-memory use
// (tests); then mutations skip persistence.
func NewManager(cfg *Config, path string) *Manager {
	return &Manager{cfg: cfg, path: path}
}

// Snapshot returns a copy of the current config.
func (m *Manager) Snapshot() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cp := *m.cfg
	cp.Repositories = make([]Repository, len(m.cfg.Repositories))
	copy(cp.Repositories, m.cfg.Repositories)
	return cp
}

// Repository returns a copy of the named repository.
func (m *Manager) Repository(name string) (Repository, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r := m.cfg.Repository(name); r != nil {
		return *r, nil
	}
	return Repository{}, errors.Newf(errors.KindNotFound, "repository %q not found", name)
}

// Repositories returns a copy of all configured repositories.
func (m *Manager) Repositories() []Repository {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Repository, len(m.cfg.Repositories))
	copy(out, m.cfg.Repositories)
	return out
}

// AddRepository appends a new repository and saves the config.
func (m *Manager) AddRepository(r Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cfg.Repository(r.Name) != nil {
		return errors.Newf(errors.KindValidation, "repository %q already exists", r.Name)
	}
	next := *m.cfg
	next.Repositories = append(append([]Repository{}, m.cfg.Repositories...), r)
	next.applyDefaults()
	if err := next.Validate(); err != nil {
		return err
	}
	m.cfg = &next
	return m.save()
}

// UpdateRepository replaces the named repository and saves the config.
func (m *Manager) UpdateRepository(name string, r Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	found := false
	next := *m.cfg
	next.Repositories = append([]Repository{}, m.cfg.Repositories...)
	for i := range next.Repositories {
		if next.Repositories[i].Name == name {
			r.Name = name // renames are not supported; name is identity
			next.Repositories[i] = r
			found = true
			break
		}
	}
	if !found {
		return errors.Newf(errors.KindNotFound, "repository %q not found", name)
	}
	next.applyDefaults()
	if err := next.Validate(); err != nil {
		return err
	}
	m.cfg = &next
	return m.save()
}

// RemoveRepository deletes the named repository and saves the config.
func (m *Manager) RemoveRepository(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := *m.cfg
	next.Repositories = nil
	found := false
	for _, r := range m.cfg.Repositories {
		if r.Name == name {
			found = true
			continue
		}
		next.Repositories = append(next.Repositories, r)
	}
	if !found {
		return errors.Newf(errors.KindNotFound, "repository %q not found", name)
	}
	m.cfg = &next
	return m.save()
}

// save persists the config if a path is configured. Caller holds the write lock.
func (m *Manager) save() error {
	if m.path == "" {
		return nil
	}
	return Save(m.cfg, m.path)
}
