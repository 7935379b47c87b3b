// Package config loads, validates, and persists the docscout configuration.
//
// The active config lives at config/config.json. Secrets are never stored as
// literal values: repository tokens resolve from environment variables by the
// convention <REPO_NAME>_TOKEN, and backend endpoints come from VECTOR_URL,
// EMBEDDING_PROVIDER, EMBEDDING_MODEL.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/docscout/docscout/internal/errors"
)

// Priority is the repository ranking priority.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// AuthMode selects how a repository is authenticated.
type AuthMode string

const (
	AuthNone  AuthMode = "none"
	AuthToken AuthMode = "token"
	AuthSSH   AuthMode = "ssh"
)

// Repository is the unit of sync configuration.
type Repository struct {
	// Name uniquely identifies the repository within the configuration.
	Name   string `json:"name"`
	URL    string `json:"url"`
	Branch string `json:"branch,omitempty"`

	// Auth selects the credential mode. Token repositories read the token
	// from the environment variable named by TokenEnv (default <NAME>_TOKEN).
	Auth     AuthMode `json:"auth,omitempty"`
	TokenEnv string   `json:"tokenEnv,omitempty"`
	SSHKey   string   `json:"sshKey,omitempty"`

	// Paths are include globs (doublestar syntax). Empty means all files.
	Paths   []string `json:"paths,omitempty"`
	Exclude []string `json:"exclude,omitempty"`

	Priority Priority `json:"priority,omitempty"`
	Category string   `json:"category,omitempty"`

	// SyncIntervalMinutes schedules periodic refresh. 0 disables scheduling
	// (on-demand sync only).
	SyncIntervalMinutes int `json:"syncInterval,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// Token resolves the repository auth token from the environment.
// Returns empty string when the repository is unauthenticated.
func (r *Repository) Token() string {
	if r.Auth != AuthToken {
		return ""
	}
	env := r.TokenEnv
	if env == "" {
		env = envName(r.Name) + "_TOKEN"
	}
	return os.Getenv(env)
}

// envName converts a repository name to an environment variable prefix.
func envName(name string) string {
	s := strings.ToUpper(name)
	s = strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, s)
	return s
}

// ContextGeneration configures the context generator.
type ContextGeneration struct {
	MaxResults      int                  `json:"maxResults,omitempty"`
	MaxTokens       int                  `json:"maxTokens,omitempty"`
	ScoreThreshold  float64              `json:"scoreThreshold,omitempty"`
	PriorityWeights map[Priority]float64 `json:"priorityWeights,omitempty"`
}

// Server configures the HTTP API surface.
type Server struct {
	Port         int    `json:"port,omitempty"`
	Host         string `json:"host,omitempty"`
	AuthToken    string `json:"authToken,omitempty"` // env var name, not a literal
	RateLimitRPS int    `json:"rateLimitRps,omitempty"`
	LogLevel     string `json:"logLevel,omitempty"`
}

// VectorStore configures the vector index backend.
type VectorStore struct {
	// Backend is "local" (in-process HNSW) or "qdrant".
	Backend    string `json:"backend,omitempty"`
	URL        string `json:"url,omitempty"` // overridden by VECTOR_URL
	Collection string `json:"collection,omitempty"`
	Dimensions int    `json:"dimensions,omitempty"`
}

// Embeddings configures the embedding provider.
type Embeddings struct {
	// Provider is "static" (in-process, deterministic) or "ollama".
	Provider  string `json:"provider,omitempty"` // overridden by EMBEDDING_PROVIDER
	Model     string `json:"model,omitempty"`    // overridden by EMBEDDING_MODEL
	Endpoint  string `json:"endpoint,omitempty"`
	BatchSize int    `json:"batchSize,omitempty"`
	CacheSize int    `json:"cacheSize,omitempty"`
}

// Config is the complete docscout configuration.
type Config struct {
	Project           string            `json:"project"`
	DataDir           string            `json:"dataDir,omitempty"`
	Repositories      []Repository      `json:"repositories"`
	ContextGeneration ContextGeneration `json:"contextGeneration,omitempty"`
	Server            Server            `json:"server,omitempty"`
	VectorStore       VectorStore       `json:"vectorStore,omitempty"`
	Embeddings        Embeddings        `json:"embeddings,omitempty"`
}

// Defaults mirrored from the pipeline contract.
const (
	DefaultMaxResults     = 20
	DefaultMaxTokens      = 8000
	DefaultScoreThreshold = 0.7
	DefaultDimensions     = 384
	DefaultBatchSize      = 32
	DefaultCacheSize      = 10000
	DefaultPort           = 8000
	DefaultSyncWorkers    = 4
)

// DefaultPriorityWeights are the multiplicative priority adjustments.
func DefaultPriorityWeights() map[Priority]float64 {
	return map[Priority]float64{
		PriorityHigh:   1.5,
		PriorityMedium: 1.0,
		PriorityLow:    0.7,
	}
}

// New returns a Config with defaults applied.
func New() *Config {
	return &Config{
		Project: "docscout",
		DataDir: "data",
		ContextGeneration: ContextGeneration{
			MaxResults:      DefaultMaxResults,
			MaxTokens:       DefaultMaxTokens,
			ScoreThreshold:  DefaultScoreThreshold,
			PriorityWeights: DefaultPriorityWeights(),
		},
		Server: Server{
			Port:         DefaultPort,
			Host:         "0.0.0.0",
			RateLimitRPS: 10,
			LogLevel:     "info",
		},
		VectorStore: VectorStore{
			Backend:    "local",
			Collection: "documentation",
			Dimensions: DefaultDimensions,
		},
		Embeddings: Embeddings{
			Provider:  "static",
			BatchSize: DefaultBatchSize,
			CacheSize: DefaultCacheSize,
		},
	}
}

// Load reads and validates a config file, applying defaults and environment
// overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, fmt.Sprintf("cannot read config %s", path))
	}

	cfg := New()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "malformed config JSON")
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config as indented JSON. The write is atomic via a
// temp-file rename so a crash never leaves a truncated config.
func Save(cfg *Config, path string) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// applyDefaults fills zero values after unmarshal.
func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.ContextGeneration.MaxResults == 0 {
		c.ContextGeneration.MaxResults = DefaultMaxResults
	}
	if c.ContextGeneration.MaxTokens == 0 {
		c.ContextGeneration.MaxTokens = DefaultMaxTokens
	}
	if c.ContextGeneration.ScoreThreshold == 0 {
		c.ContextGeneration.ScoreThreshold = DefaultScoreThreshold
	}
	if len(c.ContextGeneration.PriorityWeights) == 0 {
		c.ContextGeneration.PriorityWeights = DefaultPriorityWeights()
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	if c.VectorStore.Backend == "" {
		c.VectorStore.Backend = "local"
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "documentation"
	}
	if c.VectorStore.Dimensions == 0 {
		c.VectorStore.Dimensions = DefaultDimensions
	}
	if c.Embeddings.Provider == "" {
		c.Embeddings.Provider = "static"
	}
	if c.Embeddings.BatchSize == 0 {
		c.Embeddings.BatchSize = DefaultBatchSize
	}
	if c.Embeddings.CacheSize == 0 {
		c.Embeddings.CacheSize = DefaultCacheSize
	}
	for i := range c.Repositories {
		r := &c.Repositories[i]
		if r.Branch == "" {
			r.Branch = "main"
		}
		if r.Auth == "" {
			r.Auth = AuthNone
		}
		if r.Priority == "" {
			r.Priority = PriorityMedium
		}
	}
}

// applyEnv applies environment variable overrides.
func (c *Config) applyEnv() {
	if v := os.Getenv("VECTOR_URL"); v != "" {
		c.VectorStore.URL = v
		if c.VectorStore.Backend == "local" {
			c.VectorStore.Backend = "qdrant"
		}
	}
	if v := os.Getenv("EMBEDDING_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("EMBEDDING_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
}

// Validate checks the configuration for structural errors.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Repositories))
	for i := range c.Repositories {
		r := &c.Repositories[i]
		if r.Name == "" {
			return errors.Validation("repository name is required")
		}
		if seen[r.Name] {
			return errors.Newf(errors.KindValidation, "duplicate repository name %q", r.Name)
		}
		seen[r.Name] = true
		if r.URL == "" {
			return errors.Newf(errors.KindValidation, "repository %q: url is required", r.Name)
		}
		switch r.Auth {
		case AuthNone, AuthToken, AuthSSH:
		default:
			return errors.Newf(errors.KindValidation, "repository %q: unknown auth mode %q", r.Name, r.Auth)
		}
		switch r.Priority {
		case PriorityHigh, PriorityMedium, PriorityLow:
		default:
			return errors.Newf(errors.KindValidation, "repository %q: unknown priority %q", r.Name, r.Priority)
		}
		if r.SyncIntervalMinutes < 0 {
			return errors.Newf(errors.KindValidation, "repository %q: syncInterval must be >= 0", r.Name)
		}
	}
	switch c.VectorStore.Backend {
	case "local", "qdrant":
	default:
		return errors.Newf(errors.KindValidation, "unknown vectorStore backend %q", c.VectorStore.Backend)
	}
	return nil
}

// Repository returns the repository with the given name, or nil.
func (c *Config) Repository(name string) *Repository {
	for i := range c.Repositories {
		if c.Repositories[i].Name == name {
			return &c.Repositories[i]
		}
	}
	return nil
}
