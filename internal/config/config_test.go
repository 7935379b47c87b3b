package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"project": "myapp",
		"repositories": [
			{"name": "docs", "url": "https://github.com/acme/docs"}
		]
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "myapp", cfg.Project)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, DefaultMaxResults, cfg.ContextGeneration.MaxResults)
	assert.Equal(t, DefaultMaxTokens, cfg.ContextGeneration.MaxTokens)
	assert.Equal(t, DefaultScoreThreshold, cfg.ContextGeneration.ScoreThreshold)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, "local", cfg.VectorStore.Backend)
	assert.Equal(t, DefaultDimensions, cfg.VectorStore.Dimensions)
	assert.Equal(t, "static", cfg.Embeddings.Provider)

	repo := cfg.Repository("docs")
	require.NotNil(t, repo)
	assert.Equal(t, "main", repo.Branch)
	assert.Equal(t, AuthNone, repo.Auth)
	assert.Equal(t, PriorityMedium, repo.Priority)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{"project": `)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("VECTOR_URL", "http://qdrant:6334")
	t.Setenv("EMBEDDING_PROVIDER", "ollama")
	t.Setenv("EMBEDDING_MODEL", "nomic-embed-text")

	path := writeConfig(t, `{"project": "myapp", "repositories": []}`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.VectorStore.Backend)
	assert.Equal(t, "http://qdrant:6334", cfg.VectorStore.URL)
	assert.Equal(t, "ollama", cfg.Embeddings.Provider)
	assert.Equal(t, "nomic-embed-text", cfg.Embeddings.Model)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"missing name", func(c *Config) {
			c.Repositories = []Repository{{URL: "https://x/y"}}
		}, "name is required"},
		{"duplicate name", func(c *Config) {
			c.Repositories = []Repository{
				{Name: "docs", URL: "https://x/a", Auth: AuthNone, Priority: PriorityMedium},
				{Name: "docs", URL: "https://x/b", Auth: AuthNone, Priority: PriorityMedium},
			}
		}, "duplicate repository"},
		{"missing url", func(c *Config) {
			c.Repositories = []Repository{{Name: "docs"}}
		}, "url is required"},
		{"bad auth", func(c *Config) {
			c.Repositories = []Repository{{Name: "docs", URL: "https://x/y", Auth: "oauth", Priority: PriorityMedium}}
		}, "unknown auth mode"},
		{"bad priority", func(c *Config) {
			c.Repositories = []Repository{{Name: "docs", URL: "https://x/y", Auth: AuthNone, Priority: "urgent"}}
		}, "unknown priority"},
		{"negative interval", func(c *Config) {
			c.Repositories = []Repository{{Name: "docs", URL: "https://x/y", Auth: AuthNone, Priority: PriorityMedium, SyncIntervalMinutes: -5}}
		}, "syncInterval"},
		{"bad backend", func(c *Config) {
			c.VectorStore.Backend = "pinecone"
		}, "backend"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := New()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsKind(err, errors.KindValidation))
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := New()
	cfg.Project = "roundtrip"
	cfg.Repositories = []Repository{
		{Name: "docs", URL: "https://github.com/acme/docs", Branch: "main", Auth: AuthNone, Priority: PriorityHigh},
	}

	require.NoError(t, Save(cfg, path))
	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive the rename")

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "roundtrip", loaded.Project)
	require.Len(t, loaded.Repositories, 1)
	assert.Equal(t, PriorityHigh, loaded.Repositories[0].Priority)
}

func TestRepositoryToken(t *testing.T) {
	t.Setenv("MY_DOCS_TOKEN", "from-default-env")
	t.Setenv("CUSTOM_ENV", "from-custom-env")

	r := Repository{Name: "my-docs", Auth: AuthToken}
	assert.Equal(t, "from-default-env", r.Token())

	r.TokenEnv = "CUSTOM_ENV"
	assert.Equal(t, "from-custom-env", r.Token())

	r = Repository{Name: "my-docs", Auth: AuthNone}
	assert.Empty(t, r.Token())
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "MY_DOCS", envName("my-docs"))
	assert.Equal(t, "API_V2", envName("api.v2"))
	assert.Equal(t, "DOCS", envName("docs"))
}

func TestManagerAddUpdateRemove(t *testing.T) {
	m := NewManager(New(), "")

	require.NoError(t, m.AddRepository(Repository{Name: "docs", URL: "https://x/docs"}))
	err := m.AddRepository(Repository{Name: "docs", URL: "https://x/other"})
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	repo, err := m.Repository("docs")
	require.NoError(t, err)
	assert.Equal(t, "main", repo.Branch)

	require.NoError(t, m.UpdateRepository("docs", Repository{
		Name: "renamed", URL: "https://x/docs", Branch: "develop",
	}))
	repo, err = m.Repository("docs")
	require.NoError(t, err)
	assert.Equal(t, "docs", repo.Name, "update keeps the name as identity")
	assert.Equal(t, "develop", repo.Branch)

	err = m.UpdateRepository("ghost", Repository{Name: "ghost", URL: "https://x/g"})
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	require.NoError(t, m.RemoveRepository("docs"))
	_, err = m.Repository("docs")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))

	err = m.RemoveRepository("docs")
	assert.True(t, errors.IsKind(err, errors.KindNotFound))
}

func TestManagerSnapshotIsolated(t *testing.T) {
	m := NewManager(New(), "")
	require.NoError(t, m.AddRepository(Repository{Name: "docs", URL: "https://x/docs"}))

	snap := m.Snapshot()
	snap.Repositories[0].Branch = "mutated"

	repo, err := m.Repository("docs")
	require.NoError(t, err)
	assert.Equal(t, "main", repo.Branch)
}

func TestManagerPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	m := NewManager(New(), path)
	require.NoError(t, m.AddRepository(Repository{Name: "docs", URL: "https://x/docs"}))

	loaded, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, loaded.Repository("docs"))
}

func TestApplyPreset(t *testing.T) {
	presetPath := writeConfig(t, `{
		"repositories": [
			{"name": "docs", "url": "https://x/docs-new", "priority": "high"},
			{"name": "api", "url": "https://x/api"}
		],
		"server": {"port": 9999}
	}`)

	cfg := New()
	cfg.Repositories = []Repository{
		{Name: "docs", URL: "https://x/docs-old", Auth: AuthNone, Priority: PriorityLow, Branch: "main"},
	}

	require.NoError(t, cfg.ApplyPreset(presetPath))

	docs := cfg.Repository("docs")
	require.NotNil(t, docs)
	assert.Equal(t, "https://x/docs-new", docs.URL)
	assert.Equal(t, PriorityHigh, docs.Priority)

	api := cfg.Repository("api")
	require.NotNil(t, api)
	assert.Equal(t, PriorityMedium, api.Priority, "appended repos get defaults")

	assert.Equal(t, 9999, cfg.Server.Port)
}

func TestApplyPresetMissingFile(t *testing.T) {
	cfg := New()
	err := cfg.ApplyPreset(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}
