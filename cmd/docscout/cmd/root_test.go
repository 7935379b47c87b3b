package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/errors"
	"github.com/docscout/docscout/pkg/version"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "docscout "+version.Version)
}

func TestStartRejectsUnknownMode(t *testing.T) {
	_, err := runCommand(t, "start", "--mode", "bogus")
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestSyncWithoutConfigFails(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.json")
	_, err := runCommand(t, "sync", "--config", missing)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))
}

func TestInitWritesConfigTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "config.json")
	out, err := runCommand(t, "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "myapp", cfg.Project)
	assert.NotEmpty(t, cfg.Repositories)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	_, err := runCommand(t, "init", "--config", path)
	require.NoError(t, err)

	_, err = runCommand(t, "init", "--config", path)
	require.Error(t, err)
	assert.True(t, errors.IsKind(err, errors.KindValidation))

	_, err = runCommand(t, "init", "--config", path, "--force")
	assert.NoError(t, err)
}

func TestSearchRequiresQueryArgument(t *testing.T) {
	_, err := runCommand(t, "search")
	assert.Error(t, err)
}

func TestSnippet(t *testing.T) {
	assert.Equal(t, "first line", snippet("first line\nsecond line", 80))
	assert.Equal(t, "abc...", snippet("abcdef", 3))
	assert.Equal(t, "short", snippet("short", 80))
}
