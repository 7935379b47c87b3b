package gitsync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/errors"
)

func TestPatternMatcher(t *testing.T) {
	tests := []struct {
		name    string
		include []string
		exclude []string
		path    string
		want    bool
	}{
		{"no patterns match all", nil, nil, "docs/guide.md", true},
		{"include match", []string{"docs/**/*.md"}, nil, "docs/api/auth.md", true},
		{"include miss", []string{"docs/**/*.md"}, nil, "src/main.go", false},
		{"exclude wins", []string{"docs/**"}, []string{"docs/internal/**"}, "docs/internal/x.md", false},
		{"exclude without include", nil, []string{"**/node_modules/**"}, "a/node_modules/b.js", false},
		{"top level glob", []string{"*.md"}, nil, "README.md", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := NewPatternMatcher(tt.include, tt.exclude)
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.Match(tt.path))
		})
	}
}

func TestPatternMatcherRejectsInvalidGlob(t *testing.T) {
	_, err := NewPatternMatcher([]string{"docs/["}, nil)
	assert.Error(t, err)
}

func TestFilterChanges(t *testing.T) {
	m, err := NewPatternMatcher([]string{"docs/**"}, []string{"docs/drafts/**"})
	require.NoError(t, err)

	cs := filterChanges(&ChangeSet{
		Added:    []string{"docs/a.md", "src/a.go", "docs/drafts/wip.md"},
		Modified: []string{"docs/b.md"},
		Removed:  []string{"docs/c.md", "README.md"},
	}, m)

	assert.Equal(t, []string{"docs/a.md"}, cs.Added)
	assert.Equal(t, []string{"docs/b.md"}, cs.Modified)
	assert.Equal(t, []string{"docs/c.md"}, cs.Removed)
}

// initTestRepo creates a git repository with two commits and returns both
// commit SHAs.
func initTestRepo(t *testing.T, dir string) (head1, head2 string) {
	t.Helper()
	repo, err := git.PlainInit(dir, false,
		git.WithDefaultBranch(plumbing.NewBranchReferenceName("main")))
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	sig := &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()}

	writeFile := func(name, content string) {
		require.NoError(t, os.MkdirAll(filepath.Dir(filepath.Join(dir, name)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
		_, err := wt.Add(name)
		require.NoError(t, err)
	}

	writeFile("docs/guide.md", "# Guide\n\nInitial.\n")
	writeFile("docs/old.md", "# Old\n")
	c1, err := wt.Commit("initial docs", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	writeFile("docs/guide.md", "# Guide\n\nUpdated content.\n")
	writeFile("docs/new.md", "# New\n")
	_, err = wt.Remove("docs/old.md")
	require.NoError(t, err)
	c2, err := wt.Commit("update docs", &git.CommitOptions{Author: sig})
	require.NoError(t, err)

	return c1.String(), c2.String()
}

func TestClientDiffBetweenCommits(t *testing.T) {
	dataDir := t.TempDir()
	repoDir := filepath.Join(dataDir, "repos", "docs")
	head1, head2 := initTestRepo(t, repoDir)

	client, err := NewClient(dataDir, config.Repository{Name: "docs", URL: repoDir})
	require.NoError(t, err)

	cs, err := client.Diff(head1, head2)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/new.md"}, cs.Added)
	assert.Equal(t, []string{"docs/guide.md"}, cs.Modified)
	assert.Equal(t, []string{"docs/old.md"}, cs.Removed)
}

func TestClientDiffWithoutPriorHeadReportsAllAdded(t *testing.T) {
	dataDir := t.TempDir()
	repoDir := filepath.Join(dataDir, "repos", "docs")
	_, head2 := initTestRepo(t, repoDir)

	client, err := NewClient(dataDir, config.Repository{Name: "docs", URL: repoDir})
	require.NoError(t, err)

	cs, err := client.Diff("", head2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"docs/guide.md", "docs/new.md"}, cs.Added)
	assert.Empty(t, cs.Modified)
	assert.Empty(t, cs.Removed)
}

func TestClientDiffSameHeadIsEmpty(t *testing.T) {
	dataDir := t.TempDir()
	repoDir := filepath.Join(dataDir, "repos", "docs")
	_, head2 := initTestRepo(t, repoDir)

	client, err := NewClient(dataDir, config.Repository{Name: "docs", URL: repoDir})
	require.NoError(t, err)

	cs, err := client.Diff(head2, head2)
	require.NoError(t, err)
	assert.True(t, cs.Empty())
}

func TestClientFileContent(t *testing.T) {
	dataDir := t.TempDir()
	repoDir := filepath.Join(dataDir, "repos", "docs")
	initTestRepo(t, repoDir)

	client, err := NewClient(dataDir, config.Repository{Name: "docs", URL: repoDir})
	require.NoError(t, err)

	content, err := client.FileContent("docs/guide.md")
	require.NoError(t, err)
	assert.Contains(t, string(content), "Updated content")

	_, err = client.FileContent("docs/missing.md")
	assert.Error(t, err)
}

func TestSyncerDeleteRemovesClone(t *testing.T) {
	dataDir := t.TempDir()
	repoDir := filepath.Join(dataDir, "repos", "docs")
	initTestRepo(t, repoDir)

	s := NewSyncer(dataDir, 2, slog.New(slog.DiscardHandler))
	_, err := s.client(config.Repository{Name: "docs", URL: repoDir})
	require.NoError(t, err)

	require.NoError(t, s.Delete("docs"))
	_, statErr := os.Stat(repoDir)
	assert.True(t, os.IsNotExist(statErr))

	_, ok := s.Status("docs")
	assert.False(t, ok)
}

func TestSchedulerZeroIntervalNotScheduled(t *testing.T) {
	s := NewScheduler(func(ctx context.Context, name string) error { return nil },
		slog.New(slog.DiscardHandler))
	defer s.Close()

	s.Start(context.Background(), config.Repository{Name: "docs", SyncIntervalMinutes: 0})
	assert.False(t, s.Scheduled("docs"))
}

func TestSchedulerStartStop(t *testing.T) {
	s := NewScheduler(func(ctx context.Context, name string) error { return nil },
		slog.New(slog.DiscardHandler))
	defer s.Close()

	s.Start(context.Background(), config.Repository{Name: "docs", SyncIntervalMinutes: 60})
	assert.True(t, s.Scheduled("docs"))

	// Reinstall replaces the prior task.
	s.Start(context.Background(), config.Repository{Name: "docs", SyncIntervalMinutes: 30})
	assert.True(t, s.Scheduled("docs"))

	s.Stop("docs")
	assert.False(t, s.Scheduled("docs"))
	s.Stop("docs") // idempotent
}

func TestClassifyGitError(t *testing.T) {
	authErr := classifyGitError(assertErr("authentication required"), "clone")
	assert.True(t, errors.IsKind(authErr, errors.KindAuth))

	transient := classifyGitError(assertErr("connection reset by peer"), "fetch")
	assert.True(t, errors.IsKind(transient, errors.KindTransient))
}

type assertErr string

func (e assertErr) Error() string { return string(e) }
