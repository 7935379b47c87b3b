package gitsync

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v6"
	"github.com/go-git/go-git/v6/plumbing"
	"github.com/go-git/go-git/v6/plumbing/object"
	"github.com/go-git/go-git/v6/plumbing/transport"
	githttp "github.com/go-git/go-git/v6/plumbing/transport/http"
	gitssh "github.com/go-git/go-git/v6/plumbing/transport/ssh"

	"github.com/docscout/docscout/internal/config"
	"github.com/docscout/docscout/internal/errors"
)

// CloneDepth keeps clones shallow; enough history remains to diff between
// consecutive syncs at typical intervals.
const CloneDepth = 50

// ChangeSet lists the paths that changed between two syncs.
type ChangeSet struct {
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Removed  []string `json:"removed"`
}

// Empty reports whether nothing changed.
func (c *ChangeSet) Empty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.Removed) == 0
}

// Client wraps one repository clone under data/repos/<name>.
type Client struct {
	dir    string
	url    string
	branch string
	auth   transport.AuthMethod
	repo   *git.Repository
}

// NewClient builds a client for the repository, resolving auth from its
// configuration. The clone directory is dataDir/repos/<name>.
func NewClient(dataDir string, rc config.Repository) (*Client, error) {
	auth, err := buildAuth(rc)
	if err != nil {
		return nil, err
	}
	branch := rc.Branch
	if branch == "" {
		branch = "main"
	}
	return &Client{
		dir:    filepath.Join(dataDir, "repos", rc.Name),
		url:    rc.URL,
		branch: branch,
		auth:   auth,
	}, nil
}

func buildAuth(rc config.Repository) (transport.AuthMethod, error) {
	switch rc.Auth {
	case config.AuthToken:
		token := rc.Token()
		if token == "" {
			return nil, errors.Newf(errors.KindAuth, "repository %s: auth token not set in environment", rc.Name)
		}
		return &githttp.BasicAuth{Username: "x-access-token", Password: token}, nil
	case config.AuthSSH:
		keys, err := gitssh.NewPublicKeysFromFile("git", rc.SSHKey, "")
		if err != nil {
			return nil, errors.Wrap(err, errors.KindAuth, "load ssh key")
		}
		return keys, nil
	default:
		return nil, nil
	}
}

// Dir returns the clone directory.
func (c *Client) Dir() string { return c.dir }

// open loads the existing clone, or clones shallow single-branch when the
// directory does not hold one.
func (c *Client) open() error {
	if c.repo != nil {
		return nil
	}
	repo, err := git.PlainOpen(c.dir)
	if err == nil {
		c.repo = repo
		return nil
	}
	if err != git.ErrRepositoryNotExists {
		return errors.Wrap(err, errors.KindFatal, "open clone")
	}

	if err := os.MkdirAll(filepath.Dir(c.dir), 0o755); err != nil {
		return errors.Wrap(err, errors.KindFatal, "create repos directory")
	}
	repo, err = git.PlainClone(c.dir, &git.CloneOptions{
		URL:           c.url,
		Auth:          c.auth,
		ReferenceName: plumbing.NewBranchReferenceName(c.branch),
		SingleBranch:  true,
		Depth:         CloneDepth,
	})
	if err != nil {
		return classifyGitError(err, "clone repository")
	}
	c.repo = repo
	return nil
}

// Update brings the clone to the branch head and returns the previous and
// new HEAD SHAs. On first sync oldHead is empty.
func (c *Client) Update() (oldHead, newHead string, err error) {
	fresh := c.repo == nil && !c.exists()
	if err := c.open(); err != nil {
		return "", "", err
	}

	head, err := c.repo.Head()
	if err != nil {
		return "", "", errors.Wrap(err, errors.KindFatal, "resolve HEAD")
	}
	if !fresh {
		oldHead = head.Hash().String()

		err = c.repo.Fetch(&git.FetchOptions{Auth: c.auth, Depth: CloneDepth, Force: true})
		if err != nil && err != git.NoErrAlreadyUpToDate {
			return "", "", classifyGitError(err, "fetch repository")
		}

		remote, err := c.repo.Reference(plumbing.NewRemoteReferenceName("origin", c.branch), true)
		if err != nil {
			return "", "", errors.Wrap(err, errors.KindFatal, "resolve remote branch")
		}
		if remote.Hash() != head.Hash() {
			wt, err := c.repo.Worktree()
			if err != nil {
				return "", "", errors.Wrap(err, errors.KindFatal, "open worktree")
			}
			if err := wt.Reset(&git.ResetOptions{Mode: git.HardReset, Commit: remote.Hash()}); err != nil {
				return "", "", errors.Wrap(err, errors.KindFatal, "fast-forward worktree")
			}
		}
		head, err = c.repo.Head()
		if err != nil {
			return "", "", errors.Wrap(err, errors.KindFatal, "resolve updated HEAD")
		}
	}
	return oldHead, head.Hash().String(), nil
}

func (c *Client) exists() bool {
	_, err := os.Stat(filepath.Join(c.dir, ".git"))
	return err == nil
}

// Diff computes the change set between two commits. When oldHead is empty
// or unknown (shallow history), every current file reports as added.
func (c *Client) Diff(oldHead, newHead string) (*ChangeSet, error) {
	if err := c.open(); err != nil {
		return nil, err
	}

	newCommit, err := c.repo.CommitObject(plumbing.NewHash(newHead))
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "resolve new commit")
	}

	if oldHead == "" || oldHead == newHead {
		if oldHead == newHead && oldHead != "" {
			return &ChangeSet{}, nil
		}
		files, err := listTree(newCommit)
		if err != nil {
			return nil, err
		}
		return &ChangeSet{Added: files}, nil
	}

	oldCommit, err := c.repo.CommitObject(plumbing.NewHash(oldHead))
	if err != nil {
		// Old commit fell out of the shallow history; full walk.
		files, walkErr := listTree(newCommit)
		if walkErr != nil {
			return nil, walkErr
		}
		return &ChangeSet{Added: files}, nil
	}

	patch, err := oldCommit.Patch(newCommit)
	if err != nil {
		files, walkErr := listTree(newCommit)
		if walkErr != nil {
			return nil, walkErr
		}
		return &ChangeSet{Added: files}, nil
	}

	cs := &ChangeSet{}
	for _, fp := range patch.FilePatches() {
		from, to := fp.Files()
		switch {
		case from == nil && to != nil:
			cs.Added = append(cs.Added, to.Path())
		case from != nil && to == nil:
			cs.Removed = append(cs.Removed, from.Path())
		case from != nil && to != nil:
			if from.Path() != to.Path() {
				cs.Removed = append(cs.Removed, from.Path())
				cs.Added = append(cs.Added, to.Path())
			} else {
				cs.Modified = append(cs.Modified, to.Path())
			}
		}
	}
	return cs, nil
}

func listTree(commit *object.Commit) ([]string, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "resolve tree")
	}
	var files []string
	err = tree.Files().ForEach(func(f *object.File) error {
		files = append(files, f.Name)
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "walk tree")
	}
	return files, nil
}

// FileContent reads one file at HEAD.
func (c *Client) FileContent(path string) ([]byte, error) {
	if err := c.open(); err != nil {
		return nil, err
	}
	head, err := c.repo.Head()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "resolve HEAD")
	}
	commit, err := c.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "resolve commit")
	}
	file, err := commit.File(path)
	if err != nil {
		return nil, errors.Newf(errors.KindNotFound, "file %s not in HEAD", path)
	}
	content, err := file.Contents()
	if err != nil {
		return nil, errors.Wrap(err, errors.KindFatal, "read file")
	}
	return []byte(content), nil
}

// Remove deletes the clone directory.
func (c *Client) Remove() error {
	c.repo = nil
	if c.dir == "" {
		return nil
	}
	return os.RemoveAll(c.dir)
}

// classifyGitError maps transport failures to retryable or auth kinds.
func classifyGitError(err error, msg string) error {
	s := strings.ToLower(err.Error())
	switch {
	case strings.Contains(s, "authentication") || strings.Contains(s, "authorization") ||
		strings.Contains(s, "401") || strings.Contains(s, "403") ||
		strings.Contains(s, "invalid credentials") || strings.Contains(s, "could not read username"):
		return errors.Wrap(err, errors.KindAuth, msg)
	case strings.Contains(s, "repository not found") || strings.Contains(s, "not found"):
		return errors.Wrap(err, errors.KindNotFound, msg)
	default:
		return errors.Wrap(err, errors.KindTransient, msg)
	}
}
