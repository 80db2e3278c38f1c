// Package gitrepo wraps the watched repository: one remote, one branch,
// one local working copy that deployment sources are read from.
package gitrepo

import (
	"context"
	"fmt"
	"sort"

	goGit "github.com/go-git/go-git/v5"
	goGitConfig "github.com/go-git/go-git/v5/config"
	goGitPlumbing "github.com/go-git/go-git/v5/plumbing"
	goGitObject "github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	goGitHttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"go.uber.org/zap"
)

// Auth carries credentials for HTTPS remotes.
type Auth struct {
	Username string
	Token    string
}

// Client is bound to a single remote branch for its whole lifetime.
type Client struct {
	url    string
	branch string
	auth   *Auth
	repo   *goGit.Repository
	log    *zap.SugaredLogger
}

// NewClient opens the working copy at repoPath, cloning it from url first
// when it does not exist yet.
func NewClient(url, branch, repoPath string, auth *Auth, log *zap.SugaredLogger) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("git URL cannot be empty")
	}
	if branch == "" {
		return nil, fmt.Errorf("git branch cannot be empty")
	}
	if repoPath == "" {
		return nil, fmt.Errorf("repository path cannot be empty")
	}

	client := &Client{
		url:    url,
		branch: branch,
		auth:   auth,
		log:    log,
	}

	repo, err := goGit.PlainOpen(repoPath)
	if err == goGit.ErrRepositoryNotExists {
		log.Infow("Working copy not found, cloning", "url", url, "branch", branch, "path", repoPath)
		repo, err = goGit.PlainClone(repoPath, false, &goGit.CloneOptions{
			URL:           url,
			ReferenceName: goGitPlumbing.NewBranchReferenceName(branch),
			SingleBranch:  true,
			Auth:          client.authMethod(),
		})
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open repository at %s: %w", repoPath, err)
	}

	client.repo = repo
	return client, nil
}

func (c *Client) authMethod() transport.AuthMethod {
	if c.auth == nil || c.auth.Username == "" || c.auth.Token == "" {
		return nil
	}
	return &goGitHttp.BasicAuth{
		Username: c.auth.Username,
		Password: c.auth.Token,
	}
}

// RemoteTip fetches from the remote and returns the commit hash its branch
// currently points at. The working copy is not touched.
func (c *Client) RemoteTip(ctx context.Context) (string, error) {
	err := c.repo.FetchContext(ctx, &goGit.FetchOptions{
		RefSpecs: []goGitConfig.RefSpec{"refs/heads/*:refs/remotes/origin/*"},
		Auth:     c.authMethod(),
	})
	if err != nil && err != goGit.NoErrAlreadyUpToDate {
		return "", fmt.Errorf("failed to fetch from remote: %w", err)
	}

	remoteBranchRef := fmt.Sprintf("refs/remotes/origin/%s", c.branch)
	ref, err := c.repo.Reference(goGitPlumbing.ReferenceName(remoteBranchRef), true)
	if err != nil {
		return "", fmt.Errorf("failed to get remote branch reference: %w", err)
	}

	return ref.Hash().String(), nil
}

// DiffPaths returns the repo-relative paths that changed between two
// commits, deduplicated and sorted. Renames contribute both sides.
func (c *Client) DiffPaths(ctx context.Context, oldRef, newRef string) ([]string, error) {
	if oldRef == "" || newRef == "" {
		return nil, fmt.Errorf("commit refs cannot be empty")
	}

	oldTree, err := c.commitTree(oldRef)
	if err != nil {
		return nil, err
	}
	newTree, err := c.commitTree(newRef)
	if err != nil {
		return nil, err
	}

	changes, err := goGitObject.DiffTreeWithOptions(ctx, oldTree, newTree, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to diff trees: %w", err)
	}

	seen := make(map[string]struct{})
	var paths []string
	for _, change := range changes {
		for _, name := range []string{change.From.Name, change.To.Name} {
			if name == "" {
				continue
			}
			if _, ok := seen[name]; ok {
				continue
			}
			seen[name] = struct{}{}
			paths = append(paths, name)
		}
	}
	sort.Strings(paths)

	return paths, nil
}

// Checkout forces the working copy onto the given commit so files on disk
// match the revision being deployed.
func (c *Client) Checkout(ref string) error {
	worktree, err := c.repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to get working tree: %w", err)
	}

	err = worktree.Checkout(&goGit.CheckoutOptions{
		Hash:  goGitPlumbing.NewHash(ref),
		Force: true,
	})
	if err != nil {
		return fmt.Errorf("failed to checkout %s: %w", ref, err)
	}

	c.log.Debugw("Checked out revision", "ref", ref)
	return nil
}

func (c *Client) commitTree(ref string) (*goGitObject.Tree, error) {
	commit, err := c.repo.CommitObject(goGitPlumbing.NewHash(ref))
	if err != nil {
		return nil, fmt.Errorf("failed to get commit object %s: %w", ref, err)
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to get tree for commit %s: %w", ref, err)
	}
	return tree, nil
}
