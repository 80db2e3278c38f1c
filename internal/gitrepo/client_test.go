package gitrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	goGit "github.com/go-git/go-git/v5"
	goGitObject "github.com/go-git/go-git/v5/plumbing/object"
	goGitClient "github.com/go-git/go-git/v5/plumbing/transport/client"
	goGitServer "github.com/go-git/go-git/v5/plumbing/transport/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// Serve file:// URLs in process so tests never shell out to a git binary.
func init() {
	goGitClient.InstallProtocol("file", goGitServer.DefaultServer)
}

// newUpstream creates a repository playing the remote role. The returned
// URL points at its .git directory, which is what the server transport
// expects to find.
func newUpstream(t *testing.T) (*goGit.Repository, string, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := goGit.PlainInit(dir, false)
	require.NoError(t, err)
	return repo, dir, filepath.Join(dir, ".git")
}

func commitFiles(t *testing.T, repo *goGit.Repository, dir string, files map[string]string, msg string) string {
	t.Helper()
	worktree, err := repo.Worktree()
	require.NoError(t, err)

	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
		_, err = worktree.Add(name)
		require.NoError(t, err)
	}

	hash, err := worktree.Commit(msg, &goGit.CommitOptions{
		Author: &goGitObject.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func removeFile(t *testing.T, repo *goGit.Repository, name, msg string) string {
	t.Helper()
	worktree, err := repo.Worktree()
	require.NoError(t, err)
	_, err = worktree.Remove(name)
	require.NoError(t, err)

	hash, err := worktree.Commit(msg, &goGit.CommitOptions{
		Author: &goGitObject.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	client, err := NewClient(url, "master", filepath.Join(t.TempDir(), "copy"), nil, zap.NewNop().Sugar())
	require.NoError(t, err)
	return client
}

func TestNewClientValidatesArguments(t *testing.T) {
	log := zap.NewNop().Sugar()

	_, err := NewClient("", "master", "/tmp/copy", nil, log)
	assert.Error(t, err)
	_, err = NewClient("file:///tmp/up", "", "/tmp/copy", nil, log)
	assert.Error(t, err)
	_, err = NewClient("file:///tmp/up", "master", "", nil, log)
	assert.Error(t, err)
}

func TestNewClientClonesMissingWorkingCopy(t *testing.T) {
	upstream, dir, url := newUpstream(t)
	commitFiles(t, upstream, dir, map[string]string{"app/README.md": "hello\n"}, "initial")

	copyDir := filepath.Join(t.TempDir(), "copy")
	_, err := NewClient(url, "master", copyDir, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(copyDir, "app/README.md"))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(data))

	// reopening the existing copy must not re-clone
	_, err = NewClient(url, "master", copyDir, nil, zap.NewNop().Sugar())
	assert.NoError(t, err)
}

func TestRemoteTipTracksUpstream(t *testing.T) {
	upstream, dir, url := newUpstream(t)
	first := commitFiles(t, upstream, dir, map[string]string{"app/config.yaml": "v: 1\n"}, "initial")

	client := newTestClient(t, url)
	ctx := context.Background()

	tip, err := client.RemoteTip(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, tip)

	// nothing new upstream, fetch reports up to date and the tip holds
	tip, err = client.RemoteTip(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, tip)

	second := commitFiles(t, upstream, dir, map[string]string{"app/config.yaml": "v: 2\n"}, "bump")
	tip, err = client.RemoteTip(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, tip)
}

func TestDiffPathsSortedAndDeduplicated(t *testing.T) {
	upstream, dir, url := newUpstream(t)
	first := commitFiles(t, upstream, dir, map[string]string{
		"helm/redis/values.yaml": "replicas: 1\n",
		"docs/README.md":         "docs\n",
	}, "initial")
	second := commitFiles(t, upstream, dir, map[string]string{
		"helm/redis/values.yaml":     "replicas: 2\n",
		"compose/webapp/compose.yml": "services: {}\n",
	}, "update")

	client := newTestClient(t, url)
	ctx := context.Background()
	_, err := client.RemoteTip(ctx)
	require.NoError(t, err)

	paths, err := client.DiffPaths(ctx, first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"compose/webapp/compose.yml", "helm/redis/values.yaml"}, paths)
}

func TestDiffPathsIncludesDeletions(t *testing.T) {
	upstream, dir, url := newUpstream(t)
	first := commitFiles(t, upstream, dir, map[string]string{"docs/README.md": "docs\n"}, "initial")
	second := removeFile(t, upstream, "docs/README.md", "drop docs")

	client := newTestClient(t, url)
	ctx := context.Background()
	_, err := client.RemoteTip(ctx)
	require.NoError(t, err)

	paths, err := client.DiffPaths(ctx, first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/README.md"}, paths)
}

func TestDiffPathsRejectsEmptyRefs(t *testing.T) {
	upstream, dir, url := newUpstream(t)
	first := commitFiles(t, upstream, dir, map[string]string{"a.txt": "a\n"}, "initial")

	client := newTestClient(t, url)

	_, err := client.DiffPaths(context.Background(), "", first)
	assert.Error(t, err)
	_, err = client.DiffPaths(context.Background(), first, "")
	assert.Error(t, err)
}

func TestCheckoutMovesWorkingCopy(t *testing.T) {
	upstream, dir, url := newUpstream(t)
	commitFiles(t, upstream, dir, map[string]string{"app/config.yaml": "v: 1\n"}, "initial")

	copyDir := filepath.Join(t.TempDir(), "copy")
	client, err := NewClient(url, "master", copyDir, nil, zap.NewNop().Sugar())
	require.NoError(t, err)

	second := commitFiles(t, upstream, dir, map[string]string{"app/config.yaml": "v: 2\n"}, "bump")

	ctx := context.Background()
	tip, err := client.RemoteTip(ctx)
	require.NoError(t, err)
	require.Equal(t, second, tip)

	require.NoError(t, client.Checkout(tip))

	data, err := os.ReadFile(filepath.Join(copyDir, "app/config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "v: 2\n", string(data))
}
