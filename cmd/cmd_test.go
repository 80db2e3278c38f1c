package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncline/syncline/internal/monitor"
	"github.com/syncline/syncline/internal/state"
)

func useTestConfig(t *testing.T, remoteURL string) string {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	content := fmt.Sprintf(`
repoPath: %s
remoteUrl: %s
dataDir: %s
targets:
  - name: redis
    pathPrefix: helm/redis
    runtime: helm
    readinessSelector: app=redis
`, filepath.Join(dir, "repo"), remoteURL, dataDir)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	previous := configPath
	configPath = path
	t.Cleanup(func() { configPath = previous })
	return dataDir
}

func TestStopReportsNotRunning(t *testing.T) {
	useTestConfig(t, "https://git.example.com/deployments.git")

	err := stopCmd.RunE(stopCmd, nil)
	assert.ErrorIs(t, err, monitor.ErrNotRunning)
}

func TestCheckFailsOnUnreachableRemote(t *testing.T) {
	useTestConfig(t, filepath.Join(t.TempDir(), "missing.git"))

	err := checkCmd.RunE(checkCmd, nil)
	assert.Error(t, err)
}

func TestCheckRefusesWhileMonitorIsLive(t *testing.T) {
	dataDir := useTestConfig(t, "https://git.example.com/deployments.git")

	store, err := state.NewStore(dataDir)
	require.NoError(t, err)
	// pid 1 is always alive
	require.NoError(t, store.SetRunning(1, 60000))

	err = checkCmd.RunE(checkCmd, nil)
	assert.ErrorIs(t, err, monitor.ErrAlreadyRunning)
}

func TestRootRegistersSubcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"start", "stop", "status", "check"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}
}
