package journal

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventAppendsTimestampedLine(t *testing.T) {
	j, err := New(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	j.Event("Reference advanced to %s", "f00dcafe")

	data, err := os.ReadFile(j.Path())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	require.Len(t, lines, 1)
	assert.True(t, strings.HasSuffix(lines[0], "] Reference advanced to f00dcafe"), "got %q", lines[0])

	open := strings.Index(lines[0], "[")
	closing := strings.Index(lines[0], "]")
	require.Equal(t, 0, open)
	require.Greater(t, closing, 0)
	_, err = time.Parse(time.RFC3339, lines[0][1:closing])
	assert.NoError(t, err, "timestamp should be RFC3339")
}

func TestTailReturnsLastEntries(t *testing.T) {
	j, err := New(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	j.Event("first")
	j.Event("second")
	j.Event("third")

	lines, err := j.Tail(2)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "second")
	assert.Contains(t, lines[1], "third")

	all, err := j.Tail(10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestTailOnEmptyJournal(t *testing.T) {
	j, err := New(t.TempDir())
	require.NoError(t, err)
	defer j.Close()

	lines, err := j.Tail(5)
	require.NoError(t, err)
	assert.Empty(t, lines)
}

func TestReopenAppends(t *testing.T) {
	dir := t.TempDir()

	j, err := New(dir)
	require.NoError(t, err)
	j.Event("before restart")
	require.NoError(t, j.Close())

	j, err = New(dir)
	require.NoError(t, err)
	defer j.Close()
	j.Event("after restart")

	lines, err := j.Tail(10)
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "before restart")
	assert.Contains(t, lines[1], "after restart")
}
