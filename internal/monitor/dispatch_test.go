package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/syncline/syncline/internal/config"
)

func target(name, prefix string) config.Target {
	return config.Target{Name: name, PathPrefix: prefix, Runtime: config.RuntimeHelm}
}

func TestBuildTasksMatchesByPrefix(t *testing.T) {
	changes := []string{
		"compose/webapp/compose.yml",
		"docs/README.md",
		"helm/redis/Chart.yaml",
		"helm/redis/values.yaml",
	}
	targets := []config.Target{
		target("redis", "helm/redis"),
		target("webapp", "compose/webapp"),
		target("untouched", "helm/postgres"),
	}

	tasks := BuildTasks(changes, targets, "c1")

	require.Len(t, tasks, 2)
	assert.Equal(t, "redis", tasks[0].Target.Name)
	assert.Equal(t, []string{"helm/redis/Chart.yaml", "helm/redis/values.yaml"}, tasks[0].Changes)
	assert.Equal(t, "webapp", tasks[1].Target.Name)
	assert.Equal(t, []string{"compose/webapp/compose.yml"}, tasks[1].Changes)
	assert.Equal(t, "c1", tasks[0].CycleID)
}

func TestBuildTasksKeepsRegistrationOrder(t *testing.T) {
	changes := []string{"apps/a/x.yaml", "apps/b/y.yaml"}
	targets := []config.Target{
		target("second", "apps/b"),
		target("first", "apps/a"),
	}

	tasks := BuildTasks(changes, targets, "c1")

	require.Len(t, tasks, 2)
	assert.Equal(t, "second", tasks[0].Target.Name)
	assert.Equal(t, "first", tasks[1].Target.Name)
}

func TestBuildTasksIsDeterministic(t *testing.T) {
	changes := []string{"apps/a/x.yaml", "apps/a/y.yaml", "apps/b/z.yaml"}
	targets := []config.Target{target("a", "apps/a"), target("b", "apps/b")}

	first := BuildTasks(changes, targets, "c1")
	second := BuildTasks(changes, targets, "c1")

	assert.Equal(t, first, second)
}

func TestBuildTasksOnePathCanSelectManyTargets(t *testing.T) {
	changes := []string{"apps/shared/base.yaml"}
	targets := []config.Target{
		target("wide", "apps"),
		target("narrow", "apps/shared"),
	}

	tasks := BuildTasks(changes, targets, "c1")

	require.Len(t, tasks, 2)
	assert.Equal(t, tasks[0].Changes, tasks[1].Changes)
}

func TestBuildTasksNoMatches(t *testing.T) {
	tasks := BuildTasks([]string{"docs/README.md"}, []config.Target{target("redis", "helm/redis")}, "c1")
	assert.Empty(t, tasks)

	tasks = BuildTasks(nil, []config.Target{target("redis", "helm/redis")}, "c1")
	assert.Empty(t, tasks)
}

func TestUnderPrefix(t *testing.T) {
	tests := []struct {
		path   string
		prefix string
		want   bool
	}{
		{"helm/redis/values.yaml", "helm/redis", true},
		{"helm/redis", "helm/redis", true},
		{"helm/redis-ha/values.yaml", "helm/redis", false},
		{"helm/redisx", "helm/redis", false},
		{"Helm/redis/values.yaml", "helm/redis", false},
		{"helm/redis/deep/nested/file.tpl", "helm/redis", true},
		{"helm/redis/values.yaml", "helm/redis/", true},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.want, underPrefix(tc.path, tc.prefix), "path %q prefix %q", tc.path, tc.prefix)
	}
}
