package monitor

import (
	"strings"

	"github.com/syncline/syncline/internal/config"
)

// BuildTasks maps changed paths onto registered targets. Targets are
// visited in registration order and each yields at most one task carrying
// exactly the paths that fell under its prefix. A target nothing matched
// yields no task.
func BuildTasks(changes ChangeSet, targets []config.Target, cycleID string) []DeploymentTask {
	var tasks []DeploymentTask
	for _, target := range targets {
		var matched []string
		for _, path := range changes {
			if underPrefix(path, target.PathPrefix) {
				matched = append(matched, path)
			}
		}
		if len(matched) > 0 {
			tasks = append(tasks, DeploymentTask{
				Target:  target,
				Changes: matched,
				CycleID: cycleID,
			})
		}
	}
	return tasks
}

// underPrefix matches whole path segments, so prefix "helm/redis" covers
// "helm/redis/values.yaml" but not "helm/redis-ha/values.yaml". Matching
// is case sensitive.
func underPrefix(path, prefix string) bool {
	prefix = strings.TrimSuffix(prefix, "/")
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}
