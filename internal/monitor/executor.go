package monitor

import (
	"context"
	"fmt"
	"time"
)

// runTask drives a single deployment task to completion. Failures are
// captured in the result and never propagated, one broken target cannot
// starve its siblings.
func (m *Monitor) runTask(ctx context.Context, task DeploymentTask) DeploymentResult {
	result := DeploymentResult{
		Target:    task.Target.Name,
		StartedAt: time.Now().UTC(),
	}

	deployer, ok := m.deployers[task.Target.Runtime]
	if !ok {
		result.Outcome = OutcomeFailed
		result.Detail = fmt.Sprintf("no deployer registered for runtime %q", task.Target.Runtime)
		result.FinishedAt = time.Now().UTC()
		return result
	}

	applyCtx, cancel := context.WithTimeout(ctx, task.Target.Timeout())
	err := deployer.Apply(applyCtx, task.Target)
	cancel()
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Detail = err.Error()
		result.FinishedAt = time.Now().UTC()
		return result
	}

	waitCtx, cancel := context.WithTimeout(ctx, task.Target.Timeout())
	ready, err := deployer.WaitReady(waitCtx, task.Target)
	cancel()

	switch {
	case err != nil:
		result.Outcome = OutcomeFailed
		result.Detail = err.Error()
	case ready:
		result.Outcome = OutcomeSucceeded
	default:
		result.Outcome = OutcomeTimedOut
		result.Detail = fmt.Sprintf("not ready after %s", task.Target.Timeout())
	}
	result.FinishedAt = time.Now().UTC()
	return result
}
