package monitor

import (
	"context"
	"fmt"
)

// detection is the outcome of one change detection pass.
type detection struct {
	// adopted marks the very first observation, the tip becomes the
	// baseline without triggering deployments
	adopted bool
	// noChange means the remote tip equals the last known ref
	noChange bool
	tip      CommitRef
	changes  ChangeSet
}

// detect compares the remote tip with the last known ref and resolves the
// changed paths in between.
func (m *Monitor) detect(ctx context.Context, lastRef CommitRef) (detection, error) {
	tipCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
	tip, err := m.repo.RemoteTip(tipCtx)
	cancel()
	if err != nil {
		return detection{}, fmt.Errorf("remote tip lookup failed: %w", err)
	}

	if lastRef == "" {
		return detection{adopted: true, tip: tip}, nil
	}
	if tip == lastRef {
		return detection{noChange: true, tip: tip}, nil
	}

	diffCtx, cancel := context.WithTimeout(ctx, remoteTimeout)
	changes, err := m.repo.DiffPaths(diffCtx, lastRef, tip)
	cancel()
	if err != nil {
		return detection{}, fmt.Errorf("diff between %s and %s failed: %w", short(lastRef), short(tip), err)
	}

	return detection{tip: tip, changes: changes}, nil
}
