// Package monitor implements the reconciliation loop: observe the remote
// branch, work out what changed, drive the affected targets to the new
// revision and record everything on the way.
package monitor

import (
	"context"
	"errors"
	"time"

	"github.com/syncline/syncline/internal/config"
)

// CommitRef identifies a commit in the watched repository. The monitor
// only compares refs for equality, their internal structure is opaque. An
// empty ref means no revision has been observed yet.
type CommitRef = string

// ChangeSet holds the repo-relative paths that changed between two refs,
// deduplicated and sorted.
type ChangeSet = []string

var (
	ErrAlreadyRunning = errors.New("monitor is already running")
	ErrNotRunning     = errors.New("monitor is not running")
)

// RepoClientIfc is the version control side of the loop.
type RepoClientIfc interface {
	// RemoteTip returns the commit the remote branch currently points at.
	RemoteTip(ctx context.Context) (CommitRef, error)
	// DiffPaths lists the paths that changed between two commits.
	DiffPaths(ctx context.Context, oldRef, newRef CommitRef) (ChangeSet, error)
	// Checkout moves the working copy to the given commit.
	Checkout(ref CommitRef) error
}

// DeployerIfc drives one runtime. Apply must converge, replaying the same
// revision is a no-op for the workload. WaitReady reports (false, nil) on
// timeout, errors are reserved for the runtime itself failing.
type DeployerIfc interface {
	Apply(ctx context.Context, target config.Target) error
	WaitReady(ctx context.Context, target config.Target) (bool, error)
}

// Outcome of one deployment task.
type Outcome string

const (
	OutcomeSucceeded Outcome = "Succeeded"
	OutcomeFailed    Outcome = "Failed"
	OutcomeTimedOut  Outcome = "TimedOut"
)

// DeploymentTask pairs a target with the changed paths that selected it.
type DeploymentTask struct {
	Target  config.Target
	Changes ChangeSet
	CycleID string
}

// DeploymentResult records one executed task.
type DeploymentResult struct {
	Target     string
	Outcome    Outcome
	Detail     string
	StartedAt  time.Time
	FinishedAt time.Time
}
