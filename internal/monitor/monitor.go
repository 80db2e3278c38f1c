package monitor

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/syncline/syncline/internal/config"
	"github.com/syncline/syncline/internal/journal"
	"github.com/syncline/syncline/internal/state"
	"go.uber.org/zap"
)

// remoteTimeout bounds each git operation within a cycle.
const remoteTimeout = 60 * time.Second

// Monitor owns the reconciliation lifecycle. A fresh instance is idle,
// Start arms the timer, Stop disarms it. In-flight cycles always run to
// completion, Stop only prevents new ones.
type Monitor struct {
	config    *config.Config
	repo      RepoClientIfc
	deployers map[string]DeployerIfc
	journal   *journal.Journal
	state     state.StoreIfc
	log       *zap.SugaredLogger

	// cycleMu serializes cycles, at most one is ever in flight
	cycleMu sync.Mutex

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	trigger chan struct{}
	cron    *cron.Cron
}

// New wires a monitor from its collaborators. Deployers are keyed by the
// runtime name targets declare.
func New(cfg *config.Config, repo RepoClientIfc, deployers map[string]DeployerIfc, jrnl *journal.Journal, store state.StoreIfc, log *zap.SugaredLogger) *Monitor {
	return &Monitor{
		config:    cfg,
		repo:      repo,
		deployers: deployers,
		journal:   jrnl,
		state:     store,
		log:       log,
		trigger:   make(chan struct{}),
	}
}

// Start arms the scheduler: one immediate cycle, then interval or cron
// paced cycles until Stop. Calling Start on an instance that is already
// running is a warned no-op. A different live process holding the state
// file is refused with ErrAlreadyRunning.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.log.Warnw("Monitor already running, ignoring start")
		return nil
	}
	snap := m.state.Snapshot()
	if snap.Phase == state.PhaseRunning && snap.PID != os.Getpid() && state.PidAlive(snap.PID) {
		return ErrAlreadyRunning
	}

	if m.config.Schedule != "" {
		c := cron.New(cron.WithParser(config.CronParser))
		if _, err := c.AddFunc(m.config.Schedule, m.cronFire); err != nil {
			return fmt.Errorf("failed to register schedule: %w", err)
		}
		m.cron = c
	}

	if err := m.state.SetRunning(os.Getpid(), m.config.IntervalMs); err != nil {
		return fmt.Errorf("failed to persist monitor state: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running = true

	if m.cron != nil {
		m.cron.Start()
		m.journal.Event("Monitor started, schedule %q, watching %s", m.config.Schedule, m.config.RemoteURL)
	} else {
		m.journal.Event("Monitor started, interval %s, watching %s", m.config.Interval(), m.config.RemoteURL)
	}
	m.log.Infow("Monitor started", "branch", m.config.Branch, "targets", len(m.config.Targets))

	go m.loop(loopCtx)
	return nil
}

// Stop disarms the scheduler and waits for the in-flight cycle to finish.
// Stopping an instance that never started is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	done := m.done
	cronStop := m.cron
	m.mu.Unlock()

	if cronStop != nil {
		<-cronStop.Stop().Done()
	}
	cancel()
	<-done

	if err := m.state.SetPhase(state.PhaseStopped); err != nil {
		m.log.Errorw("Failed to persist stopped state", "error", err)
	}
	m.journal.Event("Monitor stopped")
	m.log.Infow("Monitor stopped")
}

// RunOnce executes exactly one cycle with no timer involvement. Unlike
// scheduled cycles, detection failures are returned to the caller.
func (m *Monitor) RunOnce(ctx context.Context) error {
	return m.runCycle(ctx, true)
}

func (m *Monitor) loop(ctx context.Context) {
	defer close(m.done)

	// the first cycle runs immediately, timers only pace the follow-ups
	m.runCycle(context.Background(), false)

	var tick <-chan time.Time
	if m.cron == nil {
		ticker := time.NewTicker(m.config.Interval())
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			m.runCycle(context.Background(), false)
			// a tick that fired while the cycle ran is dropped, not queued
			select {
			case <-tick:
				m.journal.Event("Cycle skipped, previous cycle still in progress")
			default:
			}
		case <-m.trigger:
			m.runCycle(context.Background(), false)
		}
	}
}

// cronFire hands a schedule firing to the loop. A firing that lands while
// a cycle is in flight is dropped and journaled, never queued.
func (m *Monitor) cronFire() {
	select {
	case m.trigger <- struct{}{}:
	default:
		m.journal.Event("Cycle skipped, previous cycle still in progress")
	}
}

// runCycle is the heart of the loop: detect, dispatch, execute, advance.
// Cycles run on their own context so stopping the scheduler never aborts
// one halfway through a deployment.
func (m *Monitor) runCycle(ctx context.Context, forced bool) error {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	cycleID := uuid.New().String()[:8]
	log := m.log.With("cycle", cycleID)
	m.journal.Event("Cycle %s started", cycleID)

	if err := m.state.SetCycleInProgress(true); err != nil {
		log.Warnw("Failed to persist cycle marker", "error", err)
	}
	defer func() {
		if err := m.state.SetCycleInProgress(false); err != nil {
			log.Warnw("Failed to persist cycle marker", "error", err)
		}
	}()

	lastRef := m.state.LastKnownRef()
	det, err := m.detect(ctx, lastRef)
	if err != nil {
		// fail open, an unreachable remote must not kill the loop
		m.journal.Event("Change detection failed, will retry next interval: %v", err)
		log.Errorw("Change detection failed", "error", err)
		if forced {
			return err
		}
		return nil
	}

	switch {
	case det.adopted:
		if err := m.state.SetLastKnownRef(det.tip); err != nil {
			log.Errorw("Failed to persist adopted ref", "error", err)
		}
		m.journal.Event("Adopted %s as baseline, nothing to deploy", short(det.tip))
		return nil
	case det.noChange:
		m.journal.Event("No new changes detected")
		return nil
	}

	m.journal.Event("Detected %d changed path(s) between %s and %s", len(det.changes), short(lastRef), short(det.tip))

	if err := m.repo.Checkout(det.tip); err != nil {
		m.journal.Event("Checkout of %s failed, will retry next interval: %v", short(det.tip), err)
		log.Errorw("Checkout failed", "ref", det.tip, "error", err)
		if forced {
			return err
		}
		return nil
	}

	tasks := BuildTasks(det.changes, m.config.Targets, cycleID)
	if len(tasks) == 0 {
		m.journal.Event("Changes observed but no registered target affected")
	}

	for _, task := range tasks {
		m.journal.Event("Deploying %s, %d matching path(s)", task.Target.Name, len(task.Changes))
		result := m.runTask(ctx, task)
		m.journalResult(result)
		log.Infow("Task finished", "target", result.Target, "outcome", result.Outcome, "detail", result.Detail)
	}

	// the ref advances whether or not every task succeeded, a broken
	// target is retried when a later commit touches its paths again
	if err := m.state.SetLastKnownRef(det.tip); err != nil {
		log.Errorw("Failed to persist ref", "error", err)
	}
	m.journal.Event("Reference advanced to %s", short(det.tip))
	return nil
}

func (m *Monitor) journalResult(result DeploymentResult) {
	elapsed := result.FinishedAt.Sub(result.StartedAt).Round(time.Millisecond)
	switch result.Outcome {
	case OutcomeSucceeded:
		m.journal.Event("Target %s succeeded in %s", result.Target, elapsed)
	case OutcomeTimedOut:
		m.journal.Event("Target %s timed out after %s", result.Target, elapsed)
	default:
		m.journal.Event("Target %s failed: %s", result.Target, result.Detail)
	}
}

// short trims a commit hash down to journal friendly length.
func short(ref CommitRef) string {
	if len(ref) > 8 {
		return ref[:8]
	}
	return ref
}
