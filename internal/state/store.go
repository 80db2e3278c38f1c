// Package state persists the monitor lifecycle across process restarts.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"
)

const stateFile = "monitor.state.json"

// Phase of the monitor lifecycle. Transitions only move forward within one
// process: idle until Start, running while armed, stopped after Stop.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhaseStopped Phase = "stopped"
)

// MonitorState is the persisted snapshot other processes read to answer
// status and stop requests.
type MonitorState struct {
	Phase           Phase     `json:"phase"`
	LastKnownRef    string    `json:"lastKnownRef"`
	IntervalMs      int       `json:"intervalMs"`
	CycleInProgress bool      `json:"cycleInProgress"`
	PID             int       `json:"pid"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// StoreIfc interface
type StoreIfc interface {
	Snapshot() MonitorState
	Phase() Phase
	LastKnownRef() string
	SetRunning(pid, intervalMs int) error
	SetPhase(phase Phase) error
	SetLastKnownRef(ref string) error
	SetCycleInProgress(inProgress bool) error
}

// store keeps the state in memory and mirrors every mutation to disk with
// an atomic replace.
type store struct {
	mu      sync.RWMutex
	dataDir string
	state   MonitorState
}

// NewStore loads the persisted state from dataDir, starting fresh when the
// file is missing or unreadable. A previous run's crash must never block a
// new one from starting.
func NewStore(dataDir string) (StoreIfc, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &store{
		dataDir: dataDir,
		state:   MonitorState{Phase: PhaseIdle},
	}
	s.load()
	return s, nil
}

func (s *store) load() {
	data, err := os.ReadFile(filepath.Join(s.dataDir, stateFile))
	if err != nil {
		return
	}

	var loaded MonitorState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return
	}
	s.state = loaded
}

// Snapshot returns a copy of the current state.
func (s *store) Snapshot() MonitorState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Phase returns the current lifecycle phase.
func (s *store) Phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Phase
}

// LastKnownRef returns the last commit the monitor reconciled against, or
// an empty string before the first observation.
func (s *store) LastKnownRef() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LastKnownRef
}

// SetRunning marks the monitor as running under the given pid in one
// persisted transition.
func (s *store) SetRunning(pid, intervalMs int) error {
	return s.update(func(state *MonitorState) {
		state.Phase = PhaseRunning
		state.PID = pid
		state.IntervalMs = intervalMs
		state.CycleInProgress = false
	})
}

// SetPhase records a lifecycle transition.
func (s *store) SetPhase(phase Phase) error {
	return s.update(func(state *MonitorState) {
		state.Phase = phase
	})
}

// SetLastKnownRef advances the reconciled baseline.
func (s *store) SetLastKnownRef(ref string) error {
	return s.update(func(state *MonitorState) {
		state.LastKnownRef = ref
	})
}

// SetCycleInProgress marks cycle boundaries.
func (s *store) SetCycleInProgress(inProgress bool) error {
	return s.update(func(state *MonitorState) {
		state.CycleInProgress = inProgress
	})
}

func (s *store) update(mutate func(*MonitorState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	mutate(&s.state)
	s.state.UpdatedAt = time.Now().UTC()
	return s.save()
}

func (s *store) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	tempFile := filepath.Join(s.dataDir, stateFile+".tmp")
	finalFile := filepath.Join(s.dataDir, stateFile)

	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}

	return os.Rename(tempFile, finalFile) // Atomic
}

// PidAlive reports whether a process with the given pid exists. EPERM
// counts as alive, the process is there even if we may not signal it.
func PidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, syscall.Signal(0))
	return err == nil || err == syscall.EPERM
}
