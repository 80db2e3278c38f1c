package cmd

import (
	"fmt"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/syncline/syncline/internal/monitor"
	"github.com/syncline/syncline/internal/state"
)

// stopWait must outlast a worst-case cycle, the signaled process finishes
// its in-flight deployments before exiting.
const stopWait = 60 * time.Second

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal the running monitor to stop",
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := buildFoundation()
		if err != nil {
			return err
		}

		snap := f.store.Snapshot()
		if snap.Phase != state.PhaseRunning || !state.PidAlive(snap.PID) {
			return monitor.ErrNotRunning
		}

		if err := syscall.Kill(snap.PID, syscall.SIGTERM); err != nil {
			return fmt.Errorf("failed to signal pid %d: %w", snap.PID, err)
		}
		fmt.Printf("Sent stop signal to pid %d, waiting for the current cycle to finish\n", snap.PID)

		deadline := time.Now().Add(stopWait)
		for time.Now().Before(deadline) {
			if !state.PidAlive(snap.PID) {
				fmt.Println("Monitor stopped")
				return nil
			}
			time.Sleep(500 * time.Millisecond)
		}
		return fmt.Errorf("monitor pid %d did not exit within %s", snap.PID, stopWait)
	},
}

func init() {
	rootCmd.AddCommand(stopCmd)
}
