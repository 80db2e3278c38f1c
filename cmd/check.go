package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/syncline/syncline/internal/monitor"
	"github.com/syncline/syncline/internal/state"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Run exactly one reconciliation cycle and exit",
	Long: `Check runs a single cycle outside the scheduler: detect, deploy what
changed, advance the reference. Unlike the background loop, a failing
change detection makes the command fail, which makes check usable from
CI pipelines and cron jobs. Check is refused while a monitor process is
live on the same data directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := buildFoundation()
		if err != nil {
			return err
		}

		// a live daemon owns the working copy and the state file, a
		// manual cycle must not race it
		snap := f.store.Snapshot()
		if snap.Phase == state.PhaseRunning && state.PidAlive(snap.PID) {
			return monitor.ErrAlreadyRunning
		}

		m, err := buildMonitor(f)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return m.RunOnce(ctx)
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
