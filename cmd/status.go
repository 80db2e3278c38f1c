package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/syncline/syncline/internal/state"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the monitor state and recent journal entries",
	// status is informational, it never fails the caller
	Run: func(cmd *cobra.Command, args []string) {
		f, err := buildFoundation()
		if err != nil {
			fmt.Printf("Status unavailable: %v\n", err)
			return
		}

		snap := f.store.Snapshot()
		lastRef := snap.LastKnownRef
		if lastRef == "" {
			lastRef = "none"
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Phase:\t%s\n", snap.Phase)
		if snap.Phase == state.PhaseRunning {
			live := "no"
			if state.PidAlive(snap.PID) {
				live = "yes"
			}
			fmt.Fprintf(w, "PID:\t%d (live: %s)\n", snap.PID, live)
		}
		fmt.Fprintf(w, "Last known ref:\t%s\n", lastRef)
		fmt.Fprintf(w, "Interval:\t%dms\n", snap.IntervalMs)
		fmt.Fprintf(w, "Cycle in progress:\t%v\n", snap.CycleInProgress)
		if !snap.UpdatedAt.IsZero() {
			fmt.Fprintf(w, "Updated:\t%s\n", snap.UpdatedAt.Format("2006-01-02 15:04:05 MST"))
		}
		w.Flush()

		entries, err := f.journal.Tail(10)
		if err != nil || len(entries) == 0 {
			return
		}
		fmt.Println("\nRecent activity:")
		for _, line := range entries {
			fmt.Println(line)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
