package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the reconciliation loop in the foreground",
	Long: `Start runs one cycle immediately, then keeps reconciling on the
configured interval or cron schedule until the process receives SIGINT or
SIGTERM. A second start against the same data directory is refused while
the first process is alive.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := buildFoundation()
		if err != nil {
			return err
		}

		m, err := buildMonitor(f)
		if err != nil {
			return err
		}

		if err := m.Start(context.Background()); err != nil {
			return err
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		f.log.Infow("Signal received, stopping", "signal", sig.String())

		m.Stop()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd)
}
