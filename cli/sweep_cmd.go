package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newSweepCmd(opts *rootOptions) *cobra.Command {
	var daemon bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove materialized views older than mv.maxAge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()

			m, err := opts.manager()
			if err != nil {
				return err
			}
			defer m.Close()

			if !m.Policy().ExpirationEnabled() {
				warnColor.Fprintln(w, "mv.maxAge is not set, nothing expires")
				return nil
			}

			if daemon {
				if err := m.StartSweeper(); err != nil {
					return err
				}

				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()

				<-ctx.Done()
				return nil
			}

			report, err := m.Sweep(cmd.Context())
			if err != nil {
				return err
			}

			printHeader(w, "sweep finished in %s", report.Duration)
			printKV(w, "checked", report.Checked)
			printKV(w, "expired", report.Expired)
			printKV(w, "removed", okColor.Sprint(report.Removed))
			if report.Skipped > 0 {
				printKV(w, "skipped", warnColor.Sprint(report.Skipped))
			}
			if report.Failed > 0 {
				printKV(w, "failed", errColor.Sprint(report.Failed))
				return fmt.Errorf("%d expired views could not be removed", report.Failed)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&daemon, "daemon", false, "keep running and sweep on mv.sweep_schedule")

	return cmd
}
