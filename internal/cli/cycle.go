package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// NewCycleCommand creates the cycle command.
func NewCycleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cycle",
		Short: "Run one discovery and processing cycle",
		Long: `Discover new comments once, process them to completion and exit. Comments
that could not finish are left for the next cycle or serve run.

Example:
  tradeconfirm cycle
  tradeconfirm cycle --format json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(cmd.Context(), rootOpts, cmd.OutOrStdout())
		},
	}
}

func runCycle(ctx context.Context, opts *RootOptions, out io.Writer) (err error) {
	cfg, logger, err := loadConfig(opts, os.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeWith(&err, a.close)

	if err := a.threads.Refresh(ctx); err != nil {
		return WrapExitError(ExitFailure, "refresh thread context", err)
	}

	report, err := a.poll.RunOnce(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "cycle failed", err)
	}

	return writeResult(out, opts.Format, report, func(w io.Writer) {
		fmt.Fprintf(w, "Discovered %d, processed %d, deferred %d, failed %d in %s\n",
			report.Discovered, report.Processed, report.Deferred, report.Failed, report.Duration)
	})
}
