package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/tradeconfirm/internal/application"
)

// RotateOptions holds flags for the rotate command.
type RotateOptions struct {
	*RootOptions
	Lock bool
}

// rotateOutput is the rotate command's result.
type rotateOutput struct {
	Rotation application.RotationResult `json:"rotation"`
	Locked   *int                       `json:"locked,omitempty"`
}

// NewRotateCommand creates the rotate command.
func NewRotateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RotateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Create this month's confirmation thread",
		Long: `Create and sticky this month's confirmation thread if it does not exist yet.
With --lock, also lock every earlier thread that is not stickied.

Example:
  tradeconfirm rotate
  tradeconfirm rotate --lock`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRotate(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&opts.Lock, "lock", false, "also lock previous threads")

	return cmd
}

func runRotate(ctx context.Context, opts *RotateOptions, out io.Writer) (err error) {
	cfg, logger, err := loadConfig(opts.RootOptions, os.Stderr)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeWith(&err, a.close)

	var result rotateOutput
	result.Rotation, err = a.threads.RotateMonthly(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "rotation failed", err)
	}
	if opts.Lock {
		n, err := a.threads.LockPrevious(ctx)
		if err != nil {
			return WrapExitError(ExitFailure, "lock failed", err)
		}
		result.Locked = &n
	}

	return writeResult(out, opts.Format, result, func(w io.Writer) {
		verb := "Found existing"
		if result.Rotation.Created {
			verb = "Created"
		}
		fmt.Fprintf(w, "%s %s thread %s\n", verb, result.Rotation.Period, result.Rotation.SubmissionID)
		if result.Locked != nil {
			fmt.Fprintf(w, "Locked %d previous threads\n", *result.Locked)
		}
	})
}
