package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ericfisherdev/tradeconfirm/internal/application"
	"github.com/ericfisherdev/tradeconfirm/internal/domain/model"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	ManualReview int
}

// statusOutput is the status command's result.
type statusOutput struct {
	Report       application.StatusReport `json:"report"`
	ManualReview []model.DedupEntry       `json:"manual_review,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show cursor, dedup and ledger state",
		Long: `Print the watermark, dedup and ledger counters from the local store. Does not
contact Reddit. Exits 1 when the status is degraded.

Example:
  tradeconfirm status
  tradeconfirm status --format json --manual-review 20`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().IntVar(&opts.ManualReview, "manual-review", 0, "also list up to N comments parked for manual review")

	return cmd
}

func runStatus(ctx context.Context, opts *StatusOptions, out io.Writer) (err error) {
	cfg, logger, err := loadConfig(opts.RootOptions, os.Stderr)
	if err != nil {
		return err
	}

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "open store", err)
	}
	defer closeWith(&err, st.close)

	cursor := application.NewWatermarkCursor(nil, st.watermark, nil, cfg.PageLimit, cfg.MaxPages, logger)
	svc := application.NewStatusService(cursor, st.dedup, st.ledger, nil, nil, cfg.Subreddit, cfg.EffectiveBotName())

	var result statusOutput
	result.Report, err = svc.Report(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "build status", err)
	}
	if opts.ManualReview > 0 {
		result.ManualReview, err = svc.ManualReview(ctx, opts.ManualReview)
		if err != nil {
			return WrapExitError(ExitFailure, "list manual review", err)
		}
	}

	if err := writeResult(out, opts.Format, result, func(w io.Writer) { printStatus(w, result) }); err != nil {
		return err
	}
	if result.Report.Status != "ok" {
		return NewExitError(ExitFailure, "status is "+result.Report.Status)
	}
	return nil
}

func printStatus(w io.Writer, s statusOutput) {
	r := s.Report
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Status:\t%s\n", r.Status)
	fmt.Fprintf(tw, "Subreddit:\tr/%s\n", r.Subreddit)
	fmt.Fprintf(tw, "Watermark:\t%s\n", orDash(r.Watermark))
	fmt.Fprintf(tw, "Gaps:\t%d\n", r.Gaps)
	fmt.Fprintf(tw, "Dedup:\tpending=%d done=%d valid=%d invalid=%d manual_review=%d\n",
		r.Dedup.Pending, r.Dedup.Done, r.Dedup.Valid, r.Dedup.Invalid, r.Dedup.ManualReview)
	fmt.Fprintf(tw, "Ledger:\taccepted=%d applied=%d untracked=%d\n",
		r.LedgerAccepted, r.LedgerApplied, r.LedgerUntracked)
	_ = tw.Flush()

	for _, e := range s.ManualReview {
		fmt.Fprintf(w, "  %s\t%s\tattempts=%d\n", e.CommentID, e.Outcome, e.Attempts)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
