package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one push and pull cycle against the remote authority",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			report, syncErr := a.syncEngine().SyncNow(ctx)
			if err := render(cmd.OutOrStdout(), opts.output, report, func(w io.Writer) {
				fmt.Fprintf(w, "pushed %d, failed %d, held %d\n", report.Pushed, report.Failed, report.Held)
				fmt.Fprintf(w, "pulled %d: %d inserted, %d overwritten, %d unchanged, %d skipped, %d deferred\n",
					report.Pulled, report.Inserted, report.Overwritten, report.Unchanged, report.Skipped, report.Deferred)
				fmt.Fprintf(w, "pending %d, stuck %d (%s)\n", report.PendingAfter, report.Stuck, report.Duration)
			}); err != nil {
				return err
			}
			return syncErr
		},
	}
}
