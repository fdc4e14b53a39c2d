package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the outbound change backlog and the last sync time",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, opts)
			if err != nil {
				return err
			}
			defer a.close(ctx)

			st, err := a.syncEngine().Status(ctx)
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output, st, func(w io.Writer) {
				last := "never"
				if st.LastSyncAt != nil {
					last = st.LastSyncAt.UTC().Format(time.RFC3339)
				}
				fmt.Fprintf(w, "last sync: %s\n", last)
				fmt.Fprintf(w, "pending:   %d\n", st.Pending)
				fmt.Fprintf(w, "stuck:     %d\n", st.Stuck)
			})
		},
	}
}
