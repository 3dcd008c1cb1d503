package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newLocksCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "locks",
		Short: "Inspect order locks",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sweep",
		Short: "Delete order locks older than the staleness window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withBackend(cmd, open, func(b Backend) error {
				n, err := b.SweepLocks(cmd.Context())
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), rootOpts, map[string]int64{"swept": n}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "swept %d stale locks\n", n)
					return err
				})
			})
		},
	})
	return cmd
}
