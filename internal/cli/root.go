package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string
}

var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the lotteryctl command tree.
func NewRootCommand(open BackendFactory) *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lotteryctl",
		Short: "Operate wine lottery offers, pools and orders",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(newOfferCommand(opts, open))
	cmd.AddCommand(newManifestCommand(opts, open))
	cmd.AddCommand(newOrderCommand(opts, open))
	cmd.AddCommand(newLocksCommand(opts, open))

	return cmd
}

// write prints v as indented JSON or through text.
func write(w io.Writer, opts *RootOptions, v any, text func(io.Writer) error) error {
	if opts.Format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return text(w)
}
