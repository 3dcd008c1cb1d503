package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

type setQuantityOptions struct {
	*RootOptions
	Offer   string
	Variant string
	Total   int
	Source  string
}

func newManifestCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manifest",
		Short: "Manage offer pools",
	}
	cmd.AddCommand(newSetQuantityCommand(rootOpts, open))
	return cmd
}

func newSetQuantityCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	opts := &setQuantityOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "set-quantity",
		Short: "Resize the pool of one variant in an offer",
		Long: `Resize the pool of one variant in an offer.

Growing adds free items. Shrinking only removes free items, so the pool may
stay above --total while orders hold items.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			offerID, err := parseOfferID(opts.Offer)
			if err != nil {
				return err
			}
			if opts.Total < 0 {
				return fmt.Errorf("--total must be non-negative")
			}
			return withBackend(cmd, open, func(b Backend) error {
				res, err := b.SetQuantity(cmd.Context(), offerID, opts.Variant, opts.Total, opts.Source)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.RootOptions, res, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s: %d -> %d (target %d, claimed %d, added %d, removed %d)\n",
						res.VariantID, res.Before, res.After, res.Target, res.Claimed, res.Added, res.Removed)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.Offer, "offer", "", "offer id (required)")
	cmd.Flags().StringVar(&opts.Variant, "variant", "", "wine variant id (required)")
	cmd.Flags().IntVar(&opts.Total, "total", 0, "target pool size")
	cmd.Flags().StringVar(&opts.Source, "source", "lotteryctl", "provenance recorded on new items")
	_ = cmd.MarkFlagRequired("offer")
	_ = cmd.MarkFlagRequired("variant")
	_ = cmd.MarkFlagRequired("total")
	return cmd
}
