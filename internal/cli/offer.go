package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/angelmondragon/vinlotto-backend/internal/offers"
)

type offerCreateOptions struct {
	*RootOptions
	DealVariant string
	DealProduct string
	Name        string
	StoreID     string
	SaleEndsAt  string
}

func newOfferCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "offer",
		Short: "Create, archive and delete offers",
	}
	cmd.AddCommand(newOfferCreateCommand(rootOpts, open))
	cmd.AddCommand(newOfferArchiveCommand(rootOpts, open))
	cmd.AddCommand(newOfferDeleteCommand(rootOpts, open))
	return cmd
}

func newOfferCreateCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	opts := &offerCreateOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an offer for a deal variant",
		Example: `  lotteryctl offer create --deal-variant gid://shopify/ProductVariant/42 \
    --name "Cellar Lottery" --sale-ends-at 2026-12-01T00:00:00Z`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input := offers.CreateOfferInput{
				StoreID:       opts.StoreID,
				DealVariantID: opts.DealVariant,
				DealProductID: opts.DealProduct,
				Name:          opts.Name,
			}
			if raw := strings.TrimSpace(opts.SaleEndsAt); raw != "" {
				at, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					return fmt.Errorf("invalid --sale-ends-at: %w", err)
				}
				at = at.UTC()
				input.SaleEndsAt = &at
			}
			return withBackend(cmd, open, func(b Backend) error {
				offer, err := b.CreateOffer(cmd.Context(), input)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), opts.RootOptions, offer, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "created offer %s (%s) for %s\n", offer.ID, offer.Name, offer.DealVariantID)
					return err
				})
			})
		},
	}
	cmd.Flags().StringVar(&opts.DealVariant, "deal-variant", "", "storefront variant id of the deal (required)")
	cmd.Flags().StringVar(&opts.DealProduct, "deal-product", "", "storefront product id of the deal")
	cmd.Flags().StringVar(&opts.Name, "name", "", "offer name (required)")
	cmd.Flags().StringVar(&opts.StoreID, "store", "", "owning store id")
	cmd.Flags().StringVar(&opts.SaleEndsAt, "sale-ends-at", "", "end of the sale window (RFC3339)")
	_ = cmd.MarkFlagRequired("deal-variant")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newOfferArchiveCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "archive <offer-id>",
		Short: "Archive an offer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOfferID(args[0])
			if err != nil {
				return err
			}
			return withBackend(cmd, open, func(b Backend) error {
				offer, err := b.ArchiveOffer(cmd.Context(), id)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), rootOpts, offer, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "archived offer %s\n", offer.ID)
					return err
				})
			})
		},
	}
}

func newOfferDeleteCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <offer-id>",
		Short: "Delete an offer with no claimed items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseOfferID(args[0])
			if err != nil {
				return err
			}
			return withBackend(cmd, open, func(b Backend) error {
				if err := b.DeleteOffer(cmd.Context(), id); err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), rootOpts, map[string]any{"deleted": id}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "deleted offer %s\n", id)
					return err
				})
			})
		},
	}
}

func parseOfferID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid offer id %q: %w", raw, err)
	}
	return id, nil
}
