package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/vinlotto-backend/internal/consumer"
	"github.com/angelmondragon/vinlotto-backend/internal/processing"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
)

type repickOptions struct {
	*RootOptions
	Operator string
}

func newOrderCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Process orders",
	}
	cmd.AddCommand(newOrderProcessCommand(rootOpts, open))
	cmd.AddCommand(newOrderRepickCommand(rootOpts, open))
	cmd.AddCommand(newOrderEnqueueCommand(rootOpts, open))
	return cmd
}

func newOrderProcessCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "process <order-id>",
		Short: "Reconcile an order now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOrder(cmd, rootOpts, open, processing.Trigger{
				OrderID: strings.TrimSpace(args[0]),
				Source:  enums.TriggerSourceOperator,
			})
		},
	}
}

func newOrderRepickCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	opts := &repickOptions{RootOptions: rootOpts}
	cmd := &cobra.Command{
		Use:   "repick <order-id>",
		Short: "Release and redraw every item the order holds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			operator := strings.TrimSpace(opts.Operator)
			if operator == "" {
				return fmt.Errorf("--operator is required")
			}
			return runOrder(cmd, rootOpts, open, processing.Trigger{
				OrderID:     strings.TrimSpace(args[0]),
				Source:      enums.TriggerSourceOperator,
				ForceRepick: true,
				Operator:    operator,
			})
		},
	}
	cmd.Flags().StringVar(&opts.Operator, "operator", "", "operator requesting the repick (required)")
	return cmd
}

func newOrderEnqueueCommand(rootOpts *RootOptions, open BackendFactory) *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue <order-id>",
		Short: "Publish an order event for the worker to process",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			event := consumer.OrderEvent{OrderID: strings.TrimSpace(args[0]), Topic: "lotteryctl/enqueue"}
			return withBackend(cmd, open, func(b Backend) error {
				id, err := b.EnqueueOrder(cmd.Context(), event)
				if err != nil {
					return err
				}
				return write(cmd.OutOrStdout(), rootOpts, map[string]string{"order_id": event.OrderID, "message_id": id}, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "enqueued order %s as message %s\n", event.OrderID, id)
					return err
				})
			})
		},
	}
}

func runOrder(cmd *cobra.Command, rootOpts *RootOptions, open BackendFactory, trigger processing.Trigger) error {
	return withBackend(cmd, open, func(b Backend) error {
		res, err := b.ProcessOrder(cmd.Context(), trigger)
		if err != nil {
			return err
		}
		return write(cmd.OutOrStdout(), rootOpts, res, func(w io.Writer) error {
			return writeResultText(w, res)
		})
	})
}

func writeResultText(w io.Writer, res processing.Result) error {
	if _, err := fmt.Fprintf(w, "run %s: order %s %s\n", res.RunID, res.OrderID, res.Outcome); err != nil {
		return err
	}
	for _, offer := range res.Offers {
		if _, err := fmt.Fprintf(w, "  offer %s: owed %d held %d delta %d action %s claimed %d released %d\n",
			offer.OfferID, offer.Owed, offer.Held, offer.Delta, offer.Action,
			offer.Allocation.Claimed, offer.Allocation.Released); err != nil {
			return err
		}
	}
	if res.LineSyncErr != "" {
		if _, err := fmt.Fprintf(w, "  line sync failed: %s\n", res.LineSyncErr); err != nil {
			return err
		}
	}
	if res.Fulfillment != nil {
		if _, err := fmt.Fprintf(w, "  fulfillment: %s %s\n", res.Fulfillment.Result, res.Fulfillment.Reason); err != nil {
			return err
		}
	}
	return nil
}
