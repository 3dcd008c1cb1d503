package storefront

import (
	"context"
	"time"
)

const fulfillmentOrdersQuery = `query FulfillmentOrders($id: ID!) {
  order(id: $id) {
    fulfillmentOrders(first: 50) {
      nodes {
        id
        status
        fulfillAt
        assignedLocation { location { id } }
        deliveryMethod { presentedName }
        lineItems(first: 250) {
          nodes { id totalQuantity lineItem { id } }
        }
      }
    }
  }
}`

// ListFulfillmentGroups returns every fulfillment group of the order in
// the order the storefront reports them.
func (c *Client) ListFulfillmentGroups(ctx context.Context, orderID string) ([]FulfillmentGroup, error) {
	var data struct {
		Order *struct {
			FulfillmentOrders struct {
				Nodes []struct {
					ID               string     `json:"id"`
					Status           string     `json:"status"`
					FulfillAt        *time.Time `json:"fulfillAt"`
					AssignedLocation struct {
						Location *struct {
							ID string `json:"id"`
						} `json:"location"`
					} `json:"assignedLocation"`
					DeliveryMethod *struct {
						PresentedName string `json:"presentedName"`
					} `json:"deliveryMethod"`
					LineItems struct {
						Nodes []struct {
							ID            string `json:"id"`
							TotalQuantity int    `json:"totalQuantity"`
							LineItem      struct {
								ID string `json:"id"`
							} `json:"lineItem"`
						} `json:"nodes"`
					} `json:"lineItems"`
				} `json:"nodes"`
			} `json:"fulfillmentOrders"`
		} `json:"order"`
	}
	if err := c.do(ctx, "fulfillmentOrders", fulfillmentOrdersQuery, map[string]any{"id": orderID}, &data); err != nil {
		return nil, err
	}
	if data.Order == nil {
		return nil, nil
	}

	nodes := data.Order.FulfillmentOrders.Nodes
	groups := make([]FulfillmentGroup, 0, len(nodes))
	for _, node := range nodes {
		group := FulfillmentGroup{
			ID:        node.ID,
			Status:    FulfillmentStatus(node.Status),
			FulfillAt: node.FulfillAt,
			LineItems: make([]FulfillmentLine, 0, len(node.LineItems.Nodes)),
		}
		if node.AssignedLocation.Location != nil {
			group.LocationID = node.AssignedLocation.Location.ID
		}
		if node.DeliveryMethod != nil {
			group.DeliveryLabel = node.DeliveryMethod.PresentedName
		}
		for _, line := range node.LineItems.Nodes {
			group.LineItems = append(group.LineItems, FulfillmentLine{
				ID:         line.ID,
				LineItemID: line.LineItem.ID,
				Quantity:   line.TotalQuantity,
			})
		}
		groups = append(groups, group)
	}
	return groups, nil
}

const fulfillmentOrderMergeMutation = `mutation Merge($intents: [FulfillmentOrderMergeInput!]!) {
  fulfillmentOrderMerge(fulfillmentOrderMergeInputs: $intents) {
    userErrors { field message }
  }
}`

// MergeFulfillmentGroups merges the given groups in one call. The first
// group is the surviving one.
func (c *Client) MergeFulfillmentGroups(ctx context.Context, groups []MergeGroup) error {
	intents := make([]map[string]any, 0, len(groups))
	for _, group := range groups {
		lines := make([]map[string]any, 0, len(group.Lines))
		for _, line := range group.Lines {
			lines = append(lines, map[string]any{"id": line.ID, "quantity": line.Quantity})
		}
		intents = append(intents, map[string]any{
			"fulfillmentOrderId":        group.GroupID,
			"fulfillmentOrderLineItems": lines,
		})
	}
	vars := map[string]any{
		"intents": []map[string]any{{"mergeIntents": intents}},
	}
	var data struct {
		Mutation struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"fulfillmentOrderMerge"`
	}
	if err := c.do(ctx, "fulfillmentOrderMerge", fulfillmentOrderMergeMutation, vars, &data); err != nil {
		return err
	}
	return checkUserErrors("fulfillmentOrderMerge", data.Mutation.UserErrors)
}
