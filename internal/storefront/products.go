package storefront

import (
	"context"
	"strings"

	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
)

const variantInventoryQuery = `query VariantInventory($id: ID!) {
  productVariant(id: $id) { inventoryItem { id } }
}`

const inventorySetMutation = `mutation SetInventory($input: InventorySetQuantitiesInput!) {
  inventorySetQuantities(input: $input) {
    userErrors { field message }
  }
}`

// ZeroInventory sets the variant's available quantity at the configured
// location to zero.
func (c *Client) ZeroInventory(ctx context.Context, variantID string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "storefront client not configured")
	}
	if strings.TrimSpace(c.locationID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "inventory location is not configured")
	}
	var lookup struct {
		ProductVariant *struct {
			InventoryItem *struct {
				ID string `json:"id"`
			} `json:"inventoryItem"`
		} `json:"productVariant"`
	}
	if err := c.do(ctx, "productVariant", variantInventoryQuery, map[string]any{"id": variantID}, &lookup); err != nil {
		return err
	}
	if lookup.ProductVariant == nil || lookup.ProductVariant.InventoryItem == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "variant inventory item not found")
	}

	input := map[string]any{
		"name":                  "available",
		"reason":                "correction",
		"ignoreCompareQuantity": true,
		"quantities": []map[string]any{{
			"inventoryItemId": lookup.ProductVariant.InventoryItem.ID,
			"locationId":      c.locationID,
			"quantity":        0,
		}},
	}
	var data struct {
		Mutation struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"inventorySetQuantities"`
	}
	if err := c.do(ctx, "inventorySetQuantities", inventorySetMutation, map[string]any{"input": input}, &data); err != nil {
		return err
	}
	return checkUserErrors("inventorySetQuantities", data.Mutation.UserErrors)
}
