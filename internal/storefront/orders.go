package storefront

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
)

const orderQuery = `query Order($id: ID!) {
  order(id: $id) {
    id
    name
    cancelledAt
    shippingLine { id title }
    lineItems(first: 250) {
      nodes {
        id
        title
        currentQuantity
        variant { id }
        discountedUnitPriceSet { shopMoney { amount } }
      }
    }
  }
}`

type orderNode struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	CancelledAt  *time.Time `json:"cancelledAt"`
	ShippingLine *struct {
		ID    string `json:"id"`
		Title string `json:"title"`
	} `json:"shippingLine"`
	LineItems struct {
		Nodes []struct {
			ID              string `json:"id"`
			Title           string `json:"title"`
			CurrentQuantity int    `json:"currentQuantity"`
			Variant         *struct {
				ID string `json:"id"`
			} `json:"variant"`
			DiscountedUnitPriceSet struct {
				ShopMoney struct {
					Amount decimal.Decimal `json:"amount"`
				} `json:"shopMoney"`
			} `json:"discountedUnitPriceSet"`
		} `json:"nodes"`
	} `json:"lineItems"`
}

// GetOrder loads an order with its current line items.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	var data struct {
		Order *orderNode `json:"order"`
	}
	if err := c.do(ctx, "order", orderQuery, map[string]any{"id": orderID}, &data); err != nil {
		return nil, err
	}
	if data.Order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}

	node := data.Order
	order := &Order{
		ID:          node.ID,
		Name:        node.Name,
		CancelledAt: node.CancelledAt,
		LineItems:   make([]LineItem, 0, len(node.LineItems.Nodes)),
	}
	if node.ShippingLine != nil {
		order.ShippingLine = &ShippingLine{ID: node.ShippingLine.ID, Title: node.ShippingLine.Title}
	}
	for _, line := range node.LineItems.Nodes {
		item := LineItem{
			ID:                  line.ID,
			Title:               line.Title,
			Quantity:            line.CurrentQuantity,
			DiscountedUnitPrice: line.DiscountedUnitPriceSet.ShopMoney.Amount,
		}
		if line.Variant != nil {
			item.VariantID = line.Variant.ID
		}
		order.LineItems = append(order.LineItems, item)
	}
	return order, nil
}

const orderCancelMutation = `mutation Cancel($orderId: ID!, $reason: OrderCancelReason!) {
  orderCancel(orderId: $orderId, reason: $reason, refund: true, restock: true, notifyCustomer: true) {
    orderCancelUserErrors { field message }
  }
}`

// CancelOrder cancels the order with a refund and restock.
func (c *Client) CancelOrder(ctx context.Context, orderID, reason string) error {
	if strings.TrimSpace(reason) == "" {
		reason = CancelReasonInventory
	}
	var data struct {
		OrderCancel struct {
			UserErrors []userError `json:"orderCancelUserErrors"`
		} `json:"orderCancel"`
	}
	if err := c.do(ctx, "orderCancel", orderCancelMutation, map[string]any{"orderId": orderID, "reason": reason}, &data); err != nil {
		return err
	}
	return checkUserErrors("orderCancel", data.OrderCancel.UserErrors)
}

const orderEditBeginMutation = `mutation Begin($id: ID!) {
  orderEditBegin(id: $id) {
    calculatedOrder {
      id
      lineItems(first: 250) { nodes { id } }
      shippingLines { id }
    }
    userErrors { field message }
  }
}`

// BeginEdit opens an edit session on the order.
func (c *Client) BeginEdit(ctx context.Context, orderID string) (*Edit, error) {
	var data struct {
		OrderEditBegin struct {
			CalculatedOrder *struct {
				ID        string `json:"id"`
				LineItems struct {
					Nodes []struct {
						ID string `json:"id"`
					} `json:"nodes"`
				} `json:"lineItems"`
				ShippingLines []struct {
					ID string `json:"id"`
				} `json:"shippingLines"`
			} `json:"calculatedOrder"`
			UserErrors []userError `json:"userErrors"`
		} `json:"orderEditBegin"`
	}
	if err := c.do(ctx, "orderEditBegin", orderEditBeginMutation, map[string]any{"id": orderID}, &data); err != nil {
		return nil, err
	}
	if err := checkUserErrors("orderEditBegin", data.OrderEditBegin.UserErrors); err != nil {
		return nil, err
	}
	calculated := data.OrderEditBegin.CalculatedOrder
	if calculated == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "orderEditBegin returned no calculated order")
	}

	edit := &Edit{
		ID:            calculated.ID,
		LineItems:     make(map[string]string, len(calculated.LineItems.Nodes)),
		ShippingLines: make(map[string]string, len(calculated.ShippingLines)),
	}
	// Calculated ids share the numeric suffix of the order ids they shadow.
	for _, node := range calculated.LineItems.Nodes {
		edit.LineItems["gid://shopify/LineItem/"+numericID(node.ID)] = node.ID
	}
	for _, node := range calculated.ShippingLines {
		edit.ShippingLines["gid://shopify/ShippingLine/"+numericID(node.ID)] = node.ID
	}
	return edit, nil
}

const orderEditAddVariantMutation = `mutation AddVariant($id: ID!, $variantId: ID!, $quantity: Int!) {
  orderEditAddVariant(id: $id, variantId: $variantId, quantity: $quantity, allowDuplicates: true) {
    calculatedLineItem { id }
    userErrors { field message }
  }
}`

// AddVariant adds a new line and returns its calculated line id.
func (c *Client) AddVariant(ctx context.Context, editID, variantID string, quantity int) (string, error) {
	var data struct {
		OrderEditAddVariant struct {
			CalculatedLineItem *struct {
				ID string `json:"id"`
			} `json:"calculatedLineItem"`
			UserErrors []userError `json:"userErrors"`
		} `json:"orderEditAddVariant"`
	}
	vars := map[string]any{"id": editID, "variantId": variantID, "quantity": quantity}
	if err := c.do(ctx, "orderEditAddVariant", orderEditAddVariantMutation, vars, &data); err != nil {
		return "", err
	}
	if err := checkUserErrors("orderEditAddVariant", data.OrderEditAddVariant.UserErrors); err != nil {
		return "", err
	}
	if data.OrderEditAddVariant.CalculatedLineItem == nil {
		return "", pkgerrors.New(pkgerrors.CodeDependency, "orderEditAddVariant returned no line item")
	}
	return data.OrderEditAddVariant.CalculatedLineItem.ID, nil
}

const orderEditAddDiscountMutation = `mutation AddDiscount($id: ID!, $lineItemId: ID!, $discount: OrderEditAppliedDiscountInput!) {
  orderEditAddLineItemDiscount(id: $id, lineItemId: $lineItemId, discount: $discount) {
    userErrors { field message }
  }
}`

// AddLineDiscount applies a percentage discount to a calculated line.
func (c *Client) AddLineDiscount(ctx context.Context, editID, lineID string, percent decimal.Decimal, description string) error {
	var data struct {
		Mutation struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"orderEditAddLineItemDiscount"`
	}
	vars := map[string]any{
		"id":         editID,
		"lineItemId": lineID,
		"discount": map[string]any{
			"percentValue": percent.InexactFloat64(),
			"description":  description,
		},
	}
	if err := c.do(ctx, "orderEditAddLineItemDiscount", orderEditAddDiscountMutation, vars, &data); err != nil {
		return err
	}
	return checkUserErrors("orderEditAddLineItemDiscount", data.Mutation.UserErrors)
}

const orderEditSetQuantityMutation = `mutation SetQuantity($id: ID!, $lineItemId: ID!, $quantity: Int!) {
  orderEditSetQuantity(id: $id, lineItemId: $lineItemId, quantity: $quantity, restock: true) {
    userErrors { field message }
  }
}`

func (c *Client) SetQuantity(ctx context.Context, editID, lineID string, quantity int) error {
	var data struct {
		Mutation struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"orderEditSetQuantity"`
	}
	vars := map[string]any{"id": editID, "lineItemId": lineID, "quantity": quantity}
	if err := c.do(ctx, "orderEditSetQuantity", orderEditSetQuantityMutation, vars, &data); err != nil {
		return err
	}
	return checkUserErrors("orderEditSetQuantity", data.Mutation.UserErrors)
}

const orderEditUpdateShippingLineMutation = `mutation UpdateShipping($id: ID!, $shippingLineId: ID!, $shippingLine: OrderEditUpdateShippingLineInput!) {
  orderEditUpdateShippingLine(id: $id, shippingLineId: $shippingLineId, shippingLine: $shippingLine) {
    userErrors { field message }
  }
}`

// UpdateShippingLine retitles a calculated shipping line.
func (c *Client) UpdateShippingLine(ctx context.Context, editID, shippingLineID, title string) error {
	var data struct {
		Mutation struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"orderEditUpdateShippingLine"`
	}
	vars := map[string]any{
		"id":             editID,
		"shippingLineId": shippingLineID,
		"shippingLine":   map[string]any{"title": title},
	}
	if err := c.do(ctx, "orderEditUpdateShippingLine", orderEditUpdateShippingLineMutation, vars, &data); err != nil {
		return err
	}
	return checkUserErrors("orderEditUpdateShippingLine", data.Mutation.UserErrors)
}

const orderEditCommitMutation = `mutation Commit($id: ID!, $notifyCustomer: Boolean!) {
  orderEditCommit(id: $id, notifyCustomer: $notifyCustomer) {
    userErrors { field message }
  }
}`

func (c *Client) CommitEdit(ctx context.Context, editID string, notifyCustomer bool) error {
	var data struct {
		Mutation struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"orderEditCommit"`
	}
	vars := map[string]any{"id": editID, "notifyCustomer": notifyCustomer}
	if err := c.do(ctx, "orderEditCommit", orderEditCommitMutation, vars, &data); err != nil {
		return err
	}
	return checkUserErrors("orderEditCommit", data.Mutation.UserErrors)
}
