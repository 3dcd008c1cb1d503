package storefront

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order is the subset of a storefront order the engine reads.
type Order struct {
	ID           string
	Name         string
	CancelledAt  *time.Time
	LineItems    []LineItem
	ShippingLine *ShippingLine
}

func (o *Order) Cancelled() bool {
	return o != nil && o.CancelledAt != nil
}

// LineItem carries the current (post-edit) quantity of an order line.
type LineItem struct {
	ID                  string
	VariantID           string
	Title               string
	Quantity            int
	DiscountedUnitPrice decimal.Decimal
}

// Paid reports whether the line was bought at a positive price.
func (l LineItem) Paid() bool {
	return l.DiscountedUnitPrice.IsPositive()
}

// Allocated reports whether the line carries awarded manifest wine. The
// syncer adds those lines with a full discount, so any line the customer
// paid for is never one of them.
func (l LineItem) Allocated() bool {
	return !l.Paid()
}

type ShippingLine struct {
	ID    string
	Title string
}

// Edit is an open order edit session. Line and shipping ids of the order
// map to the calculated ids the edit mutations expect.
type Edit struct {
	ID            string
	LineItems     map[string]string
	ShippingLines map[string]string
}

// CalculatedLineID returns the calculated id for an order line, falling
// back to the order line id itself.
func (e *Edit) CalculatedLineID(lineItemID string) string {
	if e != nil {
		if id, ok := e.LineItems[lineItemID]; ok {
			return id
		}
	}
	return lineItemID
}

func (e *Edit) CalculatedShippingLineID(shippingLineID string) string {
	if e != nil {
		if id, ok := e.ShippingLines[shippingLineID]; ok {
			return id
		}
	}
	return shippingLineID
}

type FulfillmentStatus string

const (
	FulfillmentOpen       FulfillmentStatus = "OPEN"
	FulfillmentInProgress FulfillmentStatus = "IN_PROGRESS"
	FulfillmentClosed     FulfillmentStatus = "CLOSED"
)

// FulfillmentGroup is one shipment grouping of an order's lines.
type FulfillmentGroup struct {
	ID            string
	Status        FulfillmentStatus
	LocationID    string
	FulfillAt     *time.Time
	DeliveryLabel string
	LineItems     []FulfillmentLine
}

func (g FulfillmentGroup) Open() bool {
	return strings.EqualFold(string(g.Status), string(FulfillmentOpen))
}

// HasQuantity reports whether any line in the group still ships something.
func (g FulfillmentGroup) HasQuantity() bool {
	for _, line := range g.LineItems {
		if line.Quantity > 0 {
			return true
		}
	}
	return false
}

type FulfillmentLine struct {
	ID         string
	LineItemID string
	Quantity   int
}

// MergeGroup is one input of a merge call.
type MergeGroup struct {
	GroupID string
	Lines   []FulfillmentLine
}

// CancelReasonInventory is sent when an order cannot be allocated.
const CancelReasonInventory = "INVENTORY"
