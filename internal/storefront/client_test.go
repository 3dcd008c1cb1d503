package storefront

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/vinlotto-backend/pkg/errors"
)

type recordedCall struct {
	Query     string
	Variables map[string]any
	Token     string
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []recordedCall
	responses map[string]string
	status    int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body graphQLRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Query: body.Query, Variables: body.Variables, Token: r.Header.Get(accessTokenHeader)})
	f.mu.Unlock()

	if f.status != 0 {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte("upstream broke"))
		return
	}
	for marker, resp := range f.responses {
		if strings.Contains(body.Query, marker) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(resp))
			return
		}
	}
	_, _ = w.Write([]byte(`{"errors":[{"message":"unexpected operation"}]}`))
}

func newTestClient(t *testing.T, api *fakeAPI, opts ...Option) *Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)
	client, err := NewClient(server.URL, "shpat_test", time.Second, append(opts, WithHTTPClient(server.Client()))...)
	require.NoError(t, err)
	return client
}

func TestNewClientRequiresEndpointAndToken(t *testing.T) {
	_, err := NewClient("", "token", 0)
	require.ErrorIs(t, err, errEndpointRequired)
	_, err = NewClient("https://shop.example/graphql.json", " ", 0)
	require.ErrorIs(t, err, errAccessTokenRequired)
}

func TestGetOrderMapsLineItems(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"order(id:": `{"data":{"order":{
			"id":"gid://shopify/Order/1","name":"#1001","cancelledAt":null,
			"shippingLine":{"id":"gid://shopify/ShippingLine/7","title":"Ground"},
			"lineItems":{"nodes":[
				{"id":"gid://shopify/LineItem/10","title":"Mystery Case","currentQuantity":2,"variant":{"id":"deal-v"},"discountedUnitPriceSet":{"shopMoney":{"amount":"49.50"}}},
				{"id":"gid://shopify/LineItem/11","title":"Custom","currentQuantity":1,"variant":null,"discountedUnitPriceSet":{"shopMoney":{"amount":"0.0"}}}
			]}}}}`,
	}}
	client := newTestClient(t, api)

	order, err := client.GetOrder(context.Background(), "gid://shopify/Order/1")
	require.NoError(t, err)
	assert.Equal(t, "#1001", order.Name)
	assert.False(t, order.Cancelled())
	require.NotNil(t, order.ShippingLine)
	assert.Equal(t, "Ground", order.ShippingLine.Title)
	require.Len(t, order.LineItems, 2)
	assert.Equal(t, "deal-v", order.LineItems[0].VariantID)
	assert.Equal(t, 2, order.LineItems[0].Quantity)
	assert.True(t, order.LineItems[0].DiscountedUnitPrice.Equal(decimal.RequireFromString("49.5")))
	assert.True(t, order.LineItems[0].Paid())
	assert.False(t, order.LineItems[1].Paid())
	assert.True(t, order.LineItems[1].Allocated())
	assert.Equal(t, "", order.LineItems[1].VariantID)

	require.Len(t, api.calls, 1)
	assert.Equal(t, "shpat_test", api.calls[0].Token)
	assert.Equal(t, "gid://shopify/Order/1", api.calls[0].Variables["id"])
}

func TestGetOrderNotFound(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{"order(id:": `{"data":{"order":null}}`}}
	client := newTestClient(t, api)

	_, err := client.GetOrder(context.Background(), "gid://shopify/Order/404")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestHTTPFailureIsRetryableDependencyError(t *testing.T) {
	api := &fakeAPI{status: http.StatusBadGateway}
	client := newTestClient(t, api)

	_, err := client.GetOrder(context.Background(), "gid://shopify/Order/1")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeDependency, pkgerrors.As(err).Code())
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Contains(t, err.Error(), "order request failed")
}

func TestGraphQLErrorsSurface(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{"order(id:": `{"errors":[{"message":"Throttled"}]}`}}
	client := newTestClient(t, api)

	_, err := client.GetOrder(context.Background(), "gid://shopify/Order/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Throttled")
	assert.True(t, pkgerrors.IsRetryable(err))
}

func TestUserErrorsAreConflicts(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"orderCancel(": `{"data":{"orderCancel":{"orderCancelUserErrors":[{"field":["orderId"],"message":"Order already cancelled"}]}}}`,
	}}
	client := newTestClient(t, api)

	err := client.CancelOrder(context.Background(), "gid://shopify/Order/1", "")
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	assert.False(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, CancelReasonInventory, api.calls[0].Variables["reason"])
}

func TestEditSequence(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"orderEditBegin(": `{"data":{"orderEditBegin":{"calculatedOrder":{"id":"gid://shopify/CalculatedOrder/5",
			"lineItems":{"nodes":[{"id":"gid://shopify/CalculatedLineItem/10"}]},
			"shippingLines":[{"id":"gid://shopify/CalculatedShippingLine/7"}]},"userErrors":[]}}}`,
		"orderEditAddVariant(":          `{"data":{"orderEditAddVariant":{"calculatedLineItem":{"id":"gid://shopify/CalculatedLineItem/99"},"userErrors":[]}}}`,
		"orderEditAddLineItemDiscount(": `{"data":{"orderEditAddLineItemDiscount":{"userErrors":[]}}}`,
		"orderEditSetQuantity(":         `{"data":{"orderEditSetQuantity":{"userErrors":[]}}}`,
		"orderEditUpdateShippingLine(":  `{"data":{"orderEditUpdateShippingLine":{"userErrors":[]}}}`,
		"orderEditCommit(":              `{"data":{"orderEditCommit":{"userErrors":[]}}}`,
	}}
	client := newTestClient(t, api)
	ctx := context.Background()

	edit, err := client.BeginEdit(ctx, "gid://shopify/Order/1")
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/CalculatedLineItem/10", edit.CalculatedLineID("gid://shopify/LineItem/10"))
	assert.Equal(t, "unknown", edit.CalculatedLineID("unknown"))
	assert.Equal(t, "gid://shopify/CalculatedShippingLine/7", edit.CalculatedShippingLineID("gid://shopify/ShippingLine/7"))

	lineID, err := client.AddVariant(ctx, edit.ID, "wine-a", 2)
	require.NoError(t, err)
	assert.Equal(t, "gid://shopify/CalculatedLineItem/99", lineID)
	require.NoError(t, client.AddLineDiscount(ctx, edit.ID, lineID, decimal.NewFromInt(100), "allocated"))
	require.NoError(t, client.SetQuantity(ctx, edit.ID, edit.CalculatedLineID("gid://shopify/LineItem/10"), 0))
	require.NoError(t, client.UpdateShippingLine(ctx, edit.ID, "gid://shopify/CalculatedShippingLine/7", "Ground"))
	require.NoError(t, client.CommitEdit(ctx, edit.ID, false))

	require.Len(t, api.calls, 6)
	discount := api.calls[2].Variables["discount"].(map[string]any)
	assert.Equal(t, float64(100), discount["percentValue"])
	assert.Equal(t, float64(2), api.calls[1].Variables["quantity"])
	assert.Equal(t, false, api.calls[5].Variables["notifyCustomer"])
}

func TestListFulfillmentGroups(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"fulfillmentOrders(": `{"data":{"order":{"fulfillmentOrders":{"nodes":[
			{"id":"fo-1","status":"OPEN","fulfillAt":"2026-03-14T00:00:00Z","assignedLocation":{"location":{"id":"loc-1"}},
			 "deliveryMethod":{"presentedName":"Ground"},
			 "lineItems":{"nodes":[{"id":"fol-1","totalQuantity":2,"lineItem":{"id":"li-1"}}]}},
			{"id":"fo-2","status":"CLOSED","fulfillAt":null,"assignedLocation":{"location":null},"deliveryMethod":null,
			 "lineItems":{"nodes":[]}}
		]}}}}`,
	}}
	client := newTestClient(t, api)

	groups, err := client.ListFulfillmentGroups(context.Background(), "gid://shopify/Order/1")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.True(t, groups[0].Open())
	assert.True(t, groups[0].HasQuantity())
	assert.Equal(t, "loc-1", groups[0].LocationID)
	assert.Equal(t, "Ground", groups[0].DeliveryLabel)
	require.NotNil(t, groups[0].FulfillAt)
	assert.Equal(t, "li-1", groups[0].LineItems[0].LineItemID)
	assert.False(t, groups[1].Open())
	assert.False(t, groups[1].HasQuantity())
	assert.Nil(t, groups[1].FulfillAt)
}

func TestMergeFulfillmentGroupsSendsAllLines(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"fulfillmentOrderMerge(": `{"data":{"fulfillmentOrderMerge":{"userErrors":[]}}}`,
	}}
	client := newTestClient(t, api)

	err := client.MergeFulfillmentGroups(context.Background(), []MergeGroup{
		{GroupID: "fo-1", Lines: []FulfillmentLine{{ID: "fol-1", Quantity: 2}}},
		{GroupID: "fo-2", Lines: []FulfillmentLine{{ID: "fol-2", Quantity: 1}}},
	})
	require.NoError(t, err)
	require.Len(t, api.calls, 1)
	intents := api.calls[0].Variables["intents"].([]any)
	merge := intents[0].(map[string]any)["mergeIntents"].([]any)
	require.Len(t, merge, 2)
	assert.Equal(t, "fo-1", merge[0].(map[string]any)["fulfillmentOrderId"])
}

func TestZeroInventory(t *testing.T) {
	api := &fakeAPI{responses: map[string]string{
		"productVariant(":         `{"data":{"productVariant":{"inventoryItem":{"id":"inv-1"}}}}`,
		"inventorySetQuantities(": `{"data":{"inventorySetQuantities":{"userErrors":[]}}}`,
	}}
	client := newTestClient(t, api, WithLocationID("loc-9"))

	require.NoError(t, client.ZeroInventory(context.Background(), "deal-v"))
	require.Len(t, api.calls, 2)
	input := api.calls[1].Variables["input"].(map[string]any)
	quantities := input["quantities"].([]any)
	entry := quantities[0].(map[string]any)
	assert.Equal(t, "inv-1", entry["inventoryItemId"])
	assert.Equal(t, "loc-9", entry["locationId"])
	assert.Equal(t, float64(0), entry["quantity"])
}

func TestZeroInventoryRequiresLocation(t *testing.T) {
	api := &fakeAPI{}
	client := newTestClient(t, api)

	err := client.ZeroInventory(context.Background(), "deal-v")
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	assert.Empty(t, api.calls)
}
