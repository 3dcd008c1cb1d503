package fulfillment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vinlotto-backend/internal/events"
	"github.com/angelmondragon/vinlotto-backend/internal/storefront"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
)

type fakeGroups struct {
	groups   []storefront.FulfillmentGroup
	listErr  error
	mergeErr error
	merged   [][]storefront.MergeGroup
}

func (f *fakeGroups) ListFulfillmentGroups(context.Context, string) ([]storefront.FulfillmentGroup, error) {
	return f.groups, f.listErr
}

func (f *fakeGroups) MergeFulfillmentGroups(_ context.Context, groups []storefront.MergeGroup) error {
	f.merged = append(f.merged, groups)
	return f.mergeErr
}

type fakeShippingEditor struct {
	begun     int
	titles    []string
	lineIDs   []string
	committed int
	updateErr error
}

func (f *fakeShippingEditor) BeginEdit(context.Context, string) (*storefront.Edit, error) {
	f.begun++
	return &storefront.Edit{ID: "edit-1", ShippingLines: map[string]string{"ship-1": "calc-ship-1"}}, nil
}

func (f *fakeShippingEditor) UpdateShippingLine(_ context.Context, _, shippingLineID, title string) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.lineIDs = append(f.lineIDs, shippingLineID)
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeShippingEditor) CommitEdit(context.Context, string, bool) error {
	f.committed++
	return nil
}

var fulfillAt = time.Date(2026, 3, 15, 9, 0, 0, 0, time.UTC)

func openGroup(id, location, label string, qty int) storefront.FulfillmentGroup {
	at := fulfillAt
	return storefront.FulfillmentGroup{
		ID:            id,
		Status:        storefront.FulfillmentOpen,
		LocationID:    location,
		FulfillAt:     &at,
		DeliveryLabel: label,
		LineItems:     []storefront.FulfillmentLine{{ID: id + "-line", LineItemID: "li-" + id, Quantity: qty}},
	}
}

func newTestMerger(t *testing.T, groups *fakeGroups, editor *fakeShippingEditor) *Merger {
	t.Helper()
	m, err := NewMerger(MergerParams{Groups: groups, Editor: editor, GenericLabels: []string{"Shipping"}})
	require.NoError(t, err)
	return m
}

func orderWithShipping(title string) *storefront.Order {
	return &storefront.Order{ID: "o-1", ShippingLine: &storefront.ShippingLine{ID: "ship-1", Title: title}}
}

func TestMergeOrdersSpecificLabelFirst(t *testing.T) {
	groups := &fakeGroups{groups: []storefront.FulfillmentGroup{
		openGroup("fo-generic", "loc-1", "Shipping", 1),
		openGroup("fo-ground", "loc-1", "Ground", 2),
	}}
	sink := &events.Collector{}
	merger := newTestMerger(t, groups, &fakeShippingEditor{})

	out := merger.Consolidate(context.Background(), orderWithShipping("Ground"), sink)
	assert.Equal(t, ResultMerged, out.Result)
	assert.Equal(t, 2, out.Groups)
	assert.Equal(t, "Ground", out.Label)
	require.Len(t, groups.merged, 1)
	require.Len(t, groups.merged[0], 2)
	assert.Equal(t, "fo-ground", groups.merged[0][0].GroupID)
	assert.Equal(t, "fo-generic", groups.merged[0][1].GroupID)
	assert.True(t, sink.Has(enums.EventFulfillmentMerged))
}

func TestMergeRefusedAcrossLocations(t *testing.T) {
	groups := &fakeGroups{groups: []storefront.FulfillmentGroup{
		openGroup("fo-1", "loc-1", "Ground", 1),
		openGroup("fo-2", "loc-2", "Shipping", 1),
	}}
	sink := &events.Collector{}
	merger := newTestMerger(t, groups, &fakeShippingEditor{})

	out := merger.Consolidate(context.Background(), orderWithShipping("Ground"), sink)
	assert.Equal(t, ResultRefused, out.Result)
	assert.Empty(t, groups.merged)
	assert.True(t, sink.Has(enums.EventFulfillmentRefused))
}

func TestMergeRefusedAcrossTimes(t *testing.T) {
	later := fulfillAt.Add(24 * time.Hour)
	second := openGroup("fo-2", "loc-1", "Shipping", 1)
	second.FulfillAt = &later
	groups := &fakeGroups{groups: []storefront.FulfillmentGroup{openGroup("fo-1", "loc-1", "Ground", 1), second}}
	merger := newTestMerger(t, groups, &fakeShippingEditor{})

	out := merger.Consolidate(context.Background(), orderWithShipping("Ground"), nil)
	assert.Equal(t, ResultRefused, out.Result)
	assert.Empty(t, groups.merged)
}

func TestMergeRefusedForConflictingLabels(t *testing.T) {
	groups := &fakeGroups{groups: []storefront.FulfillmentGroup{
		openGroup("fo-1", "loc-1", "Ground", 1),
		openGroup("fo-2", "loc-1", "Express", 1),
	}}
	merger := newTestMerger(t, groups, &fakeShippingEditor{})

	out := merger.Consolidate(context.Background(), orderWithShipping("Ground"), nil)
	assert.Equal(t, ResultRefused, out.Result)
	assert.Contains(t, out.Reason, "conflicting")
	assert.Empty(t, groups.merged)
}

func TestMergeIgnoresClosedAndEmptyGroups(t *testing.T) {
	closed := openGroup("fo-closed", "loc-1", "Shipping", 1)
	closed.Status = storefront.FulfillmentClosed
	groups := &fakeGroups{groups: []storefront.FulfillmentGroup{
		openGroup("fo-1", "loc-1", "Ground", 1),
		openGroup("fo-empty", "loc-1", "Shipping", 0),
		closed,
	}}
	editor := &fakeShippingEditor{}
	merger := newTestMerger(t, groups, editor)

	out := merger.Consolidate(context.Background(), orderWithShipping("Ground"), nil)
	assert.Equal(t, ResultSkipped, out.Result)
	assert.Equal(t, 1, out.Groups)
	assert.Empty(t, groups.merged)
	assert.Empty(t, editor.titles)
}

func TestSingleGenericGroupIsRelabeled(t *testing.T) {
	closed := openGroup("fo-0", "loc-1", "Ground", 1)
	closed.Status = storefront.FulfillmentClosed
	groups := &fakeGroups{groups: []storefront.FulfillmentGroup{closed, openGroup("fo-1", "loc-1", "Shipping", 2)}}
	editor := &fakeShippingEditor{}
	sink := &events.Collector{}
	merger := newTestMerger(t, groups, editor)

	order := orderWithShipping("Shipping")
	out := merger.Consolidate(context.Background(), order, sink)
	assert.Equal(t, ResultRelabeled, out.Result)
	assert.Equal(t, []string{"Ground"}, editor.titles)
	assert.Equal(t, []string{"calc-ship-1"}, editor.lineIDs)
	assert.Equal(t, 1, editor.committed)
	assert.True(t, sink.Has(enums.EventFulfillmentRelabeled))

	order.ShippingLine.Title = "Ground"
	again := merger.Consolidate(context.Background(), order, nil)
	assert.Equal(t, ResultSkipped, again.Result)
	assert.Equal(t, 1, editor.begun)
	assert.Equal(t, 1, editor.committed)
}

func TestRelabelSkippedWhenShippingLineAlreadyMatches(t *testing.T) {
	groups := &fakeGroups{groups: []storefront.FulfillmentGroup{openGroup("fo-1", "loc-1", "Shipping", 2)}}
	editor := &fakeShippingEditor{}
	merger := newTestMerger(t, groups, editor)

	out := merger.Consolidate(context.Background(), orderWithShipping(" ground "), nil)
	assert.Equal(t, ResultSkipped, out.Result)
	assert.Equal(t, "shipping line already labeled", out.Reason)
	assert.Zero(t, editor.begun)
	assert.Empty(t, editor.titles)
}

func TestSingleGenericGroupWithoutTrueTitleIsSkipped(t *testing.T) {
	groups := &fakeGroups{groups: []storefront.FulfillmentGroup{openGroup("fo-1", "loc-1", "", 2)}}
	editor := &fakeShippingEditor{}
	merger := newTestMerger(t, groups, editor)

	out := merger.Consolidate(context.Background(), orderWithShipping("shipping"), nil)
	assert.Equal(t, ResultSkipped, out.Result)
	assert.Empty(t, editor.titles)
}

func TestFailuresAreReportedNotRaised(t *testing.T) {
	sink := &events.Collector{}
	listFail := newTestMerger(t, &fakeGroups{listErr: errors.New("timeout")}, &fakeShippingEditor{})
	out := listFail.Consolidate(context.Background(), orderWithShipping("Ground"), sink)
	assert.Equal(t, ResultFailed, out.Result)
	assert.Contains(t, out.Reason, "timeout")

	groups := &fakeGroups{
		groups: []storefront.FulfillmentGroup{
			openGroup("fo-1", "loc-1", "Ground", 1),
			openGroup("fo-2", "loc-1", "Shipping", 1),
		},
		mergeErr: errors.New("merge rejected"),
	}
	mergeFail := newTestMerger(t, groups, &fakeShippingEditor{})
	out = mergeFail.Consolidate(context.Background(), orderWithShipping("Ground"), sink)
	assert.Equal(t, ResultFailed, out.Result)
	assert.Len(t, groups.merged, 1)

	relabelFail := newTestMerger(t,
		&fakeGroups{groups: []storefront.FulfillmentGroup{openGroup("fo-1", "loc-1", "Shipping", 1)}},
		&fakeShippingEditor{updateErr: errors.New("edit locked")})
	out = relabelFail.Consolidate(context.Background(), orderWithShipping("Ground"), sink)
	assert.Equal(t, ResultFailed, out.Result)
	assert.True(t, sink.Has(enums.EventFulfillmentFailed))
}

func TestIsGeneric(t *testing.T) {
	merger := newTestMerger(t, &fakeGroups{}, &fakeShippingEditor{})
	assert.True(t, merger.IsGeneric(""))
	assert.True(t, merger.IsGeneric("  shipping "))
	assert.False(t, merger.IsGeneric("Ground"))
}
