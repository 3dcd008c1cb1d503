package linesync

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/vinlotto-backend/internal/events"
	"github.com/angelmondragon/vinlotto-backend/internal/storefront"
	"github.com/angelmondragon/vinlotto-backend/pkg/enums"
)

type fakeEditor struct {
	calls     []string
	addErr    error
	nextLine  int
	discounts []decimal.Decimal
}

func (f *fakeEditor) BeginEdit(_ context.Context, orderID string) (*storefront.Edit, error) {
	f.calls = append(f.calls, "begin:"+orderID)
	return &storefront.Edit{ID: "edit-1", LineItems: map[string]string{"line-a": "calc-a"}}, nil
}

func (f *fakeEditor) AddVariant(_ context.Context, _, variantID string, quantity int) (string, error) {
	f.calls = append(f.calls, fmt.Sprintf("add:%s:%d", variantID, quantity))
	if f.addErr != nil {
		return "", f.addErr
	}
	f.nextLine++
	return fmt.Sprintf("new-%d", f.nextLine), nil
}

func (f *fakeEditor) AddLineDiscount(_ context.Context, _, lineID string, percent decimal.Decimal, _ string) error {
	f.calls = append(f.calls, "discount:"+lineID)
	f.discounts = append(f.discounts, percent)
	return nil
}

func (f *fakeEditor) SetQuantity(_ context.Context, _, lineID string, quantity int) error {
	f.calls = append(f.calls, fmt.Sprintf("set:%s:%d", lineID, quantity))
	return nil
}

func (f *fakeEditor) CommitEdit(_ context.Context, editID string, _ bool) error {
	f.calls = append(f.calls, "commit:"+editID)
	return nil
}

func line(id, variant string, qty int) storefront.LineItem {
	return storefront.LineItem{ID: id, VariantID: variant, Quantity: qty, DiscountedUnitPrice: decimal.Zero}
}

func paidLine(id, variant string, qty int, price string) storefront.LineItem {
	return storefront.LineItem{ID: id, VariantID: variant, Quantity: qty, DiscountedUnitPrice: decimal.RequireFromString(price)}
}

func TestBuildPlanCases(t *testing.T) {
	tests := []struct {
		name    string
		lines   []storefront.LineItem
		desired map[string]int
		want    []Op
	}{
		{
			name:    "adds missing variant",
			desired: map[string]int{"A": 2},
			want:    []Op{{Kind: OpAdd, VariantID: "A", Quantity: 2}},
		},
		{
			name:    "in sync",
			lines:   []storefront.LineItem{line("l1", "A", 2)},
			desired: map[string]int{"A": 2},
		},
		{
			name:    "duplicates already summing to desired",
			lines:   []storefront.LineItem{line("l1", "A", 1), line("l2", "A", 1)},
			desired: map[string]int{"A": 2},
		},
		{
			name:    "updates one line and zeroes duplicates",
			lines:   []storefront.LineItem{line("l1", "A", 0), line("l2", "A", 1), line("l3", "A", 2)},
			desired: map[string]int{"A": 4},
			want: []Op{
				{Kind: OpSetQuantity, VariantID: "A", LineItemID: "l2", Quantity: 4},
				{Kind: OpSetQuantity, VariantID: "A", LineItemID: "l3"},
			},
		},
		{
			name:    "zeroes released variant",
			lines:   []storefront.LineItem{line("l1", "A", 1), line("l2", "A", 1)},
			desired: map[string]int{"A": 0},
			want: []Op{
				{Kind: OpSetQuantity, VariantID: "A", LineItemID: "l1"},
				{Kind: OpSetQuantity, VariantID: "A", LineItemID: "l2"},
			},
		},
		{
			name:    "ignores non-manifest lines",
			lines:   []storefront.LineItem{line("deal", "DEAL", 3)},
			desired: map[string]int{"A": 0},
		},
		{
			name:    "leaves paid pool variant lines alone",
			lines:   []storefront.LineItem{paidLine("deal", "DEAL", 1, "50.00"), paidLine("bought", "X", 2, "30.00")},
			desired: map[string]int{"X": 0, "Y": 1},
			want:    []Op{{Kind: OpAdd, VariantID: "Y", Quantity: 1}},
		},
		{
			name:    "adds allocated line beside a paid one",
			lines:   []storefront.LineItem{paidLine("bought", "X", 2, "30.00")},
			desired: map[string]int{"X": 1},
			want:    []Op{{Kind: OpAdd, VariantID: "X", Quantity: 1}},
		},
		{
			name:    "adds before zeroes",
			lines:   []storefront.LineItem{line("l1", "A", 1), line("l2", "C", 1)},
			desired: map[string]int{"A": 0, "B": 1, "C": 2},
			want: []Op{
				{Kind: OpAdd, VariantID: "B", Quantity: 1},
				{Kind: OpSetQuantity, VariantID: "C", LineItemID: "l2", Quantity: 2},
				{Kind: OpSetQuantity, VariantID: "A", LineItemID: "l1"},
			},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			plan := BuildPlan(tc.lines, tc.desired)
			if len(tc.want) == 0 {
				assert.True(t, plan.Empty(), "unexpected ops %+v", plan.Ops)
				return
			}
			assert.Equal(t, tc.want, plan.Ops)
		})
	}
}

func TestSyncWritesNothingWhenInSync(t *testing.T) {
	editor := &fakeEditor{}
	syncer, err := NewSyncer(editor)
	require.NoError(t, err)
	sink := &events.Collector{}

	order := &storefront.Order{ID: "o-1", LineItems: []storefront.LineItem{line("line-a", "A", 1)}}
	plan, err := syncer.Sync(context.Background(), order, map[string]int{"A": 1}, sink)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Empty(t, editor.calls)
	assert.True(t, sink.Has(enums.EventLinesInSync))
}

func TestSyncNeverEditsPaidLines(t *testing.T) {
	editor := &fakeEditor{}
	syncer, err := NewSyncer(editor)
	require.NoError(t, err)

	order := &storefront.Order{ID: "o-1", LineItems: []storefront.LineItem{
		paidLine("bought", "X", 2, "30.00"),
		line("line-x", "X", 1),
	}}
	plan, err := syncer.Sync(context.Background(), order, map[string]int{"X": 1}, nil)
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Empty(t, editor.calls)
}

func TestSyncAppliesPlanInOrder(t *testing.T) {
	editor := &fakeEditor{}
	syncer, err := NewSyncer(editor)
	require.NoError(t, err)
	sink := &events.Collector{}

	order := &storefront.Order{ID: "o-1", LineItems: []storefront.LineItem{line("line-a", "A", 2)}}
	_, err = syncer.Sync(context.Background(), order, map[string]int{"A": 0, "B": 2}, sink)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"begin:o-1",
		"add:B:2",
		"discount:new-1",
		"set:calc-a:0",
		"commit:edit-1",
	}, editor.calls)
	require.Len(t, editor.discounts, 1)
	assert.True(t, editor.discounts[0].Equal(decimal.NewFromInt(100)))
	assert.True(t, sink.Has(enums.EventLinesSynced))
}

func TestSyncReportsFailure(t *testing.T) {
	editor := &fakeEditor{addErr: errors.New("variant unavailable")}
	syncer, err := NewSyncer(editor)
	require.NoError(t, err)
	sink := &events.Collector{}

	order := &storefront.Order{ID: "o-1"}
	_, err = syncer.Sync(context.Background(), order, map[string]int{"B": 1}, sink)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "variant unavailable")
	assert.True(t, sink.Has(enums.EventLineSyncFailed))
	assert.NotContains(t, editor.calls, "commit:edit-1")
}
