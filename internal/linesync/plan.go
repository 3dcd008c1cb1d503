package linesync

import (
	"sort"

	"github.com/angelmondragon/vinlotto-backend/internal/storefront"
)

type OpKind string

const (
	OpAdd         OpKind = "add"
	OpSetQuantity OpKind = "set_quantity"
)

// Op is one edit against the order's lines.
type Op struct {
	Kind       OpKind `json:"kind"`
	VariantID  string `json:"variant_id"`
	LineItemID string `json:"line_item_id,omitempty"`
	Quantity   int    `json:"quantity"`
}

// Plan is an ordered list of edits: adds first, then non-zero quantity
// changes, then lines set to zero.
type Plan struct {
	Ops []Op `json:"ops"`
}

func (p Plan) Empty() bool { return len(p.Ops) == 0 }

// Count returns how many ops of kind the plan holds.
func (p Plan) Count(kind OpKind) int {
	n := 0
	for _, op := range p.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// BuildPlan diffs the order's allocated lines against the desired count per
// manifest variant. Only variants present in desired are considered; a
// variant with desired count zero has all its allocated lines zeroed. Paid
// lines are never counted or edited, even for a pool variant.
func BuildPlan(lines []storefront.LineItem, desired map[string]int) Plan {
	byVariant := map[string][]storefront.LineItem{}
	for _, line := range lines {
		if _, ok := desired[line.VariantID]; !ok || !line.Allocated() {
			continue
		}
		byVariant[line.VariantID] = append(byVariant[line.VariantID], line)
	}

	variants := make([]string, 0, len(desired))
	for variant := range desired {
		variants = append(variants, variant)
	}
	sort.Strings(variants)

	var adds, updates, zeros []Op
	for _, variant := range variants {
		want := desired[variant]
		if want < 0 {
			want = 0
		}
		existing := byVariant[variant]
		have := 0
		for _, line := range existing {
			have += line.Quantity
		}

		if len(existing) == 0 {
			if want > 0 {
				adds = append(adds, Op{Kind: OpAdd, VariantID: variant, Quantity: want})
			}
			continue
		}
		if have == want {
			continue
		}
		if want == 0 {
			for _, line := range existing {
				if line.Quantity != 0 {
					zeros = append(zeros, Op{Kind: OpSetQuantity, VariantID: variant, LineItemID: line.ID})
				}
			}
			continue
		}

		keep := primaryLine(existing)
		if keep.Quantity != want {
			updates = append(updates, Op{Kind: OpSetQuantity, VariantID: variant, LineItemID: keep.ID, Quantity: want})
		}
		for _, line := range existing {
			if line.ID != keep.ID && line.Quantity != 0 {
				zeros = append(zeros, Op{Kind: OpSetQuantity, VariantID: variant, LineItemID: line.ID})
			}
		}
	}

	ops := make([]Op, 0, len(adds)+len(updates)+len(zeros))
	ops = append(ops, adds...)
	ops = append(ops, updates...)
	ops = append(ops, zeros...)
	return Plan{Ops: ops}
}

// primaryLine picks the first line still carrying quantity, or the first
// line when all are zero.
func primaryLine(lines []storefront.LineItem) storefront.LineItem {
	for _, line := range lines {
		if line.Quantity > 0 {
			return line
		}
	}
	return lines[0]
}
