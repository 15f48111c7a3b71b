package vcm

import (
	"sort"

	"github.com/jsbattig/cidx/pkg/embedding"
)

// item pairs an input text with its original position, so packing can
// reorder for first-fit-decreasing without losing the caller's order.
type item struct {
	index int
	text  string
	cost  int
}

// batch is one sub-batch never exceeding the provider token cap.
type batch struct {
	items []item
	cost  int
}

// pack implements first-fit-decreasing bin packing over token cost, per
// spec.md §4.5. Any item whose own cost exceeds cap is returned separately
// in oversized rather than silently dropped.
func pack(texts []string, counter embedding.TokenCounter, tokenCap int) (batches []batch, oversized []item) {
	items := make([]item, len(texts))
	for i, text := range texts {
		items[i] = item{index: i, text: text, cost: counter.Count(text)}
	}

	sorted := make([]item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].cost > sorted[j].cost })

	var bins []batch
	for _, it := range sorted {
		if it.cost > tokenCap {
			oversized = append(oversized, it)
			continue
		}
		placed := false
		for i := range bins {
			if bins[i].cost+it.cost <= tokenCap {
				bins[i].items = append(bins[i].items, it)
				bins[i].cost += it.cost
				placed = true
				break
			}
		}
		if !placed {
			bins = append(bins, batch{items: []item{it}, cost: it.cost})
		}
	}
	return bins, oversized
}
