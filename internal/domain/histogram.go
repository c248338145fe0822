package domain

import "sort"

// Histogram maps an item id to the number of units assigned.
type Histogram map[string]int

func NewHistogram(ids []string) Histogram {
	h := make(Histogram, len(ids))
	for _, id := range ids {
		h[id]++
	}
	return h
}

// Merge adds every count of other into h.
func (h Histogram) Merge(other Histogram) {
	for id, n := range other {
		h[id] += n
	}
}

func (h Histogram) Count(id string) int { return h[id] }

// Units is the total number of assigned units.
func (h Histogram) Units() int {
	total := 0
	for _, n := range h {
		total += n
	}
	return total
}

// Expand converts the histogram back to a multiset, ids in lexical order.
func (h Histogram) Expand() []string {
	keys := make([]string, 0, len(h))
	for id, n := range h {
		if n > 0 {
			keys = append(keys, id)
		}
	}
	sort.Strings(keys)
	out := make([]string, 0, h.Units())
	for _, id := range keys {
		for i := 0; i < h[id]; i++ {
			out = append(out, id)
		}
	}
	return out
}
