// Package reconcile derives in-use and available quantities of inventory
// items from the assignment multisets of active projects.
package reconcile

import (
	"runtime"

	"golang.org/x/sync/errgroup"

	"stageline/internal/domain"
)

// Quantities are the derived counts for one item. Assigned is the raw number
// of occurrences across active projects and may exceed Total.
type Quantities struct {
	ItemID    string `json:"item_id"`
	Total     int    `json:"total"`
	Assigned  int    `json:"assigned"`
	InUse     int    `json:"in_use"`
	Available int    `json:"available"`
}

// OverAllocated reports whether more units are assigned than exist.
func (q Quantities) OverAllocated() bool { return q.Assigned > q.Total }

// Reconcile counts item occurrences across the active projects in projects.
// Archived projects are skipped here, so callers may pass every project.
func Reconcile(item domain.InventoryItem, projects []domain.Project) Quantities {
	assigned := 0
	for _, p := range projects {
		if !p.Active() {
			continue
		}
		for _, id := range p.ItemIDs {
			if id == item.ID {
				assigned++
			}
		}
	}
	return quantities(item, assigned)
}

// Index is a precomputed histogram over every active project.
type Index struct {
	counts domain.Histogram
}

// NewIndex builds the histogram once so each item lookup is O(1).
func NewIndex(projects []domain.Project) Index {
	counts := domain.Histogram{}
	for _, p := range projects {
		if !p.Active() {
			continue
		}
		counts.Merge(p.Histogram())
	}
	return Index{counts: counts}
}

func (ix Index) Assigned(itemID string) int { return ix.counts.Count(itemID) }

func (ix Index) Quantities(item domain.InventoryItem) Quantities {
	return quantities(item, ix.counts.Count(item.ID))
}

// All reconciles items in parallel and returns results in input order.
func All(items []domain.InventoryItem, projects []domain.Project) []Quantities {
	ix := NewIndex(projects)
	out := make([]Quantities, len(items))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range items {
		g.Go(func() error {
			out[i] = ix.Quantities(items[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func quantities(item domain.InventoryItem, assigned int) Quantities {
	total := item.TotalQuantity
	if total < 0 {
		total = 0
	}
	inUse := assigned
	if inUse > total {
		inUse = total
	}
	available := total - inUse
	if available < 0 {
		available = 0
	}
	return Quantities{
		ItemID:    item.ID,
		Total:     total,
		Assigned:  assigned,
		InUse:     inUse,
		Available: available,
	}
}
