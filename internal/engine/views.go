package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"stageline/internal/config"
	"stageline/internal/domain"
	"stageline/internal/invoice"
	"stageline/internal/location"
	"stageline/internal/reconcile"
	"stageline/internal/repo"
	"stageline/internal/staging"
)

// ItemView is an item together with its derived availability and location.
type ItemView struct {
	Item          domain.InventoryItem `json:"item"`
	Quantities    reconcile.Quantities `json:"quantities"`
	Location      domain.Location      `json:"location"`
	Display       string               `json:"display_location"`
	OverAllocated bool                 `json:"over_allocated"`
}

func newItemView(it domain.InventoryItem, projects []domain.Project) ItemView {
	return itemView(it, reconcile.Reconcile(it, projects), projects)
}

func newItemViews(items []domain.InventoryItem, projects []domain.Project) []ItemView {
	qs := reconcile.All(items, projects)
	views := make([]ItemView, len(items))
	for i, it := range items {
		views[i] = itemView(it, qs[i], projects)
	}
	return views
}

func itemView(it domain.InventoryItem, q reconcile.Quantities, projects []domain.Project) ItemView {
	loc := location.Resolve(it.ID, it.Location, projects, q.InUse, q.Total)
	return ItemView{
		Item:          it,
		Quantities:    q,
		Location:      loc,
		Display:       loc.String(),
		OverAllocated: q.OverAllocated(),
	}
}

func (e Engine) warnOverAllocated(ctx context.Context, views []ItemView) {
	for _, v := range views {
		if !v.OverAllocated {
			continue
		}
		e.log().Warn(e.log().WithFields(ctx, map[string]any{
			"item_id":  v.Item.ID,
			"total":    v.Quantities.Total,
			"assigned": v.Quantities.Assigned,
		}), "item over-allocated")
	}
}

// ItemLine is one distinct item assigned to a project.
type ItemLine struct {
	ItemID   string          `json:"item_id"`
	Name     string          `json:"name"`
	Units    int             `json:"units"`
	UnitCost decimal.Decimal `json:"unit_cost"`
	// Missing is set when the item no longer exists in inventory.
	Missing bool `json:"missing,omitempty"`
}

// ProjectView is a project with its lifecycle state and invoice.
type ProjectView struct {
	Project     domain.Project      `json:"project"`
	Label       string              `json:"label"`
	State       domain.StagingState `json:"state"`
	ContractEnd *time.Time          `json:"contract_end,omitempty"`
	Invoice     invoice.Invoice     `json:"invoice"`
	Items       []ItemLine          `json:"items"`
	Units       int                 `json:"units"`
}

func (e Engine) projectView(ctx context.Context, r repo.Repo, p domain.Project, s config.Settings) (ProjectView, error) {
	hist := p.Histogram()
	ids := make([]string, 0, len(hist))
	for id := range hist {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	lines := make([]ItemLine, 0, len(ids))
	for _, id := range ids {
		line := ItemLine{ItemID: id, Units: hist.Count(id)}
		it, err := r.GetItem(ctx, id)
		switch {
		case err == nil:
			line.Name = it.Name
			line.UnitCost = it.UnitCost
		case isNotFound(err):
			line.Missing = true
		default:
			return ProjectView{}, err
		}
		lines = append(lines, line)
	}
	return ProjectView{
		Project:     p,
		Label:       p.Label(),
		State:       staging.State(p, e.now()),
		ContractEnd: staging.ContractEnd(p, s.ContractDuration),
		Invoice:     invoice.Calculate(p, s),
		Items:       lines,
		Units:       hist.Units(),
	}, nil
}

// Invoice returns the invoice of one project.
func (e Engine) Invoice(ctx context.Context, projectID string) (invoice.Invoice, error) {
	var inv invoice.Invoice
	err := e.inTx(ctx, func(r repo.Repo) error {
		p, err := r.GetProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("project %s: %w", projectID, err)
		}
		s, err := settings(ctx, r)
		if err != nil {
			return err
		}
		inv = invoice.Calculate(p, s)
		return nil
	})
	return inv, err
}

// Dashboard holds inventory and pipeline KPIs.
type Dashboard struct {
	Items              int                         `json:"items"`
	Units              int                         `json:"units"`
	UnitsInUse         int                         `json:"units_in_use"`
	UnitsAvailable     int                         `json:"units_available"`
	OverAllocatedItems []string                    `json:"over_allocated_items"`
	Projects           map[domain.StagingState]int `json:"projects"`
	PipelineRevenue    decimal.Decimal             `json:"pipeline_revenue"`
}

func (e Engine) Dashboard(ctx context.Context) (Dashboard, error) {
	var items []domain.InventoryItem
	var projects []domain.Project
	var s config.Settings
	err := e.inTx(ctx, func(r repo.Repo) error {
		var err error
		if items, err = r.ListItems(ctx, repo.ItemFilters{}); err != nil {
			return err
		}
		if projects, err = r.ListProjects(ctx, ""); err != nil {
			return err
		}
		s, err = settings(ctx, r)
		return err
	})
	if err != nil {
		return Dashboard{}, err
	}
	d := Dashboard{
		OverAllocatedItems: []string{},
		Projects: map[domain.StagingState]int{
			domain.StagingPending:  0,
			domain.StagingUpcoming: 0,
			domain.StagingStaged:   0,
			domain.StagingArchived: 0,
		},
		PipelineRevenue: decimal.Zero,
	}
	views := newItemViews(items, projects)
	e.warnOverAllocated(ctx, views)
	for _, v := range views {
		d.Items++
		d.Units += v.Quantities.Total
		d.UnitsInUse += v.Quantities.InUse
		d.UnitsAvailable += v.Quantities.Available
		if v.OverAllocated {
			d.OverAllocatedItems = append(d.OverAllocatedItems, v.Item.ID)
		}
	}
	today := e.now()
	for _, p := range projects {
		d.Projects[staging.State(p, today)]++
		if p.Active() {
			d.PipelineRevenue = d.PipelineRevenue.Add(invoice.Total(p, s))
		}
	}
	return d, nil
}
