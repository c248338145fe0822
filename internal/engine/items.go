package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/repo"
)

type ItemCreateOptions struct {
	ID            string
	Name          string
	Category      string
	Tags          []string
	TotalQuantity int
	Location      string
	UnitCost      decimal.Decimal
	ImageURL      string
	Notes         string
	ActorID       string
}

func (e Engine) CreateItem(ctx context.Context, opts ItemCreateOptions) (domain.InventoryItem, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.UnitCost.IsNegative() {
		return domain.InventoryItem{}, fmt.Errorf("%w: unit cost must not be negative", ErrInvalid)
	}
	now := e.stamp()
	it := domain.InventoryItem{
		ID:            opts.ID,
		Name:          strings.TrimSpace(opts.Name),
		Category:      opts.Category,
		Tags:          opts.Tags,
		TotalQuantity: opts.TotalQuantity,
		Location:      opts.Location,
		UnitCost:      opts.UnitCost,
		ImageURL:      opts.ImageURL,
		Notes:         opts.Notes,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := validateStruct(it); err != nil {
		return domain.InventoryItem{}, err
	}
	err := e.inTx(ctx, func(r repo.Repo) error {
		if _, err := r.GetItem(ctx, it.ID); err == nil {
			return fmt.Errorf("item %s: %w", it.ID, ErrAlreadyExists)
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}
		if err := r.PutItem(ctx, it); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
		_, err := e.events().Append(ctx, r, "item.create", "item", it.ID, opts.ActorID, events.EventPayload{
			"name": it.Name, "total_quantity": it.TotalQuantity,
		})
		return err
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	return it, nil
}

// ItemUpdateOptions carries the fields to change; nil fields are left alone.
type ItemUpdateOptions struct {
	ID            string
	Name          *string
	Category      *string
	Tags          *[]string
	TotalQuantity *int
	Location      *string
	UnitCost      *decimal.Decimal
	ImageURL      *string
	Notes         *string
	ActorID       string
}

func (e Engine) UpdateItem(ctx context.Context, opts ItemUpdateOptions) (domain.InventoryItem, error) {
	var it domain.InventoryItem
	changed := map[string]any{}
	var assigned int
	err := e.inTx(ctx, func(r repo.Repo) error {
		var err error
		it, err = r.GetItem(ctx, opts.ID)
		if err != nil {
			return fmt.Errorf("item %s: %w", opts.ID, err)
		}
		if opts.Name != nil {
			it.Name = strings.TrimSpace(*opts.Name)
			changed["name"] = it.Name
		}
		if opts.Category != nil {
			it.Category = *opts.Category
			changed["category"] = it.Category
		}
		if opts.Tags != nil {
			it.Tags = *opts.Tags
			changed["tags"] = it.Tags
		}
		if opts.TotalQuantity != nil {
			it.TotalQuantity = *opts.TotalQuantity
			changed["total_quantity"] = it.TotalQuantity
		}
		if opts.Location != nil {
			it.Location = *opts.Location
			changed["location"] = it.Location
		}
		if opts.UnitCost != nil {
			if opts.UnitCost.IsNegative() {
				return fmt.Errorf("%w: unit cost must not be negative", ErrInvalid)
			}
			it.UnitCost = *opts.UnitCost
			changed["unit_cost"] = it.UnitCost.String()
		}
		if opts.ImageURL != nil {
			it.ImageURL = *opts.ImageURL
			changed["image_url"] = it.ImageURL
		}
		if opts.Notes != nil {
			it.Notes = *opts.Notes
			changed["notes"] = it.Notes
		}
		if err := validateStruct(it); err != nil {
			return err
		}
		it.UpdatedAt = e.stamp()
		if opts.TotalQuantity != nil {
			projects, err := activeProjects(ctx, r)
			if err != nil {
				return err
			}
			for _, p := range projects {
				assigned += p.Histogram().Count(it.ID)
			}
		}
		if err := r.PutItem(ctx, it); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		_, err = e.events().Append(ctx, r, "item.update", "item", it.ID, opts.ActorID, events.EventPayload(changed))
		return err
	})
	if err != nil {
		return domain.InventoryItem{}, err
	}
	if assigned > it.TotalQuantity {
		e.log().Warn(e.log().WithFields(ctx, map[string]any{
			"item_id": it.ID, "total_quantity": it.TotalQuantity, "assigned": assigned,
		}), "item total below assigned units")
	}
	return it, nil
}

// DeleteItem removes an item. Units still assigned to active projects block
// the delete unless force is set, in which case those assignments are dropped.
func (e Engine) DeleteItem(ctx context.Context, id, actorID string, force bool) error {
	return e.inTx(ctx, func(r repo.Repo) error {
		if _, err := r.GetItem(ctx, id); err != nil {
			return fmt.Errorf("item %s: %w", id, err)
		}
		projects, err := activeProjects(ctx, r)
		if err != nil {
			return err
		}
		var holders []domain.Project
		assigned := 0
		for _, p := range projects {
			if n := p.Histogram().Count(id); n > 0 {
				holders = append(holders, p)
				assigned += n
			}
		}
		if assigned > 0 && !force {
			return fmt.Errorf("item %s (%d units on %d projects): %w", id, assigned, len(holders), ErrItemInUse)
		}
		now := e.stamp()
		for _, p := range holders {
			p.ItemIDs = withoutItem(p.ItemIDs, id)
			p.UpdatedAt = now
			if err := r.PutProject(ctx, p); err != nil {
				return fmt.Errorf("release item from project %s: %w", p.ID, err)
			}
		}
		if err := r.DeleteItem(ctx, id); err != nil {
			return err
		}
		_, err = e.events().Append(ctx, r, "item.delete", "item", id, actorID, events.EventPayload{
			"released_units": assigned, "force": force,
		})
		return err
	})
}

func withoutItem(ids []string, id string) []string {
	out := make([]string, 0, len(ids))
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

func (e Engine) GetItem(ctx context.Context, id string) (ItemView, error) {
	var view ItemView
	err := e.inTx(ctx, func(r repo.Repo) error {
		it, err := r.GetItem(ctx, id)
		if err != nil {
			return fmt.Errorf("item %s: %w", id, err)
		}
		projects, err := activeProjects(ctx, r)
		if err != nil {
			return err
		}
		view = newItemView(it, projects)
		return nil
	})
	if err != nil {
		return ItemView{}, err
	}
	e.warnOverAllocated(ctx, []ItemView{view})
	return view, nil
}

type ItemListOptions struct {
	Category string
	// Location matches the warehouse location case-insensitively as a substring.
	Location      string
	AvailableOnly bool
}

func (e Engine) ListItems(ctx context.Context, opts ItemListOptions) ([]ItemView, error) {
	var views []ItemView
	err := e.inTx(ctx, func(r repo.Repo) error {
		items, err := r.ListItems(ctx, repo.ItemFilters{Category: opts.Category})
		if err != nil {
			return err
		}
		projects, err := activeProjects(ctx, r)
		if err != nil {
			return err
		}
		views = newItemViews(items, projects)
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.warnOverAllocated(ctx, views)
	needle := strings.ToLower(strings.TrimSpace(opts.Location))
	out := make([]ItemView, 0, len(views))
	for _, v := range views {
		if needle != "" && !strings.Contains(strings.ToLower(v.Item.Location), needle) {
			continue
		}
		if opts.AvailableOnly && v.Quantities.Available == 0 {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}
