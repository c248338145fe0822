package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/reconcile"
	"stageline/internal/repo"
	"stageline/internal/staging"
)

func isNotFound(err error) bool { return errors.Is(err, repo.ErrNotFound) }

type ProjectCreateOptions struct {
	ID           string
	ClientName   string
	ShortAddress string
	FullAddress  string
	JobLocation  string
	StagingDate  *time.Time
	Notes        string
	ActorID      string
}

func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	now := e.stamp()
	p := domain.Project{
		ID:           opts.ID,
		Status:       domain.ProjectActive,
		ClientName:   strings.TrimSpace(opts.ClientName),
		ShortAddress: strings.TrimSpace(opts.ShortAddress),
		FullAddress:  strings.TrimSpace(opts.FullAddress),
		JobLocation:  strings.TrimSpace(opts.JobLocation),
		StagingDate:  opts.StagingDate,
		ItemIDs:      []string{},
		RoomPricing:  map[string]domain.RoomPrice{},
		Notes:        opts.Notes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := validateStruct(p); err != nil {
		return domain.Project{}, err
	}
	err := e.inTx(ctx, func(r repo.Repo) error {
		if _, err := r.GetProject(ctx, p.ID); err == nil {
			return fmt.Errorf("project %s: %w", p.ID, ErrAlreadyExists)
		} else if !isNotFound(err) {
			return err
		}
		if err := r.PutProject(ctx, p); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		_, err := e.events().Append(ctx, r, "project.create", "project", p.ID, opts.ActorID, events.EventPayload{
			"label": p.Label(), "status": p.Status,
		})
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ProjectUpdateOptions carries the fields to change; nil fields are left
// alone. ClearStagingDate unsets the staging date.
type ProjectUpdateOptions struct {
	ID               string
	ClientName       *string
	ShortAddress     *string
	FullAddress      *string
	JobLocation      *string
	StagingDate      *time.Time
	ClearStagingDate bool
	Notes            *string
	ActorID          string
	Force            bool
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	var p domain.Project
	err := e.inTx(ctx, func(r repo.Repo) error {
		var err error
		p, err = loadProjectForWrite(ctx, r, opts.ID, opts.Force)
		if err != nil {
			return err
		}
		changed := events.EventPayload{}
		if opts.ClientName != nil {
			p.ClientName = strings.TrimSpace(*opts.ClientName)
			changed["client_name"] = p.ClientName
		}
		if opts.ShortAddress != nil {
			p.ShortAddress = strings.TrimSpace(*opts.ShortAddress)
			changed["short_address"] = p.ShortAddress
		}
		if opts.FullAddress != nil {
			p.FullAddress = strings.TrimSpace(*opts.FullAddress)
			changed["full_address"] = p.FullAddress
		}
		if opts.JobLocation != nil {
			p.JobLocation = strings.TrimSpace(*opts.JobLocation)
			changed["job_location"] = p.JobLocation
		}
		switch {
		case opts.ClearStagingDate:
			p.StagingDate = nil
			changed["staging_date"] = nil
		case opts.StagingDate != nil:
			p.StagingDate = opts.StagingDate
			changed["staging_date"] = opts.StagingDate.Format(time.DateOnly)
		}
		if opts.Notes != nil {
			p.Notes = *opts.Notes
			changed["notes"] = p.Notes
		}
		p.UpdatedAt = e.stamp()
		if err := r.PutProject(ctx, p); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		_, err = e.events().Append(ctx, r, "project.update", "project", p.ID, opts.ActorID, changed)
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ArchiveProject marks a project archived, which releases its units back to
// inventory. Archiving an archived project is a no-op.
func (e Engine) ArchiveProject(ctx context.Context, id, actorID string) (domain.Project, error) {
	var p domain.Project
	err := e.inTx(ctx, func(r repo.Repo) error {
		var err error
		p, err = r.GetProject(ctx, id)
		if err != nil {
			return fmt.Errorf("project %s: %w", id, err)
		}
		if !p.Active() {
			return nil
		}
		p.Status = domain.ProjectArchived
		p.UpdatedAt = e.stamp()
		if err := r.PutProject(ctx, p); err != nil {
			return fmt.Errorf("archive project: %w", err)
		}
		_, err = e.events().Append(ctx, r, "project.archive", "project", p.ID, actorID, events.EventPayload{
			"released_units": len(p.ItemIDs),
		})
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func (e Engine) DeleteProject(ctx context.Context, id, actorID string) error {
	return e.inTx(ctx, func(r repo.Repo) error {
		p, err := r.GetProject(ctx, id)
		if err != nil {
			return fmt.Errorf("project %s: %w", id, err)
		}
		if err := r.DeleteProject(ctx, id); err != nil {
			return err
		}
		_, err = e.events().Append(ctx, r, "project.delete", "project", id, actorID, events.EventPayload{
			"label": p.Label(), "released_units": len(p.ItemIDs),
		})
		return err
	})
}

func (e Engine) GetProject(ctx context.Context, id string) (ProjectView, error) {
	var view ProjectView
	err := e.inTx(ctx, func(r repo.Repo) error {
		p, err := r.GetProject(ctx, id)
		if err != nil {
			return fmt.Errorf("project %s: %w", id, err)
		}
		s, err := settings(ctx, r)
		if err != nil {
			return err
		}
		view, err = e.projectView(ctx, r, p, s)
		return err
	})
	return view, err
}

type ProjectListOptions struct {
	Status string
	State  domain.StagingState
}

func (e Engine) ListProjects(ctx context.Context, opts ProjectListOptions) ([]ProjectView, error) {
	if opts.Status != "" && opts.Status != domain.ProjectActive && opts.Status != domain.ProjectArchived {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, opts.Status)
	}
	switch opts.State {
	case "", domain.StagingPending, domain.StagingUpcoming, domain.StagingStaged, domain.StagingArchived:
	default:
		return nil, fmt.Errorf("%w: unknown staging state %q", ErrInvalid, opts.State)
	}
	var views []ProjectView
	err := e.inTx(ctx, func(r repo.Repo) error {
		projects, err := r.ListProjects(ctx, opts.Status)
		if err != nil {
			return err
		}
		s, err := settings(ctx, r)
		if err != nil {
			return err
		}
		today := e.now()
		views = make([]ProjectView, 0, len(projects))
		for _, p := range projects {
			if opts.State != "" && staging.State(p, today) != opts.State {
				continue
			}
			v, err := e.projectView(ctx, r, p, s)
			if err != nil {
				return err
			}
			views = append(views, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return views, nil
}

// MaxAssignQuantity bounds a single assignment, forced or not.
const MaxAssignQuantity = 1000

type AssignOptions struct {
	ProjectID string
	ItemID    string
	Quantity  int
	ActorID   string
	// Force skips the availability and archived-project guards.
	Force bool
}

// AssignItem adds Quantity units of an item to a project. Availability is
// computed from every active project, including the target.
func (e Engine) AssignItem(ctx context.Context, opts AssignOptions) (domain.Project, error) {
	if opts.Quantity <= 0 {
		return domain.Project{}, fmt.Errorf("%w: quantity must be positive", ErrInvalid)
	}
	if opts.Quantity > MaxAssignQuantity {
		return domain.Project{}, fmt.Errorf("%w: quantity must not exceed %d", ErrInvalid, MaxAssignQuantity)
	}
	var p domain.Project
	err := e.inTx(ctx, func(r repo.Repo) error {
		var err error
		p, err = loadProjectForWrite(ctx, r, opts.ProjectID, opts.Force)
		if err != nil {
			return err
		}
		it, err := r.GetItem(ctx, opts.ItemID)
		if err != nil {
			return fmt.Errorf("item %s: %w", opts.ItemID, err)
		}
		projects, err := activeProjects(ctx, r)
		if err != nil {
			return err
		}
		q := reconcile.Reconcile(it, projects)
		if opts.Quantity > q.Available && !opts.Force {
			return InsufficientStockError{ItemID: it.ID, Requested: opts.Quantity, Available: q.Available}
		}
		p.ItemIDs = append(p.ItemIDs, domain.Histogram{it.ID: opts.Quantity}.Expand()...)
		now := e.stamp()
		p.UpdatedAt = now
		if err := r.PutProject(ctx, p); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		it.TimesUsed++
		it.UpdatedAt = now
		if err := r.PutItem(ctx, it); err != nil {
			return fmt.Errorf("update item: %w", err)
		}
		_, err = e.events().Append(ctx, r, "project.assign", "project", p.ID, opts.ActorID, events.EventPayload{
			"item_id": it.ID, "quantity": opts.Quantity, "available_before": q.Available, "force": opts.Force,
		})
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// UnassignItem removes up to qty of the most recently added units of an item.
func (e Engine) UnassignItem(ctx context.Context, projectID, itemID string, qty int, actorID string, force bool) (domain.Project, error) {
	if qty <= 0 {
		return domain.Project{}, fmt.Errorf("%w: quantity must be positive", ErrInvalid)
	}
	var p domain.Project
	err := e.inTx(ctx, func(r repo.Repo) error {
		var err error
		p, err = loadProjectForWrite(ctx, r, projectID, force)
		if err != nil {
			return err
		}
		var removed int
		p.ItemIDs, removed = removeTrailing(p.ItemIDs, itemID, qty)
		if removed == 0 {
			return fmt.Errorf("item %s on project %s: %w", itemID, projectID, repo.ErrNotFound)
		}
		p.UpdatedAt = e.stamp()
		if err := r.PutProject(ctx, p); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		_, err = e.events().Append(ctx, r, "project.unassign", "project", p.ID, actorID, events.EventPayload{
			"item_id": itemID, "quantity": removed,
		})
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

func removeTrailing(ids []string, id string, qty int) ([]string, int) {
	out := make([]string, len(ids))
	copy(out, ids)
	removed := 0
	for i := len(out) - 1; i >= 0 && removed < qty; i-- {
		if out[i] == id {
			out = append(out[:i], out[i+1:]...)
			removed++
		}
	}
	return out, removed
}

// RoomLine sets one room of a project's pricing. A nil Price takes the room
// price from settings; Quantity 0 removes the room.
type RoomLine struct {
	Room     string
	Quantity int
	Price    *decimal.Decimal
}

type RoomPricingOptions struct {
	ProjectID string
	Lines     []RoomLine
	// Replace drops rooms not named in Lines.
	Replace bool
	ActorID string
	Force   bool
}

func (e Engine) SetRoomPricing(ctx context.Context, opts RoomPricingOptions) (domain.Project, error) {
	var p domain.Project
	err := e.inTx(ctx, func(r repo.Repo) error {
		var err error
		p, err = loadProjectForWrite(ctx, r, opts.ProjectID, opts.Force)
		if err != nil {
			return err
		}
		s, err := settings(ctx, r)
		if err != nil {
			return err
		}
		rooms := map[string]domain.RoomPrice{}
		if !opts.Replace {
			for k, v := range p.RoomPricing {
				rooms[k] = v
			}
		}
		applied := map[string]any{}
		for _, line := range opts.Lines {
			room := strings.TrimSpace(line.Room)
			if room == "" {
				return fmt.Errorf("%w: room label required", ErrInvalid)
			}
			if line.Quantity < 0 {
				return fmt.Errorf("%w: room %s quantity must not be negative", ErrInvalid, room)
			}
			if line.Quantity == 0 {
				delete(rooms, room)
				applied[room] = nil
				continue
			}
			var price decimal.Decimal
			if line.Price != nil {
				price = *line.Price
			} else {
				var ok bool
				price, ok = s.RoomPrice(room)
				if !ok {
					return fmt.Errorf("%w: no default price for room %q", ErrInvalid, room)
				}
			}
			if price.IsNegative() {
				return fmt.Errorf("%w: room %s price must not be negative", ErrInvalid, room)
			}
			rooms[room] = domain.RoomPrice{Price: price, Quantity: line.Quantity}
			applied[room] = map[string]any{"price": price.String(), "quantity": line.Quantity}
		}
		p.RoomPricing = rooms
		p.UpdatedAt = e.stamp()
		if err := r.PutProject(ctx, p); err != nil {
			return fmt.Errorf("update project: %w", err)
		}
		_, err = e.events().Append(ctx, r, "project.pricing", "project", p.ID, opts.ActorID, events.EventPayload{
			"rooms": applied, "replace": opts.Replace,
		})
		return err
	})
	if err != nil {
		return domain.Project{}, err
	}
	return p, nil
}
