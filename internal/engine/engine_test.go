package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/engine"
	"stageline/internal/migrate"
	"stageline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

// newTestEnv opens a fresh workspace whose clock starts on 2024-01-01 and
// advances one millisecond per reading.
func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	eng := engine.New(conn, nil)
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.Local)
	eng.Now = func() time.Time {
		clock = clock.Add(time.Millisecond)
		return clock
	}
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) item(t *testing.T, id string, total int) domain.InventoryItem {
	t.Helper()
	it, err := env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{
		ID: id, Name: id, TotalQuantity: total, Location: "Warehouse A", ActorID: "tester",
	})
	require.NoError(t, err)
	return it
}

func (env testEnv) project(t *testing.T, id, client string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: id, ClientName: client, ActorID: "tester"})
	require.NoError(t, err)
	return p
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.Local)
	return &t
}

func TestCreateRejectsDuplicatesAndInvalidItems(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "sofa", 2)

	_, err := env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{ID: "sofa", Name: "Other"})
	require.ErrorIs(t, err, engine.ErrAlreadyExists)

	_, err = env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: "   "})
	require.ErrorIs(t, err, engine.ErrInvalid)

	_, err = env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: "Lamp", TotalQuantity: -1})
	require.ErrorIs(t, err, engine.ErrInvalid)

	_, err = env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{Name: "Lamp", UnitCost: decimal.NewFromInt(-3)})
	require.ErrorIs(t, err, engine.ErrInvalid)
}

func TestAssignGuardsAvailability(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "chair", 2)
	env.project(t, "a", "Hartley")
	env.project(t, "b", "Moreno")

	_, err := env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "a", ItemID: "chair", Quantity: 2})
	require.NoError(t, err)

	_, err = env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "b", ItemID: "chair", Quantity: 1})
	var stockErr engine.InsufficientStockError
	require.True(t, errors.As(err, &stockErr))
	require.Equal(t, 0, stockErr.Available)
	require.Equal(t, 1, stockErr.Requested)

	_, err = env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "b", ItemID: "chair", Quantity: 1, Force: true})
	require.NoError(t, err)

	view, err := env.Engine.GetItem(env.Ctx, "chair")
	require.NoError(t, err)
	require.Equal(t, 3, view.Quantities.Assigned)
	require.Equal(t, 2, view.Quantities.InUse)
	require.Equal(t, 0, view.Quantities.Available)
	require.True(t, view.OverAllocated)
	require.Equal(t, "Multiple", view.Display)
	require.Equal(t, 2, view.Item.TimesUsed)

	_, err = env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "a", ItemID: "ghost", Quantity: 1})
	require.ErrorIs(t, err, repo.ErrNotFound)
	_, err = env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "a", ItemID: "chair", Quantity: 0})
	require.ErrorIs(t, err, engine.ErrInvalid)
}

func TestAssignCapsQuantityEvenWhenForced(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "chair", 2)
	env.project(t, "a", "Hartley")

	_, err := env.Engine.AssignItem(env.Ctx, engine.AssignOptions{
		ProjectID: "a", ItemID: "chair", Quantity: engine.MaxAssignQuantity + 1, Force: true,
	})
	require.ErrorIs(t, err, engine.ErrInvalid)

	p, err := env.Engine.AssignItem(env.Ctx, engine.AssignOptions{
		ProjectID: "a", ItemID: "chair", Quantity: engine.MaxAssignQuantity, Force: true,
	})
	require.NoError(t, err)
	require.Len(t, p.ItemIDs, engine.MaxAssignQuantity)
	require.Equal(t, engine.MaxAssignQuantity, p.Histogram().Count("chair"))
}

func TestPartialAssignmentLocation(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "rug", 5)
	env.project(t, "a", "Hartley")

	_, err := env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "a", ItemID: "rug", Quantity: 2})
	require.NoError(t, err)
	view, err := env.Engine.GetItem(env.Ctx, "rug")
	require.NoError(t, err)
	require.Equal(t, "Warehouse A (2 on Project: Hartley)", view.Display)
	require.Equal(t, 3, view.Quantities.Available)

	_, err = env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "a", ItemID: "rug", Quantity: 3})
	require.NoError(t, err)
	view, err = env.Engine.GetItem(env.Ctx, "rug")
	require.NoError(t, err)
	require.Equal(t, "Out on Project: Hartley", view.Display)
}

func TestUnassignRemovesTrailingUnits(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "a", 5)
	env.item(t, "b", 5)
	env.project(t, "job", "Hartley")
	for _, step := range []struct {
		id  string
		qty int
	}{{"a", 1}, {"b", 1}, {"a", 2}} {
		_, err := env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "job", ItemID: step.id, Quantity: step.qty})
		require.NoError(t, err)
	}

	p, err := env.Engine.UnassignItem(env.Ctx, "job", "a", 2, "tester", false)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, p.ItemIDs)

	p, err = env.Engine.UnassignItem(env.Ctx, "job", "a", 10, "tester", false)
	require.NoError(t, err)
	require.Equal(t, []string{"b"}, p.ItemIDs)

	_, err = env.Engine.UnassignItem(env.Ctx, "job", "a", 1, "tester", false)
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestArchiveReleasesUnits(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "lamp", 1)
	env.project(t, "job", "Hartley")
	_, err := env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "job", ItemID: "lamp", Quantity: 1})
	require.NoError(t, err)

	p, err := env.Engine.ArchiveProject(env.Ctx, "job", "tester")
	require.NoError(t, err)
	require.Equal(t, domain.ProjectArchived, p.Status)
	require.Equal(t, []string{"lamp"}, p.ItemIDs, "history is kept")

	view, err := env.Engine.GetItem(env.Ctx, "lamp")
	require.NoError(t, err)
	require.Equal(t, 1, view.Quantities.Available)
	require.Equal(t, "Warehouse A", view.Display)

	_, err = env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "job", ItemID: "lamp", Quantity: 1})
	require.ErrorIs(t, err, engine.ErrProjectArchived)
	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "job", Notes: ptr("late")})
	require.ErrorIs(t, err, engine.ErrProjectArchived)
	_, err = env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: "job", Notes: ptr("late"), Force: true})
	require.NoError(t, err)

	pv, err := env.Engine.GetProject(env.Ctx, "job")
	require.NoError(t, err)
	require.Equal(t, domain.StagingArchived, pv.State)
}

func TestDeleteItemGuard(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "vase", 3)
	env.item(t, "bowl", 3)
	env.project(t, "job", "Hartley")
	_, err := env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "job", ItemID: "vase", Quantity: 2})
	require.NoError(t, err)
	_, err = env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "job", ItemID: "bowl", Quantity: 1})
	require.NoError(t, err)

	require.ErrorIs(t, env.Engine.DeleteItem(env.Ctx, "vase", "tester", false), engine.ErrItemInUse)
	require.NoError(t, env.Engine.DeleteItem(env.Ctx, "vase", "tester", true))

	pv, err := env.Engine.GetProject(env.Ctx, "job")
	require.NoError(t, err)
	require.Equal(t, []string{"bowl"}, pv.Project.ItemIDs)
	_, err = env.Engine.GetItem(env.Ctx, "vase")
	require.ErrorIs(t, err, repo.ErrNotFound)
}

func TestProjectViewFlagsMissingItems(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "vase", 1)
	env.project(t, "job", "Hartley")
	_, err := env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "job", ItemID: "vase", Quantity: 1})
	require.NoError(t, err)
	_, err = env.Engine.ArchiveProject(env.Ctx, "job", "tester")
	require.NoError(t, err)
	// Archived projects do not block deletes and keep the dangling id.
	require.NoError(t, env.Engine.DeleteItem(env.Ctx, "vase", "tester", false))

	pv, err := env.Engine.GetProject(env.Ctx, "job")
	require.NoError(t, err)
	require.Len(t, pv.Items, 1)
	require.True(t, pv.Items[0].Missing)
	require.Equal(t, 1, pv.Units)
}

func TestRoomPricingUsesSettings(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "job", ClientName: "Hartley", FullAddress: "12 Palm Dr, Los Angeles, CA 90001",
	})
	require.NoError(t, err)

	p, err := env.Engine.SetRoomPricing(env.Ctx, engine.RoomPricingOptions{
		ProjectID: "job",
		Lines:     []engine.RoomLine{{Room: "Living Room", Quantity: 1}},
	})
	require.NoError(t, err)
	require.Equal(t, "600", p.RoomPricing["Living Room"].Price.String())

	inv, err := env.Engine.Invoice(env.Ctx, "job")
	require.NoError(t, err)
	require.Equal(t, "california", inv.TaxRule)
	require.Equal(t, "143.5", inv.Tax.String())
	require.Equal(t, "1543.5", inv.Total.String())

	_, err = env.Engine.SetSetting(env.Ctx, config.KeyPickupFee, "0", "tester")
	require.NoError(t, err)
	inv, err = env.Engine.Invoice(env.Ctx, "job")
	require.NoError(t, err)
	require.Equal(t, "1102.5", inv.Total.String())

	_, err = env.Engine.SetRoomPricing(env.Ctx, engine.RoomPricingOptions{
		ProjectID: "job",
		Lines:     []engine.RoomLine{{Room: "Sunroom", Quantity: 1}},
	})
	require.ErrorIs(t, err, engine.ErrInvalid)

	price := decimal.RequireFromString("275.50")
	p, err = env.Engine.SetRoomPricing(env.Ctx, engine.RoomPricingOptions{
		ProjectID: "job",
		Lines: []engine.RoomLine{
			{Room: "Sunroom", Quantity: 2, Price: &price},
			{Room: "Living Room", Quantity: 0},
		},
	})
	require.NoError(t, err)
	require.NotContains(t, p.RoomPricing, "Living Room")
	require.Equal(t, 2, p.RoomPricing["Sunroom"].Quantity)
}

func TestSettingsRejectMalformedValues(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.SetSetting(env.Ctx, config.KeyDeliveryFee, "NaN", "tester")
	require.ErrorIs(t, err, engine.ErrInvalid)
	_, err = env.Engine.UpdateSettings(env.Ctx, config.Overrides{config.KeyContractDuration: "soon"}, "tester")
	require.ErrorIs(t, err, engine.ErrInvalid)

	s, err := env.Engine.Settings(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, config.Default().DeliveryFee.String(), s.DeliveryFee.String())

	_, err = env.Engine.SetSetting(env.Ctx, config.KeyContractDuration, "14", "tester")
	require.NoError(t, err)
	s, err = env.Engine.ResetSettings(env.Ctx, "tester")
	require.NoError(t, err)
	require.Equal(t, 30, s.ContractDuration)
}

func TestListFilters(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{ID: "sofa", Name: "Sofa", Category: "seating", TotalQuantity: 1, Location: "Aisle 4"})
	require.NoError(t, err)
	_, err = env.Engine.CreateItem(env.Ctx, engine.ItemCreateOptions{ID: "lamp", Name: "Lamp", Category: "lighting", TotalQuantity: 1, Location: "Shelf B"})
	require.NoError(t, err)

	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "today", StagingDate: day(2024, 1, 1)})
	require.NoError(t, err)
	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "later", StagingDate: day(2024, 2, 1)})
	require.NoError(t, err)
	_, err = env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{ID: "someday"})
	require.NoError(t, err)
	_, err = env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "today", ItemID: "sofa", Quantity: 1})
	require.NoError(t, err)

	avail, err := env.Engine.ListItems(env.Ctx, engine.ItemListOptions{AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, avail, 1)
	require.Equal(t, "lamp", avail[0].Item.ID)

	byLoc, err := env.Engine.ListItems(env.Ctx, engine.ItemListOptions{Location: "aisle"})
	require.NoError(t, err)
	require.Len(t, byLoc, 1)
	require.Equal(t, "sofa", byLoc[0].Item.ID)

	byCat, err := env.Engine.ListItems(env.Ctx, engine.ItemListOptions{Category: "lighting"})
	require.NoError(t, err)
	require.Len(t, byCat, 1)

	for state, want := range map[domain.StagingState]string{
		domain.StagingStaged:   "today",
		domain.StagingUpcoming: "later",
		domain.StagingPending:  "someday",
	} {
		views, err := env.Engine.ListProjects(env.Ctx, engine.ProjectListOptions{State: state})
		require.NoError(t, err)
		require.Len(t, views, 1, state)
		require.Equal(t, want, views[0].Project.ID)
	}

	staged, err := env.Engine.GetProject(env.Ctx, "today")
	require.NoError(t, err)
	require.NotNil(t, staged.ContractEnd)
	require.Equal(t, "2024-01-31", staged.ContractEnd.Format(time.DateOnly))

	_, err = env.Engine.ListProjects(env.Ctx, engine.ProjectListOptions{Status: "paused"})
	require.ErrorIs(t, err, engine.ErrInvalid)
}

func TestDashboard(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "sofa", 2)
	env.item(t, "lamp", 1)
	_, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID: "job", ClientName: "Hartley", FullAddress: "Anytown, ZZ", StagingDate: day(2024, 1, 1),
	})
	require.NoError(t, err)
	env.project(t, "old", "Moreno")
	_, err = env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "job", ItemID: "lamp", Quantity: 2, Force: true})
	require.NoError(t, err)
	_, err = env.Engine.SetRoomPricing(env.Ctx, engine.RoomPricingOptions{ProjectID: "job", Lines: []engine.RoomLine{{Room: "Office", Quantity: 1}}})
	require.NoError(t, err)
	_, err = env.Engine.ArchiveProject(env.Ctx, "old", "tester")
	require.NoError(t, err)

	d, err := env.Engine.Dashboard(env.Ctx)
	require.NoError(t, err)
	require.Equal(t, 2, d.Items)
	require.Equal(t, 3, d.Units)
	require.Equal(t, 1, d.UnitsInUse)
	require.Equal(t, 2, d.UnitsAvailable)
	require.Equal(t, []string{"lamp"}, d.OverAllocatedItems)
	require.Equal(t, 1, d.Projects[domain.StagingStaged])
	require.Equal(t, 1, d.Projects[domain.StagingArchived])
	// (300 + 400 + 400) * 1.10
	require.Equal(t, "1210", d.PipelineRevenue.String())
}

func TestMutationsAppendEvents(t *testing.T) {
	env := newTestEnv(t)
	env.item(t, "sofa", 1)
	env.project(t, "job", "Hartley")
	_, err := env.Engine.AssignItem(env.Ctx, engine.AssignOptions{ProjectID: "job", ItemID: "sofa", Quantity: 1, ActorID: "alice"})
	require.NoError(t, err)

	page, err := env.Engine.ListEvents(env.Ctx, 10, "", repo.EventFilters{})
	require.NoError(t, err)
	require.Len(t, page.Items, 3)
	require.Equal(t, "project.assign", page.Items[0].Type)
	require.Equal(t, "alice", page.Items[0].ActorID)
	require.Equal(t, "project.create", page.Items[1].Type)
	require.Equal(t, "item.create", page.Items[2].Type)

	page, err = env.Engine.ListEvents(env.Ctx, 10, "", repo.EventFilters{EntityKind: "item"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
}

func ptr[T any](v T) *T { return &v }
