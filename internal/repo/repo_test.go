package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/domain"
	"stageline/internal/migrate"
	"stageline/internal/repo"
)

func newTestRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	return repo.Repo{DB: conn}
}

func TestItemRoundTrip(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	it := domain.InventoryItem{
		ID:            "sofa-1",
		Name:          "Velvet Sofa",
		Category:      "seating",
		Tags:          []string{"blue", "modern"},
		TotalQuantity: 3,
		Location:      "Aisle 4",
		UnitCost:      decimal.RequireFromString("1299.99"),
	}
	require.NoError(t, r.PutItem(ctx, it))

	got, err := r.GetItem(ctx, "sofa-1")
	require.NoError(t, err)
	require.Equal(t, it.Name, got.Name)
	require.Equal(t, it.Tags, got.Tags)
	require.True(t, it.UnitCost.Equal(got.UnitCost))

	_, err = r.GetItem(ctx, "missing")
	require.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, r.DeleteItem(ctx, "sofa-1"))
	require.ErrorIs(t, r.DeleteItem(ctx, "sofa-1"), repo.ErrNotFound)
}

func TestListItemsSortedAndFiltered(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	for _, it := range []domain.InventoryItem{
		{ID: "3", Name: "Lamp", Category: "lighting"},
		{ID: "1", Name: "Armchair", Category: "seating"},
		{ID: "2", Name: "Sofa", Category: "seating"},
	} {
		require.NoError(t, r.PutItem(ctx, it))
	}
	// A project key must never leak into the item scan.
	require.NoError(t, r.PutProject(ctx, domain.Project{ID: "item-like", Status: domain.ProjectActive}))

	all, err := r.ListItems(ctx, repo.ItemFilters{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, []string{"Armchair", "Lamp", "Sofa"}, []string{all[0].Name, all[1].Name, all[2].Name})

	seating, err := r.ListItems(ctx, repo.ItemFilters{Category: "seating"})
	require.NoError(t, err)
	require.Len(t, seating, 2)
}

func TestProjectMultisetSurvivesStorage(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	date := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	p := domain.Project{
		ID:          "job-1",
		Status:      domain.ProjectActive,
		ClientName:  "Hartley",
		StagingDate: &date,
		ItemIDs:     []string{"sofa", "lamp", "sofa"},
		RoomPricing: map[string]domain.RoomPrice{"Living Room": {Price: decimal.NewFromInt(600), Quantity: 1}},
		CreatedAt:   "2024-04-01T00:00:00Z",
	}
	require.NoError(t, r.PutProject(ctx, p))
	require.NoError(t, r.PutProject(ctx, domain.Project{ID: "job-0", Status: domain.ProjectArchived, CreatedAt: "2024-03-01T00:00:00Z"}))

	got, err := r.GetProject(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, []string{"sofa", "lamp", "sofa"}, got.ItemIDs)
	require.True(t, got.StagingDate.Equal(date))
	require.Equal(t, 1, got.RoomPricing["Living Room"].Quantity)

	all, err := r.ListProjects(ctx, "")
	require.NoError(t, err)
	require.Equal(t, "job-1", all[0].ID)
	active, err := r.ListProjects(ctx, domain.ProjectActive)
	require.NoError(t, err)
	require.Len(t, active, 1)
}

func TestSettingsOverrides(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	o, err := r.GetSettingsOverrides(ctx)
	require.NoError(t, err)
	require.Empty(t, o)

	require.NoError(t, r.PutSettingsOverrides(ctx, config.Overrides{config.KeyPickupFee: 250, config.KeyContractDuration: "21"}))
	o, err = r.GetSettingsOverrides(ctx)
	require.NoError(t, err)
	s, err := config.Load(o)
	require.NoError(t, err)
	require.Equal(t, "250", s.PickupFee.String())
	require.Equal(t, 21, s.ContractDuration)

	require.Error(t, r.PutSettingsOverrides(ctx, config.Overrides{config.KeyPickupFee: "lots"}))
}

func TestLatestEventsPaginates(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		ts := base.Add(time.Duration(i) * time.Minute)
		kind := "item"
		if i%2 == 1 {
			kind = "project"
		}
		evt := domain.Event{ID: string(rune('a' + i)), TS: ts.Format(time.RFC3339Nano), Type: kind + ".updated", EntityKind: kind}
		require.NoError(t, r.InsertEvent(ctx, repo.EventKey(ts, evt.ID), evt))
	}

	page, err := r.LatestEvents(ctx, 2, "", repo.EventFilters{})
	require.NoError(t, err)
	require.Equal(t, []string{"e", "d"}, []string{page.Items[0].ID, page.Items[1].ID})
	require.NotEmpty(t, page.NextCursor)

	page, err = r.LatestEvents(ctx, 2, page.NextCursor, repo.EventFilters{})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "b"}, []string{page.Items[0].ID, page.Items[1].ID})

	page, err = r.LatestEvents(ctx, 2, page.NextCursor, repo.EventFilters{})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Empty(t, page.NextCursor)

	items, err := r.LatestEvents(ctx, 10, "", repo.EventFilters{EntityKind: "item"})
	require.NoError(t, err)
	require.Len(t, items.Items, 3)
}
