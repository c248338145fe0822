package stagelinesdk_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"stageline/internal/db"
	"stageline/internal/engine"
	"stageline/internal/migrate"
	"stageline/internal/server"
	stagelinesdk "stageline/sdk/go"
)

func newClient(t *testing.T, secret string) *stagelinesdk.Client {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	handler, err := server.New(server.Config{Engine: engine.New(conn, nil), Auth: server.AuthConfig{JWTSecret: secret}})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return stagelinesdk.New(srv.URL)
}

func TestClientRoundTrip(t *testing.T) {
	c := newClient(t, "")
	c.ActorID = "sdk-user"
	ctx := context.Background()

	item, err := c.CreateItem(ctx, stagelinesdk.ItemInput{ID: "chair", Name: "Dining Chair", TotalQuantity: 6, Location: "Bay 2", UnitCost: "85"})
	require.NoError(t, err)
	require.Equal(t, "85.00", item.UnitCost)

	_, err = c.CreateProject(ctx, stagelinesdk.ProjectInput{ID: "job", ClientName: "Moreno", FullAddress: "400 Main St, Austin, TX"})
	require.NoError(t, err)

	p, err := c.AssignItem(ctx, "job", "chair", 4, false)
	require.NoError(t, err)
	require.Len(t, p.ItemIDs, 4)

	_, err = c.AssignItem(ctx, "job", "chair", 3, false)
	require.True(t, stagelinesdk.IsCode(err, "insufficient_stock"), "%v", err)

	items, err := c.ListItems(ctx, stagelinesdk.ItemQuery{AvailableOnly: true})
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 2, items[0].Quantities.Available)
	require.Equal(t, "Bay 2 (4 on Project: Moreno)", items[0].DisplayLocation)

	p, err = c.UnassignItem(ctx, "job", "chair", 1)
	require.NoError(t, err)
	require.Equal(t, 3, p.Units)

	_, err = c.SetRoomPricing(ctx, "job", []stagelinesdk.RoomLine{{Room: "Dining Room", Quantity: 1}}, false)
	require.NoError(t, err)
	inv, err := c.Invoice(ctx, "job")
	require.NoError(t, err)
	require.Equal(t, "texas", inv.TaxRule)
	// (400 + 400 + 400) * 1.0825
	require.Equal(t, "1299.00", inv.Total)

	dash, err := c.Dashboard(ctx)
	require.NoError(t, err)
	require.Equal(t, "1299.00", dash.PipelineRevenue)
	require.Equal(t, 3, dash.UnitsInUse)

	settings, err := c.UpdateSettings(ctx, map[string]any{"contractDuration": 45})
	require.NoError(t, err)
	require.Equal(t, "45", settings["contractDuration"])
	settings, err = c.Settings(ctx)
	require.NoError(t, err)
	require.Equal(t, "45", settings["contractDuration"])

	events, err := c.Events(ctx, 3)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, "settings.update", events[0].Type)
	require.Equal(t, "sdk-user", events[0].ActorID)

	_, err = c.GetProject(ctx, "nope")
	require.True(t, stagelinesdk.IsCode(err, "not_found"))
}

func TestClientBearerToken(t *testing.T) {
	c := newClient(t, "s3cret")
	ctx := context.Background()

	_, err := c.Dashboard(ctx)
	require.True(t, stagelinesdk.IsCode(err, "unauthorized"), "%v", err)

	token, err := server.IssueToken("s3cret", "carol", 0)
	require.NoError(t, err)
	c.BearerToken = token
	_, err = c.Dashboard(ctx)
	require.NoError(t, err)
}
