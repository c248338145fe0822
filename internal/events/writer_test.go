package events_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"stageline/internal/db"
	"stageline/internal/events"
	"stageline/internal/migrate"
	"stageline/internal/repo"
)

func TestAppendStoresEvent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}
	ctx := context.Background()

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	w := events.Writer{Now: func() time.Time { return ts }}
	evt, err := w.Append(ctx, r, "item.create", "item", "sofa", "", events.EventPayload{"name": "Sofa"})
	require.NoError(t, err)
	require.Equal(t, "local-user", evt.ActorID)
	require.JSONEq(t, `{"name":"Sofa"}`, evt.Payload)

	page, err := r.LatestEvents(ctx, 5, "", repo.EventFilters{EntityID: "sofa"})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, evt, page.Items[0])
	require.Equal(t, ts.Format(time.RFC3339Nano), page.Items[0].TS)
}
