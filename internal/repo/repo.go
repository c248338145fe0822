package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"stageline/internal/config"
	"stageline/internal/domain"
)

// Key prefixes of the local key-value store.
const (
	itemPrefix    = "item:"
	projectPrefix = "project:"
	eventPrefix   = "event:"
	settingsKey   = "settings"
)

var ErrNotFound = errors.New("not found")

// errStop ends a Scan early without error.
var errStop = errors.New("stop scan")

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repo is the key-value store. Every value is a JSON document.
type Repo struct {
	DB *sql.DB
	tx *sql.Tx
}

// WithTx returns a Repo whose reads and writes go through tx.
func (r Repo) WithTx(tx *sql.Tx) Repo {
	r.tx = tx
	return r
}

func (r Repo) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.DB
}

// Get decodes the value stored under key into out.
func (r Repo) Get(ctx context.Context, key string, out any) error {
	var payload string
	err := r.q().QueryRowContext(ctx, `SELECT value_json FROM kv WHERE key=?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// Put stores v as JSON under key, replacing any previous value.
func (r Repo) Put(ctx context.Context, key string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = r.q().ExecContext(ctx, `INSERT INTO kv(key,value_json,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value_json=excluded.value_json, updated_at=excluded.updated_at`, key, string(payload), now)
	return err
}

func (r Repo) Delete(ctx context.Context, key string) error {
	res, err := r.q().ExecContext(ctx, `DELETE FROM kv WHERE key=?`, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Scan calls fn for every key with the given prefix, in ascending key order
// or descending when desc is set. A non-empty before restricts keys to those
// sorting strictly before it.
func (r Repo) Scan(ctx context.Context, prefix, before string, desc bool, fn func(key string, raw []byte) error) error {
	query := `SELECT key, value_json FROM kv WHERE substr(key, 1, length(?)) = ?`
	args := []any{prefix, prefix}
	if before != "" {
		query += ` AND key < ?`
		args = append(args, before)
	}
	if desc {
		query += ` ORDER BY key DESC`
	} else {
		query += ` ORDER BY key ASC`
	}
	rows, err := r.q().QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key, payload string
		if err := rows.Scan(&key, &payload); err != nil {
			return err
		}
		if err := fn(key, []byte(payload)); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
	return rows.Err()
}

// --- items ---

func (r Repo) GetItem(ctx context.Context, id string) (domain.InventoryItem, error) {
	var it domain.InventoryItem
	err := r.Get(ctx, itemPrefix+id, &it)
	return it, err
}

func (r Repo) PutItem(ctx context.Context, it domain.InventoryItem) error {
	return r.Put(ctx, itemPrefix+it.ID, it)
}

func (r Repo) DeleteItem(ctx context.Context, id string) error {
	return r.Delete(ctx, itemPrefix+id)
}

// ItemFilters narrow ListItems. Zero values match everything.
type ItemFilters struct {
	Category string
}

// ListItems returns items ordered by name, then id.
func (r Repo) ListItems(ctx context.Context, f ItemFilters) ([]domain.InventoryItem, error) {
	var res []domain.InventoryItem
	err := r.Scan(ctx, itemPrefix, "", false, func(key string, raw []byte) error {
		var it domain.InventoryItem
		if err := json.Unmarshal(raw, &it); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if f.Category != "" && it.Category != f.Category {
			return nil
		}
		res = append(res, it)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Name != res[j].Name {
			return res[i].Name < res[j].Name
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// --- projects ---

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	err := r.Get(ctx, projectPrefix+id, &p)
	return p, err
}

func (r Repo) PutProject(ctx context.Context, p domain.Project) error {
	if p.ItemIDs == nil {
		p.ItemIDs = []string{}
	}
	return r.Put(ctx, projectPrefix+p.ID, p)
}

func (r Repo) DeleteProject(ctx context.Context, id string) error {
	return r.Delete(ctx, projectPrefix+id)
}

// ListProjects returns projects newest first. An empty status matches all.
func (r Repo) ListProjects(ctx context.Context, status string) ([]domain.Project, error) {
	var res []domain.Project
	err := r.Scan(ctx, projectPrefix, "", false, func(key string, raw []byte) error {
		var p domain.Project
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if status != "" && p.Status != status {
			return nil
		}
		res = append(res, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].CreatedAt != res[j].CreatedAt {
			return res[i].CreatedAt > res[j].CreatedAt
		}
		return res[i].ID < res[j].ID
	})
	return res, nil
}

// --- settings ---

// GetSettingsOverrides returns the persisted overrides, empty if none.
func (r Repo) GetSettingsOverrides(ctx context.Context) (config.Overrides, error) {
	var payload string
	err := r.q().QueryRowContext(ctx, `SELECT value_json FROM kv WHERE key=?`, settingsKey).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return config.Overrides{}, nil
	}
	if err != nil {
		return nil, err
	}
	return config.FromJSON([]byte(payload))
}

func (r Repo) PutSettingsOverrides(ctx context.Context, o config.Overrides) error {
	norm, err := o.Normalize()
	if err != nil {
		return err
	}
	return r.Put(ctx, settingsKey, norm)
}

// --- events ---

// EventKey builds a key that sorts events chronologically.
func EventKey(ts time.Time, id string) string {
	return fmt.Sprintf("%s%020d:%s", eventPrefix, ts.UnixNano(), id)
}

func (r Repo) InsertEvent(ctx context.Context, key string, evt domain.Event) error {
	return r.Put(ctx, key, evt)
}

// EventFilters narrow LatestEvents. Zero values match everything.
type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
}

// EventPage is one page of events, newest first. NextCursor is empty on the
// last page.
type EventPage struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// LatestEvents returns up to limit events older than cursor.
func (r Repo) LatestEvents(ctx context.Context, limit int, cursor string, f EventFilters) (EventPage, error) {
	if limit <= 0 {
		limit = 20
	}
	page := EventPage{Items: []domain.Event{}}
	var lastKey string
	err := r.Scan(ctx, eventPrefix, cursor, true, func(key string, raw []byte) error {
		var evt domain.Event
		if err := json.Unmarshal(raw, &evt); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if (f.Type != "" && evt.Type != f.Type) ||
			(f.EntityKind != "" && evt.EntityKind != f.EntityKind) ||
			(f.EntityID != "" && evt.EntityID != f.EntityID) {
			return nil
		}
		if len(page.Items) == limit {
			page.NextCursor = lastKey
			return errStop
		}
		page.Items = append(page.Items, evt)
		lastKey = key
		return nil
	})
	return page, err
}
