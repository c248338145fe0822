package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"stageline/internal/config"
	"stageline/internal/db"
	"stageline/internal/engine"
	"stageline/internal/logger"
	"stageline/internal/migrate"
	"stageline/internal/repo"
	"stageline/internal/staging"
)

// Workspace is an opened, migrated workspace and the engine bound to it.
type Workspace struct {
	Dir    string
	DB     *sql.DB
	Engine engine.Engine
}

// LoadEnv reads <dir>/.env into the process environment. Variables already
// set win, and a missing file is not an error.
func LoadEnv(dir string) error {
	if dir == "" {
		dir = "."
	}
	err := godotenv.Load(filepath.Join(dir, ".env"))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// Open opens the workspace database, applies pending migrations and checks
// that the stored settings still parse.
func Open(ctx context.Context, dir string, log *logger.Logger) (*Workspace, error) {
	if log == nil {
		log = logger.Nop()
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, fmt.Errorf("open workspace: %w", err)
	}
	version, err := migrate.MigrateContext(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	o, err := repo.Repo{DB: conn}.GetSettingsOverrides(ctx)
	if err == nil {
		_, err = config.Load(o)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("stored settings: %w", err)
	}
	log.Debug(log.WithFields(ctx, map[string]any{
		"db": db.Path(dir), "schema_version": version,
	}), "workspace opened")
	return &Workspace{Dir: dir, DB: conn, Engine: engine.New(conn, log)}, nil
}

// PinToday fixes the engine clock to the given YYYY-MM-DD date at the
// current time of day. An empty value keeps the real clock.
func (w *Workspace) PinToday(value string) error {
	if value == "" {
		return nil
	}
	day, err := staging.ParseDate(value, time.Local)
	if err != nil {
		return fmt.Errorf("invalid --today %q: %w", value, err)
	}
	w.Engine.Now = func() time.Time {
		now := time.Now()
		return day.Add(now.Sub(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())))
	}
	return nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}
