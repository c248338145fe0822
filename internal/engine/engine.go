package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"stageline/internal/config"
	"stageline/internal/domain"
	"stageline/internal/events"
	"stageline/internal/logger"
	"stageline/internal/repo"
)

var (
	// ErrInvalid marks rejected input.
	ErrInvalid         = errors.New("invalid input")
	ErrAlreadyExists   = errors.New("already exists")
	ErrProjectArchived = errors.New("project is archived")
	ErrItemInUse       = errors.New("item has units assigned to active projects")
)

// InsufficientStockError is returned when an assignment asks for more units
// than are currently available.
type InsufficientStockError struct {
	ItemID    string
	Requested int
	Available int
}

func (e InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for item %s: requested %d, available %d", e.ItemID, e.Requested, e.Available)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Engine runs every stateful operation. Settings are read from storage on
// each call, so overrides written by one process are seen by the next call.
type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Log    *logger.Logger
	Now    func() time.Time
}

func New(db *sql.DB, log *logger.Logger) Engine {
	if log == nil {
		log = logger.Nop()
	}
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{},
		Log:    log,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() *logger.Logger {
	if e.Log == nil {
		return logger.Nop()
	}
	return e.Log
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// inTx runs fn with a repo bound to a fresh transaction and commits when fn
// succeeds.
func (e Engine) inTx(ctx context.Context, fn func(r repo.Repo) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(e.Repo.WithTx(tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: field %s failed %s", ErrInvalid, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

// settings loads the effective settings through r.
func settings(ctx context.Context, r repo.Repo) (config.Settings, error) {
	o, err := r.GetSettingsOverrides(ctx)
	if err != nil {
		return config.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	return config.Load(o)
}

// activeProjects loads every active project through r.
func activeProjects(ctx context.Context, r repo.Repo) ([]domain.Project, error) {
	return r.ListProjects(ctx, domain.ProjectActive)
}

func loadProjectForWrite(ctx context.Context, r repo.Repo, id string, force bool) (domain.Project, error) {
	p, err := r.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, err)
	}
	if !p.Active() && !force {
		return domain.Project{}, fmt.Errorf("project %s: %w", id, ErrProjectArchived)
	}
	return p, nil
}
