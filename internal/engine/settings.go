package engine

import (
	"context"
	"fmt"

	"stageline/internal/config"
	"stageline/internal/events"
	"stageline/internal/repo"
)

// Settings returns the effective settings: defaults under stored overrides.
func (e Engine) Settings(ctx context.Context) (config.Settings, error) {
	var s config.Settings
	err := e.inTx(ctx, func(r repo.Repo) error {
		var err error
		s, err = settings(ctx, r)
		return err
	})
	return s, err
}

// UpdateSettings merges overrides into the stored ones. Every value is
// validated before anything is written.
func (e Engine) UpdateSettings(ctx context.Context, o config.Overrides, actorID string) (config.Settings, error) {
	norm, err := o.Normalize()
	if err != nil {
		return config.Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	var s config.Settings
	err = e.inTx(ctx, func(r repo.Repo) error {
		stored, err := r.GetSettingsOverrides(ctx)
		if err != nil {
			return fmt.Errorf("load settings: %w", err)
		}
		for k, v := range norm {
			stored[k] = v
		}
		if err := r.PutSettingsOverrides(ctx, stored); err != nil {
			return fmt.Errorf("store settings: %w", err)
		}
		if s, err = config.Load(stored); err != nil {
			return err
		}
		_, err = e.events().Append(ctx, r, "settings.update", "settings", "", actorID, events.EventPayload(norm))
		return err
	})
	if err != nil {
		return config.Settings{}, err
	}
	return s, nil
}

// SetSetting validates a single textual value and stores it.
func (e Engine) SetSetting(ctx context.Context, key, value, actorID string) (config.Settings, error) {
	o := config.Overrides{}
	if err := o.Set(key, value); err != nil {
		return config.Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return e.UpdateSettings(ctx, o, actorID)
}

// ImportSettings reads overrides from a YAML or JSON file and merges them.
func (e Engine) ImportSettings(ctx context.Context, path, actorID string) (config.Settings, error) {
	o, err := config.FromFile(path)
	if err != nil {
		return config.Settings{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return e.UpdateSettings(ctx, o, actorID)
}

// ResetSettings drops every stored override.
func (e Engine) ResetSettings(ctx context.Context, actorID string) (config.Settings, error) {
	err := e.inTx(ctx, func(r repo.Repo) error {
		if err := r.PutSettingsOverrides(ctx, config.Overrides{}); err != nil {
			return err
		}
		_, err := e.events().Append(ctx, r, "settings.reset", "settings", "", actorID, nil)
		return err
	})
	if err != nil {
		return config.Settings{}, err
	}
	return config.Default(), nil
}

// ListEvents returns a page of the activity log, newest first.
func (e Engine) ListEvents(ctx context.Context, limit int, cursor string, f repo.EventFilters) (repo.EventPage, error) {
	return e.Repo.LatestEvents(ctx, limit, cursor, f)
}
