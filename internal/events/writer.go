package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stageline/internal/domain"
	"stageline/internal/repo"
)

type Writer struct {
	Now func() time.Time
}

type EventPayload map[string]any

// Append records an activity event through r, which is usually bound to the
// transaction of the mutation being recorded.
func (w Writer) Append(ctx context.Context, r repo.Repo, evtType, entityKind, entityID, actorID string, payload EventPayload) (domain.Event, error) {
	now := time.Now
	if w.Now != nil {
		now = w.Now
	}
	ts := now().UTC()
	if payload == nil {
		payload = EventPayload{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, fmt.Errorf("marshal event payload: %w", err)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	evt := domain.Event{
		ID:         uuid.NewString(),
		TS:         ts.Format(time.RFC3339Nano),
		Type:       evtType,
		EntityKind: entityKind,
		EntityID:   entityID,
		ActorID:    actorID,
		Payload:    string(data),
	}
	if err := r.InsertEvent(ctx, repo.EventKey(ts, evt.ID), evt); err != nil {
		return domain.Event{}, fmt.Errorf("insert event: %w", err)
	}
	return evt, nil
}
