package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/libs/db"
)

const eventTypeColumns = `id::text, owner_id, name, duration_minutes, buffer_before_minutes,
	buffer_after_minutes, active, created_at`

// Buffers feed a fixed-width widening of busy queries, so they are capped.
const maxBufferMinutes = 240

var ErrInvalidEventType = errors.New("invalid event type")

type EventTypesRepository struct {
	pool *db.Pool
}

func NewEventTypesRepository(pool *db.Pool) *EventTypesRepository {
	return &EventTypesRepository{pool: pool}
}

func (r *EventTypesRepository) GetEventType(ctx context.Context, id string) (model.EventType, bool, error) {
	et, err := scanEventType(r.pool.QueryRow(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE id = $1
	`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EventType{}, false, nil
	}
	if err != nil {
		return model.EventType{}, false, err
	}
	return et, true, nil
}

func (r *EventTypesRepository) Create(ctx context.Context, et *model.EventType) (string, error) {
	if et.DurationMins <= 0 {
		return "", fmt.Errorf("%w: duration must be positive", ErrInvalidEventType)
	}
	if et.BufferBefore < 0 || et.BufferAfter < 0 ||
		et.BufferBefore > maxBufferMinutes || et.BufferAfter > maxBufferMinutes {
		return "", fmt.Errorf("%w: buffers must be between 0 and %d minutes", ErrInvalidEventType, maxBufferMinutes)
	}

	var id string
	err := r.pool.QueryRow(ctx, `
		INSERT INTO event_types (owner_id, name, duration_minutes, buffer_before_minutes, buffer_after_minutes, active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id::text
	`, et.OwnerID, et.Name, et.DurationMins, et.BufferBefore, et.BufferAfter).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (r *EventTypesRepository) ListByOwner(ctx context.Context, ownerID string) ([]model.EventType, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+eventTypeColumns+`
		FROM event_types
		WHERE owner_id = $1 AND active
		ORDER BY created_at
	`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.EventType
	for rows.Next() {
		et, err := scanEventType(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, et)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (r *EventTypesRepository) Deactivate(ctx context.Context, ownerID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE event_types
		SET active = false
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func scanEventType(row rowScanner) (model.EventType, error) {
	var et model.EventType
	err := row.Scan(
		&et.ID,
		&et.OwnerID,
		&et.Name,
		&et.DurationMins,
		&et.BufferBefore,
		&et.BufferAfter,
		&et.Active,
		&et.CreatedAt,
	)
	if err != nil {
		return model.EventType{}, err
	}
	return et, nil
}
