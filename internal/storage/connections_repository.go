package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/libs/db"
)

type ConnectionsRepository struct {
	pool *db.Pool
}

func NewConnectionsRepository(pool *db.Pool) *ConnectionsRepository {
	return &ConnectionsRepository{pool: pool}
}

func (r *ConnectionsRepository) GetConnection(ctx context.Context, personID string) (model.CalendarConnection, bool, error) {
	var conn model.CalendarConnection
	err := r.pool.QueryRow(ctx, `
		SELECT person_id, provider, feed_url, push_url, auth_token, enabled, status, updated_at
		FROM calendar_connections
		WHERE person_id = $1
	`, personID).Scan(
		&conn.PersonID,
		&conn.Provider,
		&conn.FeedURL,
		&conn.PushURL,
		&conn.AuthToken,
		&conn.Enabled,
		&conn.Status,
		&conn.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.CalendarConnection{}, false, nil
	}
	if err != nil {
		return model.CalendarConnection{}, false, err
	}
	return conn, true, nil
}

func (r *ConnectionsRepository) Upsert(ctx context.Context, conn model.CalendarConnection) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO calendar_connections (person_id, provider, feed_url, push_url, auth_token, enabled, status, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (person_id) DO UPDATE
		SET provider = EXCLUDED.provider,
			feed_url = EXCLUDED.feed_url,
			push_url = EXCLUDED.push_url,
			auth_token = EXCLUDED.auth_token,
			enabled = EXCLUDED.enabled,
			status = EXCLUDED.status,
			updated_at = now()
	`, conn.PersonID, conn.Provider, conn.FeedURL, conn.PushURL, conn.AuthToken, conn.Enabled, conn.Status)
	return err
}

func (r *ConnectionsRepository) SetStatus(ctx context.Context, personID, status string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE calendar_connections
		SET status = $2,
			updated_at = now()
		WHERE person_id = $1
	`, personID, status)
	return err
}
