package storage

import (
	"context"

	"github.com/advisorly/schedcore/internal/model"
	"github.com/advisorly/schedcore/internal/rules"
	"github.com/advisorly/schedcore/libs/db"
)

type RulesRepository struct {
	pool *db.Pool
}

func NewRulesRepository(pool *db.Pool) *RulesRepository {
	return &RulesRepository{pool: pool}
}

func (r *RulesRepository) ListActiveRules(ctx context.Context, personID string) ([]model.AvailabilityRule, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, person_id, weekday, start_minute, end_minute, timezone, active, created_at
		FROM availability_rules
		WHERE person_id = $1 AND active
		ORDER BY weekday, start_minute
	`, personID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AvailabilityRule
	for rows.Next() {
		var rule model.AvailabilityRule
		if err := rows.Scan(
			&rule.ID,
			&rule.PersonID,
			&rule.Weekday,
			&rule.StartMinute,
			&rule.EndMinute,
			&rule.Timezone,
			&rule.Active,
			&rule.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// Replace deactivates the person's active rule for the weekday and inserts
// the new one. Old rows stay behind so past weeks remain reproducible.
func (r *RulesRepository) Replace(ctx context.Context, rule model.AvailabilityRule) (model.AvailabilityRule, error) {
	if err := rules.Validate(rule); err != nil {
		return model.AvailabilityRule{}, err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return model.AvailabilityRule{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		UPDATE availability_rules
		SET active = false
		WHERE person_id = $1 AND weekday = $2 AND active
	`, rule.PersonID, rule.Weekday); err != nil {
		return model.AvailabilityRule{}, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO availability_rules (person_id, weekday, start_minute, end_minute, timezone, active)
		VALUES ($1, $2, $3, $4, $5, true)
		RETURNING id, created_at
	`, rule.PersonID, rule.Weekday, rule.StartMinute, rule.EndMinute, rule.Timezone).Scan(&rule.ID, &rule.CreatedAt)
	if err != nil {
		return model.AvailabilityRule{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return model.AvailabilityRule{}, err
	}
	rule.Active = true
	return rule, nil
}

// Clear deactivates the person's active rule for one weekday.
func (r *RulesRepository) Clear(ctx context.Context, personID string, weekday int) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE availability_rules
		SET active = false
		WHERE person_id = $1 AND weekday = $2 AND active
	`, personID, weekday)
	return err
}
