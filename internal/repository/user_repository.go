package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-planner-api/internal/models"
)

// UserRepository reads and updates users and their planner preferences.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// GetPreferences returns the raw availability settings of a user.
func (r *UserRepository) GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	const query = `SELECT id, preferred_study_days, preferred_start_time, preferred_end_time, preferred_break_time, preferred_session_duration, updated_at FROM users WHERE id = $1`
	var prefs models.UserPreferences
	if err := r.db.GetContext(ctx, &prefs, query, userID); err != nil {
		return nil, err
	}
	return &prefs, nil
}

// UpdatePreferences overwrites the availability settings. A missing user yields sql.ErrNoRows.
func (r *UserRepository) UpdatePreferences(ctx context.Context, prefs *models.UserPreferences) error {
	prefs.UpdatedAt = time.Now().UTC()

	const query = `UPDATE users SET preferred_study_days = :preferred_study_days,
		preferred_start_time = :preferred_start_time,
		preferred_end_time = :preferred_end_time,
		preferred_break_time = :preferred_break_time,
		preferred_session_duration = :preferred_session_duration,
		updated_at = :updated_at
		WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, prefs)
	if err != nil {
		return fmt.Errorf("update user preferences: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update user preferences rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
