package models

import (
	"time"

	"github.com/noah-isme/study-planner-api/internal/planner"
)

// UserPreferences holds the availability settings the planner reads, as stored.
type UserPreferences struct {
	UserID          string    `db:"id" json:"user_id"`
	StudyDays       string    `db:"preferred_study_days" json:"study_days"`
	StartTime       string    `db:"preferred_start_time" json:"start_time"`
	EndTime         string    `db:"preferred_end_time" json:"end_time"`
	BreakTime       string    `db:"preferred_break_time" json:"break_time"`
	SessionDuration string    `db:"preferred_session_duration" json:"session_duration"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// Raw converts stored preferences into the planner input.
func (p UserPreferences) Raw() planner.RawPreferences {
	return planner.RawPreferences{
		StudyDays:       p.StudyDays,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		BreakTime:       p.BreakTime,
		SessionDuration: p.SessionDuration,
	}
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
