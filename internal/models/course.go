package models

import "time"

// Difficulty levels used for workload estimates.
const (
	DifficultyEasy   = 1
	DifficultyMedium = 2
	DifficultyHard   = 3
)

// Course groups a user's lectures, deadlines and study sessions.
type Course struct {
	ID               string    `db:"id" json:"id"`
	UserID           string    `db:"user_id" json:"user_id"`
	Name             string    `db:"name" json:"name"`
	Color            string    `db:"color" json:"color"`
	CourseIdentifier *string   `db:"course_identifier" json:"course_identifier,omitempty"`
	Difficulty       int       `db:"difficulty" json:"difficulty"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultCourseColor is applied when a course is created without a color.
const DefaultCourseColor = "#4285F4"

// CourseFilter narrows a course listing to one user, one page at a time.
type CourseFilter struct {
	UserID   string
	Page     int
	PageSize int
}
