package dto

import "time"

// DeadlineRequest creates or replaces a course deadline.
type DeadlineRequest struct {
	Title            string     `json:"title" validate:"required,max=200"`
	Description      string     `json:"description" validate:"omitempty,max=2000"`
	DueAt            time.Time  `json:"dueAt" validate:"required"`
	StudyHoursNeeded int        `json:"studyHoursNeeded" validate:"min=0,max=1000"`
	Points           int        `json:"points" validate:"min=0"`
	StudyStart       *time.Time `json:"studyStart"`
	Color            string     `json:"color" validate:"omitempty,hexcolor"`
}

// DeadlineResponse is a deadline as shown on a course.
type DeadlineResponse struct {
	ID               string     `json:"id"`
	CourseID         string     `json:"courseId"`
	Title            string     `json:"title"`
	Description      string     `json:"description,omitempty"`
	DueAt            time.Time  `json:"dueAt"`
	StudyHoursNeeded int        `json:"studyHoursNeeded"`
	Points           int        `json:"points"`
	StudyStart       *time.Time `json:"studyStart,omitempty"`
	Color            string     `json:"color"`
}

// EventRequest creates or replaces a plain calendar entry. Deadlines and
// self-study sessions have their own endpoints.
type EventRequest struct {
	Title       string    `json:"title" validate:"required,max=200"`
	Description string    `json:"description" validate:"omitempty,max=2000"`
	Kind        string    `json:"kind" validate:"omitempty,oneof=lecture exam other"`
	Color       string    `json:"color" validate:"omitempty,hexcolor"`
	Start       time.Time `json:"start" validate:"required"`
	End         time.Time `json:"end" validate:"required,gtfield=Start"`
	CourseID    *string   `json:"courseId"`
	Points      int       `json:"points" validate:"min=0"`
}

// EventResponse is one calendar entry of any kind.
type EventResponse struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Kind              string    `json:"kind"`
	Color             string    `json:"color"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	CourseID          *string   `json:"courseId,omitempty"`
	IsDeadline        bool      `json:"isDeadline"`
	Points            int       `json:"points"`
	GeneratedByEngine bool      `json:"generatedByEngine"`
	DurationHours     float64   `json:"durationHours"`
}

// EventRangeQuery bounds a calendar listing. Times are RFC 3339.
type EventRangeQuery struct {
	From time.Time `form:"from" validate:"required"`
	To   time.Time `form:"to" validate:"required,gtfield=From"`
}

// DeleteEventResponse reports a removed event and the self-study sessions removed with it.
type DeleteEventResponse struct {
	ID              string `json:"id"`
	SessionsDeleted int    `json:"sessionsDeleted"`
}
