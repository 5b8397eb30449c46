package models

import (
	"fmt"
	"strings"
	"time"
)

// EventKind classifies calendar entries.
type EventKind string

const (
	EventKindLecture   EventKind = "lecture"
	EventKindExam      EventKind = "exam"
	EventKindDeadline  EventKind = "deadline"
	EventKindSelfStudy EventKind = "self-study"
	EventKindOther     EventKind = "other"
)

// ParseEventKind maps a stored kind onto the known set. Empty strings map to other.
func ParseEventKind(raw string) (EventKind, error) {
	switch kind := EventKind(strings.ToLower(strings.TrimSpace(raw))); kind {
	case EventKindLecture, EventKindExam, EventKindDeadline, EventKindSelfStudy, EventKindOther:
		return kind, nil
	case "":
		return EventKindOther, nil
	default:
		return "", fmt.Errorf("unknown event kind %q", raw)
	}
}

// DefaultColor is the display color for events created without one.
func (k EventKind) DefaultColor() string {
	switch k {
	case EventKindLecture:
		return "#4285F4"
	case EventKindDeadline:
		return "#0F9D58"
	case EventKindExam:
		return "#DB4437"
	case EventKindSelfStudy:
		return "#F4B400"
	default:
		return "#AAAAAA"
	}
}

// CalendarEvent is a single entry on a user's calendar.
type CalendarEvent struct {
	ID                string     `db:"id" json:"id"`
	UserID            string     `db:"user_id" json:"user_id"`
	CourseID          *string    `db:"course_id" json:"course_id,omitempty"`
	Title             string     `db:"title" json:"title"`
	Description       string     `db:"description" json:"description"`
	Kind              EventKind  `db:"kind" json:"kind"`
	Color             string     `db:"color" json:"color"`
	StartTime         time.Time  `db:"start_time" json:"start_time"`
	EndTime           time.Time  `db:"end_time" json:"end_time"`
	IsDeadline        bool       `db:"is_deadline" json:"is_deadline"`
	Points            int        `db:"points" json:"points"`
	StudyHoursNeeded  int        `db:"study_hours_needed" json:"study_hours_needed"`
	StudyStart        *time.Time `db:"study_start" json:"study_start,omitempty"`
	GeneratedByEngine bool       `db:"generated_by_engine" json:"generated_by_engine"`
	RelatedDeadlineID *string    `db:"related_deadline_id" json:"related_deadline_id,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
}

// DueAt is the deadline instant. Deadlines store it as their start time.
func (e CalendarEvent) DueAt() time.Time {
	return e.StartTime
}

// BelongsTo reports whether the event is attached to courseID.
func (e CalendarEvent) BelongsTo(courseID string) bool {
	return e.CourseID != nil && *e.CourseID == courseID
}

// SessionView is a self-study session joined with the title of its deadline.
type SessionView struct {
	CalendarEvent
	DeadlineTitle *string `db:"deadline_title" json:"deadline_title,omitempty"`
}

// CourseEventStats aggregates event counts for progress reporting.
type CourseEventStats struct {
	TotalEvents      int `db:"total_events"`
	CompletedEvents  int `db:"completed_events"`
	SelfStudyMinutes int `db:"self_study_minutes"`
}
