package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/planner"
)

const calendarEventColumns = `id, user_id, course_id, title, description, kind, color, start_time, end_time, is_deadline, points, study_hours_needed, study_start, generated_by_engine, related_deadline_id, created_at, updated_at`

// CalendarEventRepository persists calendar events, deadlines and study sessions.
type CalendarEventRepository struct {
	db *sqlx.DB
}

// NewCalendarEventRepository constructs the repository.
func NewCalendarEventRepository(db *sqlx.DB) *CalendarEventRepository {
	return &CalendarEventRepository{db: db}
}

func (r *CalendarEventRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindByID returns a single event.
func (r *CalendarEventRepository) FindByID(ctx context.Context, id string) (*models.CalendarEvent, error) {
	query := `SELECT ` + calendarEventColumns + ` FROM calendar_events WHERE id = $1`
	var event models.CalendarEvent
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		return nil, err
	}
	return &event, nil
}

type busyRow struct {
	ID        string    `db:"id"`
	Kind      string    `db:"kind"`
	StartTime time.Time `db:"start_time"`
	EndTime   time.Time `db:"end_time"`
}

// ListBusyIntervals returns every event of the user touching [from, to), of any kind.
func (r *CalendarEventRepository) ListBusyIntervals(ctx context.Context, userID string, from, to time.Time) ([]planner.BusyInterval, error) {
	const query = `SELECT id, kind, start_time, end_time FROM calendar_events
WHERE user_id = $1 AND start_time < $3 AND end_time >= $2
ORDER BY start_time ASC, id ASC`
	var rows []busyRow
	if err := r.db.SelectContext(ctx, &rows, query, userID, from, to); err != nil {
		return nil, fmt.Errorf("list busy intervals: %w", err)
	}

	intervals := make([]planner.BusyInterval, 0, len(rows))
	for _, row := range rows {
		if _, err := models.ParseEventKind(row.Kind); err != nil {
			return nil, fmt.Errorf("event %s: %w", row.ID, err)
		}
		intervals = append(intervals, planner.BusyInterval{Start: row.StartTime, End: row.EndTime, SourceID: row.ID})
	}
	return intervals, nil
}

// CreateBatch inserts events, assigning ids and timestamps where missing.
func (r *CalendarEventRepository) CreateBatch(ctx context.Context, exec sqlx.ExtContext, events []models.CalendarEvent) error {
	if len(events) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	query := `INSERT INTO calendar_events (` + calendarEventColumns + `)
VALUES (:id, :user_id, :course_id, :title, :description, :kind, :color, :start_time, :end_time, :is_deadline, :points, :study_hours_needed, :study_start, :generated_by_engine, :related_deadline_id, :created_at, :updated_at)`

	for i := range events {
		event := &events[i]
		if event.ID == "" {
			event.ID = uuid.NewString()
		}
		if event.Kind == "" {
			event.Kind = models.EventKindOther
		}
		if event.CreatedAt.IsZero() {
			event.CreatedAt = now
		}
		event.UpdatedAt = now
		if _, err := sqlx.NamedExecContext(ctx, target, query, event); err != nil {
			return fmt.Errorf("insert calendar event: %w", err)
		}
	}
	return nil
}

// DeleteGeneratedByDeadline removes engine-generated study sessions of a deadline and
// returns how many were removed. Course links go with them through the foreign key.
func (r *CalendarEventRepository) DeleteGeneratedByDeadline(ctx context.Context, deadlineID string) (int, error) {
	const query = `DELETE FROM calendar_events WHERE related_deadline_id = $1 AND generated_by_engine AND kind = $2`
	res, err := r.db.ExecContext(ctx, query, deadlineID, string(models.EventKindSelfStudy))
	if err != nil {
		return 0, fmt.Errorf("delete planned sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete planned sessions rows affected: %w", err)
	}
	return int(affected), nil
}

// ListSessionsByCourse returns the self-study sessions of a course with their deadline title.
func (r *CalendarEventRepository) ListSessionsByCourse(ctx context.Context, courseID string) ([]models.SessionView, error) {
	const query = `SELECT e.id, e.user_id, e.course_id, e.title, e.description, e.kind, e.color, e.start_time, e.end_time,
	e.is_deadline, e.points, e.study_hours_needed, e.study_start, e.generated_by_engine, e.related_deadline_id,
	e.created_at, e.updated_at, d.title AS deadline_title
FROM calendar_events e
LEFT JOIN calendar_events d ON d.id = e.related_deadline_id
WHERE e.course_id = $1 AND e.kind = $2
ORDER BY e.start_time ASC`
	var sessions []models.SessionView
	if err := r.db.SelectContext(ctx, &sessions, query, courseID, string(models.EventKindSelfStudy)); err != nil {
		return nil, fmt.Errorf("list course sessions: %w", err)
	}
	return sessions, nil
}

// CourseStats counts the course's events, those already finished at now, and the
// minutes of self-study on it.
func (r *CalendarEventRepository) CourseStats(ctx context.Context, courseID string, now time.Time) (models.CourseEventStats, error) {
	const query = `SELECT COUNT(*) AS total_events,
	COUNT(*) FILTER (WHERE end_time <= $2) AS completed_events,
	COALESCE(SUM(EXTRACT(EPOCH FROM (end_time - start_time)) / 60) FILTER (WHERE kind = $3), 0)::int AS self_study_minutes
FROM calendar_events WHERE course_id = $1`
	var stats models.CourseEventStats
	if err := r.db.GetContext(ctx, &stats, query, courseID, now, string(models.EventKindSelfStudy)); err != nil {
		return stats, fmt.Errorf("course event stats: %w", err)
	}
	return stats, nil
}

// Update rewrites the editable fields of an event. A missing row yields sql.ErrNoRows.
func (r *CalendarEventRepository) Update(ctx context.Context, exec sqlx.ExtContext, event *models.CalendarEvent) error {
	event.UpdatedAt = time.Now().UTC()
	const query = `UPDATE calendar_events SET course_id = :course_id, title = :title, description = :description, kind = :kind,
color = :color, start_time = :start_time, end_time = :end_time, is_deadline = :is_deadline, points = :points,
study_hours_needed = :study_hours_needed, study_start = :study_start, updated_at = :updated_at
WHERE id = :id`
	res, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, event)
	if err != nil {
		return fmt.Errorf("update calendar event: %w", err)
	}
	return requireAffected(res, "update calendar event")
}

// Delete removes one event. A missing row yields sql.ErrNoRows.
func (r *CalendarEventRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM calendar_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return requireAffected(res, "delete calendar event")
}

// DeleteSessionsByDeadline removes every self-study session tied to a deadline,
// generated or entered by hand, and returns how many went.
func (r *CalendarEventRepository) DeleteSessionsByDeadline(ctx context.Context, exec sqlx.ExtContext, deadlineID string) (int, error) {
	const query = `DELETE FROM calendar_events WHERE related_deadline_id = $1 AND kind = $2`
	res, err := r.exec(exec).ExecContext(ctx, query, deadlineID, string(models.EventKindSelfStudy))
	if err != nil {
		return 0, fmt.Errorf("delete deadline sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete deadline sessions rows affected: %w", err)
	}
	return int(affected), nil
}

// ListDeadlinesByCourse returns a course's deadlines, earliest due first.
func (r *CalendarEventRepository) ListDeadlinesByCourse(ctx context.Context, courseID string) ([]models.CalendarEvent, error) {
	query := `SELECT ` + calendarEventColumns + ` FROM calendar_events
WHERE course_id = $1 AND is_deadline
ORDER BY start_time ASC, id ASC`
	var deadlines []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &deadlines, query, courseID); err != nil {
		return nil, fmt.Errorf("list course deadlines: %w", err)
	}
	return deadlines, nil
}

// ListByUserRange returns every event of the user overlapping [from, to).
func (r *CalendarEventRepository) ListByUserRange(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error) {
	query := `SELECT ` + calendarEventColumns + ` FROM calendar_events
WHERE user_id = $1 AND start_time < $3 AND end_time >= $2
ORDER BY start_time ASC, id ASC`
	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, userID, from, to); err != nil {
		return nil, fmt.Errorf("list calendar events: %w", err)
	}
	return events, nil
}

// ListUpcoming returns the next limit events of the user starting after the given instant.
func (r *CalendarEventRepository) ListUpcoming(ctx context.Context, userID string, after time.Time, limit int) ([]models.CalendarEvent, error) {
	query := `SELECT ` + calendarEventColumns + ` FROM calendar_events
WHERE user_id = $1 AND start_time > $2
ORDER BY start_time ASC, id ASC LIMIT $3`
	var events []models.CalendarEvent
	if err := r.db.SelectContext(ctx, &events, query, userID, after, limit); err != nil {
		return nil, fmt.Errorf("list upcoming events: %w", err)
	}
	return events, nil
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
