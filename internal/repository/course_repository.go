package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/study-planner-api/internal/models"
)

// CourseRepository persists courses and their event links.
type CourseRepository struct {
	db *sqlx.DB
}

// NewCourseRepository constructs the repository.
func NewCourseRepository(db *sqlx.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const courseColumns = `id, user_id, name, color, course_identifier, difficulty, created_at, updated_at`

// FindByID returns a course by id.
func (r *CourseRepository) FindByID(ctx context.Context, id string) (*models.Course, error) {
	query := `SELECT ` + courseColumns + ` FROM courses WHERE id = $1`
	var course models.Course
	if err := r.db.GetContext(ctx, &course, query, id); err != nil {
		return nil, err
	}
	return &course, nil
}

// AppendEventIDs links events to a course. Existing links are left untouched.
func (r *CourseRepository) AppendEventIDs(ctx context.Context, exec sqlx.ExtContext, courseID string, eventIDs []string) error {
	if len(eventIDs) == 0 {
		return nil
	}
	const query = `INSERT INTO course_event_ids (course_id, event_id, linked_at)
SELECT $1, event_id, $3 FROM unnest($2::text[]) AS event_id
ON CONFLICT (course_id, event_id) DO NOTHING`
	if _, err := r.exec(exec).ExecContext(ctx, query, courseID, pq.Array(eventIDs), time.Now().UTC()); err != nil {
		return fmt.Errorf("append course event ids: %w", err)
	}
	return nil
}

// List returns one page of a user's courses ordered by name, with the total count.
func (r *CourseRepository) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM courses WHERE user_id = $1 ORDER BY name ASC, id ASC LIMIT %d OFFSET %d`, courseColumns, size, offset)
	var courses []models.Course
	if err := r.db.SelectContext(ctx, &courses, query, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("list courses: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM courses WHERE user_id = $1`, filter.UserID); err != nil {
		return nil, 0, fmt.Errorf("count courses: %w", err)
	}
	return courses, total, nil
}

// ExistsByIdentifier reports whether the user already has a course with this identifier.
func (r *CourseRepository) ExistsByIdentifier(ctx context.Context, userID, identifier string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM courses WHERE user_id = $1 AND course_identifier = $2)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, userID, identifier); err != nil {
		return false, fmt.Errorf("check course identifier: %w", err)
	}
	return exists, nil
}

// Create inserts a course.
func (r *CourseRepository) Create(ctx context.Context, course *models.Course) error {
	if course.ID == "" {
		course.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if course.CreatedAt.IsZero() {
		course.CreatedAt = now
	}
	course.UpdatedAt = now
	query := `INSERT INTO courses (` + courseColumns + `)
VALUES (:id, :user_id, :name, :color, :course_identifier, :difficulty, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, course); err != nil {
		return fmt.Errorf("create course: %w", err)
	}
	return nil
}
