package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/models"
)

func TestCourseRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "color", "course_identifier", "difficulty", "created_at", "updated_at"}).
		AddRow("course-1", "user-1", "Algorithms", "#FF0000", nil, 3, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, name, color, course_identifier, difficulty, created_at, updated_at FROM courses WHERE id = $1")).
		WithArgs("course-1").
		WillReturnRows(rows)

	course, err := repo.FindByID(context.Background(), "course-1")
	require.NoError(t, err)
	assert.Equal(t, "#FF0000", course.Color)
	assert.Equal(t, 3, course.Difficulty)
	assert.Nil(t, course.CourseIdentifier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAppendEventIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO course_event_ids").
		WithArgs("course-1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.AppendEventIDs(context.Background(), nil, "course-1", []string{"ev-1", "ev-2"}))
	require.NoError(t, repo.AppendEventIDs(context.Background(), nil, "course-1", nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryAppendEventIDsUsesTransaction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO course_event_ids").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, repo.AppendEventIDs(context.Background(), tx, "course-1", []string{"ev-1"}))
	require.NoError(t, tx.Commit())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "color", "course_identifier", "difficulty", "created_at", "updated_at"}).
		AddRow("course-2", "user-1", "Databases", "#00FF00", "DB101", 2, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("FROM courses WHERE user_id = $1 ORDER BY name ASC, id ASC LIMIT 10 OFFSET 10")).
		WithArgs("user-1").
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM courses WHERE user_id = $1")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(11))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{UserID: "user-1", Page: 2, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, 11, total)
	require.NotNil(t, courses[0].CourseIdentifier)
	assert.Equal(t, "DB101", *courses[0].CourseIdentifier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryListClampsPaging(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("LIMIT 50 OFFSET 0")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	courses, total, err := repo.List(context.Background(), models.CourseFilter{UserID: "user-1", Page: -3, PageSize: 1000})
	require.NoError(t, err)
	assert.Empty(t, courses)
	assert.Zero(t, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepositoryExistsByIdentifier(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("user-1", "CS101").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByIdentifier(context.Background(), "user-1", "CS101")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCourseRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCourseRepository(db)

	mock.ExpectExec("INSERT INTO courses").WillReturnResult(sqlmock.NewResult(1, 1))

	course := &models.Course{UserID: "user-1", Name: "Algorithms", Color: "#FF0000", Difficulty: 3}
	require.NoError(t, repo.Create(context.Background(), course))
	assert.NotEmpty(t, course.ID)
	assert.False(t, course.CreatedAt.IsZero())
	assert.Equal(t, course.CreatedAt, course.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
