package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

func (f *plannerFixture) calendar(tx txProvider) *CalendarService {
	svc := NewCalendarService(f.courses, f.events, tx, f.locker, nil, nil)
	svc.now = func() time.Time { return jan(1, 0) }
	return svc
}

func deadlineRequest() dto.DeadlineRequest {
	studyStart := jan(2, 0)
	return dto.DeadlineRequest{
		Title:            " Project report ",
		DueAt:            jan(15, 23),
		StudyHoursNeeded: 6,
		Points:           30,
		StudyStart:       &studyStart,
	}
}

func TestCalendarServiceCreateDeadline(t *testing.T) {
	f := newPlannerFixture()

	resp, err := f.calendar(nil).CreateDeadline(context.Background(), "user-1", "course-1", deadlineRequest())
	require.NoError(t, err)

	assert.Equal(t, "Project report", resp.Title)
	assert.Equal(t, "course-1", resp.CourseID)
	assert.Equal(t, "#FF8800", resp.Color)
	assert.Equal(t, jan(15, 23), resp.DueAt)
	assert.Equal(t, 6, resp.StudyHoursNeeded)
	assert.Equal(t, 30, resp.Points)

	require.Len(t, f.events.created, 1)
	saved := f.events.created[0]
	assert.Equal(t, resp.ID, saved.ID)
	assert.True(t, saved.IsDeadline)
	assert.Equal(t, models.EventKindDeadline, saved.Kind)
	assert.Equal(t, saved.StartTime, saved.EndTime)
	require.NotNil(t, saved.StudyStart)
	assert.Equal(t, jan(2, 0), *saved.StudyStart)
	assert.Equal(t, []string{resp.ID}, f.courses.linked["course-1"])
}

func TestCalendarServiceCreateDeadlineRejections(t *testing.T) {
	late := jan(20, 0)
	cases := []struct {
		name     string
		courseID string
		mutate   func(*dto.DeadlineRequest)
		want     *appErrors.Error
	}{
		{name: "missing title", courseID: "course-1", mutate: func(r *dto.DeadlineRequest) { r.Title = "" }, want: appErrors.ErrValidation},
		{name: "negative hours", courseID: "course-1", mutate: func(r *dto.DeadlineRequest) { r.StudyHoursNeeded = -1 }, want: appErrors.ErrValidation},
		{name: "study start after due", courseID: "course-1", mutate: func(r *dto.DeadlineRequest) { r.StudyStart = &late }, want: appErrors.ErrValidation},
		{name: "foreign course", courseID: "course-2", want: appErrors.ErrForbidden},
		{name: "unknown course", courseID: "course-9", want: appErrors.ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newPlannerFixture()
			req := deadlineRequest()
			if tc.mutate != nil {
				tc.mutate(&req)
			}
			_, err := f.calendar(nil).CreateDeadline(context.Background(), "user-1", tc.courseID, req)
			assert.ErrorIs(t, err, tc.want)
			assert.Empty(t, f.events.created)
		})
	}
}

func TestCalendarServiceCreateDeadlineRollsBackWhenLinkFails(t *testing.T) {
	f := newPlannerFixture()
	f.courses.appendErr = errors.New("link failed")
	tx, mock := newTxProviderMock(t)
	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := f.calendar(tx).CreateDeadline(context.Background(), "user-1", "course-1", deadlineRequest())
	assert.ErrorIs(t, err, appErrors.ErrPersistence)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCalendarServiceUpdateDeadline(t *testing.T) {
	f := newPlannerFixture()
	req := deadlineRequest()
	req.Color = "#123456"
	req.StudyStart = nil

	resp, err := f.calendar(nil).UpdateDeadline(context.Background(), "user-1", "dl-1", req)
	require.NoError(t, err)
	assert.Equal(t, "#123456", resp.Color)
	assert.Nil(t, resp.StudyStart)

	stored := f.events.events["dl-1"]
	assert.Equal(t, "Project report", stored.Title)
	assert.Equal(t, jan(15, 23), stored.DueAt())
	assert.True(t, stored.IsDeadline)

	_, err = f.calendar(nil).UpdateDeadline(context.Background(), "user-1", "lecture-1", deadlineRequest())
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
	_, err = f.calendar(nil).UpdateDeadline(context.Background(), "user-2", "dl-1", deadlineRequest())
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCalendarServiceDeadlineEditsWaitForPlanningRun(t *testing.T) {
	f := newPlannerFixture()
	release, err := f.locker.Acquire(context.Background(), deadlineLockKey("dl-1"))
	require.NoError(t, err)

	_, err = f.calendar(nil).UpdateDeadline(context.Background(), "user-1", "dl-1", deadlineRequest())
	assert.ErrorIs(t, err, appErrors.ErrLocked)
	_, err = f.calendar(nil).DeleteDeadline(context.Background(), "user-1", "dl-1")
	assert.ErrorIs(t, err, appErrors.ErrLocked)
	assert.Contains(t, f.events.events, "dl-1")

	require.NoError(t, release(context.Background()))
	_, err = f.calendar(nil).DeleteDeadline(context.Background(), "user-1", "dl-1")
	assert.NoError(t, err)
}

func TestCalendarServiceDeleteDeadlineRemovesItsSessions(t *testing.T) {
	f := newPlannerFixture()
	dl1, dl2 := "dl-1", "dl-2"
	f.events.events["gen-1"] = &models.CalendarEvent{ID: "gen-1", UserID: "user-1", Kind: models.EventKindSelfStudy, GeneratedByEngine: true, RelatedDeadlineID: &dl1}
	f.events.events["man-1"] = &models.CalendarEvent{ID: "man-1", UserID: "user-1", Kind: models.EventKindSelfStudy, RelatedDeadlineID: &dl1}
	f.events.events["other-1"] = &models.CalendarEvent{ID: "other-1", UserID: "user-1", Kind: models.EventKindSelfStudy, RelatedDeadlineID: &dl2}

	_, err := f.calendar(nil).DeleteDeadline(context.Background(), "user-2", "dl-1")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	resp, err := f.calendar(nil).DeleteDeadline(context.Background(), "user-1", "dl-1")
	require.NoError(t, err)
	assert.Equal(t, "dl-1", resp.ID)
	assert.Equal(t, 2, resp.SessionsDeleted)
	assert.NotContains(t, f.events.events, "dl-1")
	assert.NotContains(t, f.events.events, "gen-1")
	assert.NotContains(t, f.events.events, "man-1")
	assert.Contains(t, f.events.events, "other-1")

	_, err = f.calendar(nil).DeleteDeadline(context.Background(), "user-1", "dl-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCalendarServiceListDeadlines(t *testing.T) {
	f := newPlannerFixture()

	deadlines, err := f.calendar(nil).ListDeadlines(context.Background(), "user-1", "course-1")
	require.NoError(t, err)
	require.Len(t, deadlines, 1)
	assert.Equal(t, "dl-1", deadlines[0].ID)
	assert.Equal(t, jan(8, 10), deadlines[0].DueAt)

	_, err = f.calendar(nil).ListDeadlines(context.Background(), "user-1", "course-2")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCalendarServiceCreateEventColorsAndLinks(t *testing.T) {
	f := newPlannerFixture()
	svc := f.calendar(nil)
	courseID := "course-1"

	exam, err := svc.CreateEvent(context.Background(), "user-1", dto.EventRequest{
		Title: "Midterm", Kind: "exam", Start: jan(10, 9), End: jan(10, 11),
	})
	require.NoError(t, err)
	assert.True(t, exam.IsDeadline)
	assert.Equal(t, "#DB4437", exam.Color)
	assert.Equal(t, 2.0, exam.DurationHours)
	assert.Empty(t, f.courses.linked)

	lecture, err := svc.CreateEvent(context.Background(), "user-1", dto.EventRequest{
		Title: "Lecture", Kind: "lecture", Start: jan(2, 14), End: jan(2, 16), CourseID: &courseID,
	})
	require.NoError(t, err)
	assert.False(t, lecture.IsDeadline)
	assert.Equal(t, "#FF8800", lecture.Color)
	assert.Equal(t, []string{lecture.ID}, f.courses.linked["course-1"])

	other, err := svc.CreateEvent(context.Background(), "user-1", dto.EventRequest{
		Title: "Gym", Start: jan(3, 18), End: jan(3, 19), Color: "#00AA00",
	})
	require.NoError(t, err)
	assert.Equal(t, string(models.EventKindOther), other.Kind)
	assert.Equal(t, "#00AA00", other.Color)

	_, err = svc.CreateEvent(context.Background(), "user-1", dto.EventRequest{Title: "Bad", Kind: "self-study", Start: jan(3, 18), End: jan(3, 19)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.CreateEvent(context.Background(), "user-1", dto.EventRequest{Title: "Backwards", Start: jan(3, 19), End: jan(3, 18)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestCalendarServiceUpdateEvent(t *testing.T) {
	f := newPlannerFixture()
	svc := f.calendar(nil)

	updated, err := svc.UpdateEvent(context.Background(), "user-1", "lecture-1", dto.EventRequest{
		Title: "Moved lecture", Kind: "lecture", Start: jan(2, 13), End: jan(2, 15),
	})
	require.NoError(t, err)
	assert.Equal(t, jan(2, 13), updated.Start)
	assert.Nil(t, updated.CourseID)
	assert.Equal(t, "Moved lecture", f.events.events["lecture-1"].Title)

	_, err = svc.UpdateEvent(context.Background(), "user-1", "dl-1", dto.EventRequest{Title: "x", Start: jan(2, 13), End: jan(2, 15)})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
	_, err = svc.UpdateEvent(context.Background(), "user-2", "lecture-1", dto.EventRequest{Title: "x", Start: jan(2, 13), End: jan(2, 15)})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCalendarServiceDeleteEvent(t *testing.T) {
	f := newPlannerFixture()
	svc := f.calendar(nil)
	dl1 := "dl-1"
	f.events.events["gen-1"] = &models.CalendarEvent{ID: "gen-1", UserID: "user-1", Kind: models.EventKindSelfStudy, GeneratedByEngine: true, RelatedDeadlineID: &dl1}

	resp, err := svc.DeleteEvent(context.Background(), "user-1", "lecture-1")
	require.NoError(t, err)
	assert.Zero(t, resp.SessionsDeleted)
	assert.NotContains(t, f.events.events, "lecture-1")

	resp, err = svc.DeleteEvent(context.Background(), "user-1", "dl-1")
	require.NoError(t, err)
	assert.Equal(t, 1, resp.SessionsDeleted)
	assert.Empty(t, f.events.events)

	_, err = svc.DeleteEvent(context.Background(), "user-1", "lecture-1")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCalendarServiceListEventsAndUpcoming(t *testing.T) {
	f := newPlannerFixture()
	svc := f.calendar(nil)

	events, err := svc.ListEvents(context.Background(), "user-1", dto.EventRangeQuery{From: jan(1, 0), To: jan(3, 0)})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "lecture-1", events[0].ID)

	_, err = svc.ListEvents(context.Background(), "user-1", dto.EventRangeQuery{From: jan(3, 0), To: jan(1, 0)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
	_, err = svc.ListEvents(context.Background(), "user-1", dto.EventRangeQuery{From: jan(1, 0), To: jan(1, 0).AddDate(2, 0, 0)})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	upcoming, err := svc.Upcoming(context.Background(), "user-1", 0)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, "lecture-1", upcoming[0].ID)
	assert.Equal(t, "dl-1", upcoming[1].ID)

	first, err := svc.Upcoming(context.Background(), "user-1", 1)
	require.NoError(t, err)
	assert.Len(t, first, 1)
}
