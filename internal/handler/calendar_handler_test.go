package handler

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/dto"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

type calendarMock struct {
	calls       []string
	args        []string
	deadlineReq dto.DeadlineRequest
	eventReq    dto.EventRequest
	rangeQuery  dto.EventRangeQuery
	limit       int
	err         error
}

func (m *calendarMock) record(call string, args ...string) error {
	m.calls = append(m.calls, call)
	m.args = args
	return m.err
}

func (m *calendarMock) ListDeadlines(ctx context.Context, userID, courseID string) ([]dto.DeadlineResponse, error) {
	if err := m.record("ListDeadlines", userID, courseID); err != nil {
		return nil, err
	}
	return []dto.DeadlineResponse{{ID: "dl-1", CourseID: courseID}}, nil
}

func (m *calendarMock) CreateDeadline(ctx context.Context, userID, courseID string, req dto.DeadlineRequest) (*dto.DeadlineResponse, error) {
	m.deadlineReq = req
	if err := m.record("CreateDeadline", userID, courseID); err != nil {
		return nil, err
	}
	return &dto.DeadlineResponse{ID: "dl-new", CourseID: courseID, Title: req.Title, DueAt: req.DueAt}, nil
}

func (m *calendarMock) UpdateDeadline(ctx context.Context, userID, deadlineID string, req dto.DeadlineRequest) (*dto.DeadlineResponse, error) {
	m.deadlineReq = req
	if err := m.record("UpdateDeadline", userID, deadlineID); err != nil {
		return nil, err
	}
	return &dto.DeadlineResponse{ID: deadlineID, Title: req.Title}, nil
}

func (m *calendarMock) DeleteDeadline(ctx context.Context, userID, deadlineID string) (*dto.DeleteEventResponse, error) {
	if err := m.record("DeleteDeadline", userID, deadlineID); err != nil {
		return nil, err
	}
	return &dto.DeleteEventResponse{ID: deadlineID, SessionsDeleted: 3}, nil
}

func (m *calendarMock) ListEvents(ctx context.Context, userID string, query dto.EventRangeQuery) ([]dto.EventResponse, error) {
	m.rangeQuery = query
	if err := m.record("ListEvents", userID); err != nil {
		return nil, err
	}
	return []dto.EventResponse{{ID: "lec-1"}}, nil
}

func (m *calendarMock) Upcoming(ctx context.Context, userID string, limit int) ([]dto.EventResponse, error) {
	m.limit = limit
	if err := m.record("Upcoming", userID); err != nil {
		return nil, err
	}
	return []dto.EventResponse{}, nil
}

func (m *calendarMock) CreateEvent(ctx context.Context, userID string, req dto.EventRequest) (*dto.EventResponse, error) {
	m.eventReq = req
	if err := m.record("CreateEvent", userID); err != nil {
		return nil, err
	}
	return &dto.EventResponse{ID: "ev-new", Title: req.Title}, nil
}

func (m *calendarMock) UpdateEvent(ctx context.Context, userID, eventID string, req dto.EventRequest) (*dto.EventResponse, error) {
	m.eventReq = req
	if err := m.record("UpdateEvent", userID, eventID); err != nil {
		return nil, err
	}
	return &dto.EventResponse{ID: eventID, Title: req.Title}, nil
}

func (m *calendarMock) DeleteEvent(ctx context.Context, userID, eventID string) (*dto.DeleteEventResponse, error) {
	if err := m.record("DeleteEvent", userID, eventID); err != nil {
		return nil, err
	}
	return &dto.DeleteEventResponse{ID: eventID}, nil
}

func calendarRouter(h *CalendarHandler, userID string) http.Handler {
	r := newTestRouter(userID)
	r.GET("/courses/:courseId/deadlines", h.ListDeadlines)
	r.POST("/courses/:courseId/deadlines", h.CreateDeadline)
	r.PUT("/deadlines/:deadlineId", h.UpdateDeadline)
	r.DELETE("/deadlines/:deadlineId", h.DeleteDeadline)
	r.GET("/calendar/events", h.ListEvents)
	r.POST("/calendar/events", h.CreateEvent)
	r.PUT("/calendar/events/:eventId", h.UpdateEvent)
	r.DELETE("/calendar/events/:eventId", h.DeleteEvent)
	r.GET("/calendar/upcoming", h.Upcoming)
	return r
}

func TestCalendarHandlerCreateDeadline(t *testing.T) {
	mock := &calendarMock{}
	body := []byte(`{"title":"Essay","dueAt":"2024-01-15T23:00:00Z","studyHoursNeeded":6,"points":30,"studyStart":"2024-01-02T00:00:00Z"}`)

	w := serve(calendarRouter(NewCalendarHandler(mock), "user-1"), http.MethodPost, "/courses/c-1/deadlines", body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"user-1", "c-1"}, mock.args)
	assert.Equal(t, 6, mock.deadlineReq.StudyHoursNeeded)
	assert.Equal(t, 30, mock.deadlineReq.Points)
	require.NotNil(t, mock.deadlineReq.StudyStart)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), mock.deadlineReq.StudyStart.UTC())
	var deadline dto.DeadlineResponse
	decodeEnvelope(t, w, &deadline)
	assert.Equal(t, "dl-new", deadline.ID)
	assert.Equal(t, time.Date(2024, 1, 15, 23, 0, 0, 0, time.UTC), deadline.DueAt.UTC())
}

func TestCalendarHandlerDeadlineRoutes(t *testing.T) {
	mock := &calendarMock{}
	router := calendarRouter(NewCalendarHandler(mock), "user-1")

	w := serve(router, http.MethodGet, "/courses/c-1/deadlines", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var deadlines []dto.DeadlineResponse
	decodeEnvelope(t, w, &deadlines)
	require.Len(t, deadlines, 1)

	w = serve(router, http.MethodPut, "/deadlines/dl-1", []byte(`{"title":"Renamed","dueAt":"2024-01-15T23:00:00Z"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"user-1", "dl-1"}, mock.args)
	assert.Equal(t, "Renamed", mock.deadlineReq.Title)

	w = serve(router, http.MethodDelete, "/deadlines/dl-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var deleted dto.DeleteEventResponse
	decodeEnvelope(t, w, &deleted)
	assert.Equal(t, dto.DeleteEventResponse{ID: "dl-1", SessionsDeleted: 3}, deleted)
	assert.Equal(t, []string{"ListDeadlines", "UpdateDeadline", "DeleteDeadline"}, mock.calls)
}

func TestCalendarHandlerMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "locked", err: appErrors.Clone(appErrors.ErrLocked, ""), status: http.StatusConflict},
		{name: "forbidden", err: appErrors.Clone(appErrors.ErrForbidden, "deadline belongs to another user"), status: http.StatusForbidden},
		{name: "missing", err: appErrors.Clone(appErrors.ErrNotFound, "deadline not found"), status: http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := serve(calendarRouter(NewCalendarHandler(&calendarMock{err: tc.err}), "user-1"), http.MethodDelete, "/deadlines/dl-1", nil)
			assert.Equal(t, tc.status, w.Code)
		})
	}
}

func TestCalendarHandlerRejectsMalformedInput(t *testing.T) {
	mock := &calendarMock{}
	router := calendarRouter(NewCalendarHandler(mock), "user-1")

	w := serve(router, http.MethodPost, "/courses/c-1/deadlines", []byte(`{"title":`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = serve(router, http.MethodGet, "/calendar/events?from=yesterday&to=today", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = serve(router, http.MethodGet, "/calendar/upcoming?limit=many", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mock.calls)

	w = serve(calendarRouter(NewCalendarHandler(mock), ""), http.MethodGet, "/calendar/upcoming", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCalendarHandlerEventRoutes(t *testing.T) {
	mock := &calendarMock{}
	router := calendarRouter(NewCalendarHandler(mock), "user-1")

	w := serve(router, http.MethodGet, "/calendar/events?from=2024-01-01T00:00:00Z&to=2024-01-08T00:00:00Z", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), mock.rangeQuery.To.UTC())

	w = serve(router, http.MethodGet, "/calendar/upcoming", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 4, mock.limit)

	w = serve(router, http.MethodPost, "/calendar/events", []byte(`{"title":"Midterm","kind":"exam","start":"2024-01-10T09:00:00Z","end":"2024-01-10T11:00:00Z","courseId":"c-1"}`))
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "exam", mock.eventReq.Kind)
	require.NotNil(t, mock.eventReq.CourseID)
	assert.Equal(t, "c-1", *mock.eventReq.CourseID)

	w = serve(router, http.MethodPut, "/calendar/events/ev-1", []byte(`{"title":"Moved","start":"2024-01-10T10:00:00Z","end":"2024-01-10T12:00:00Z"}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"user-1", "ev-1"}, mock.args)

	w = serve(router, http.MethodDelete, "/calendar/events/ev-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ListEvents", "Upcoming", "CreateEvent", "UpdateEvent", "DeleteEvent"}, mock.calls)
}
