package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/service"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

type plannerMock struct {
	planReq     dto.PlanDeadlineRequest
	planResult  *dto.PlanResult
	planErr     error
	previewReq  dto.PlanDeadlineRequest
	deleteArgs  [2]string
	deleted     int
	manualReq   dto.ManualSessionRequest
	sessions    []dto.SessionResponse
	progress    *dto.CourseProgressResponse
	listErr     error
	planInvoked bool
}

func (m *plannerMock) PlanDeadline(ctx context.Context, req dto.PlanDeadlineRequest) (*dto.PlanResult, error) {
	m.planInvoked = true
	m.planReq = req
	return m.planResult, m.planErr
}

func (m *plannerMock) Preview(ctx context.Context, req dto.PlanDeadlineRequest) (*dto.PlanResult, error) {
	m.previewReq = req
	return &dto.PlanResult{DeadlineID: req.DeadlineID, CandidateCount: 6}, nil
}

func (m *plannerMock) DeletePlannedSessionsForUser(ctx context.Context, userID, deadlineID string) (int, error) {
	m.deleteArgs = [2]string{userID, deadlineID}
	return m.deleted, nil
}

func (m *plannerMock) ListSessions(ctx context.Context, userID, courseID string) ([]dto.SessionResponse, error) {
	return m.sessions, m.listErr
}

func (m *plannerMock) AddManualSession(ctx context.Context, userID, courseID string, req dto.ManualSessionRequest) (*dto.SessionResponse, error) {
	m.manualReq = req
	return &dto.SessionResponse{ID: "s-1", Title: "Self-study, Algorithms", Start: req.Start, End: req.End}, nil
}

func (m *plannerMock) Progress(ctx context.Context, userID, courseID string) (*dto.CourseProgressResponse, error) {
	return m.progress, nil
}

type enqueuerMock struct {
	req dto.PlanDeadlineRequest
}

func (m *enqueuerMock) EnqueuePlan(ctx context.Context, req dto.PlanDeadlineRequest) (*dto.PlanAccepted, error) {
	m.req = req
	return &dto.PlanAccepted{DeadlineID: req.DeadlineID, Status: "queued"}, nil
}

type exporterMock struct {
	format string
	err    error
}

func (m *exporterMock) ExportSessions(ctx context.Context, userID, courseID, format string) (*service.ExportFile, error) {
	m.format = format
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportFile{Filename: "sessions-" + courseID + ".csv", ContentType: "text/csv", Data: []byte("Title\n")}, nil
}

func plannerRouter(h *PlannerHandler, userID string) http.Handler {
	r := newTestRouter(userID)
	r.POST("/courses/:courseId/deadlines/:deadlineId/plan", h.Plan)
	r.GET("/courses/:courseId/deadlines/:deadlineId/plan/preview", h.Preview)
	r.GET("/courses/:courseId/sessions", h.ListSessions)
	r.POST("/courses/:courseId/sessions", h.CreateSession)
	r.GET("/courses/:courseId/sessions/export", h.ExportSessions)
	r.GET("/courses/:courseId/progress", h.Progress)
	r.DELETE("/deadlines/:deadlineId/sessions", h.DeleteSessions)
	return r
}

func serve(h http.Handler, method, target string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestPlanHandlerRunsInline(t *testing.T) {
	mock := &plannerMock{planResult: &dto.PlanResult{DeadlineID: "d-1", SessionsCreated: 4, MinutesScheduled: 300}}
	h := NewPlannerHandler(mock, &enqueuerMock{}, &exporterMock{})

	w := serve(plannerRouter(h, "user-1"), http.MethodPost, "/courses/c-1/deadlines/d-1/plan?totalPoints=60", nil)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, dto.PlanDeadlineRequest{CourseID: "c-1", DeadlineID: "d-1", UserID: "user-1", TotalPointsForCourse: 60}, mock.planReq)
	var result dto.PlanResult
	env := decodeEnvelope(t, w, &result)
	assert.Equal(t, 4, result.SessionsCreated)
	assert.Equal(t, "persisted", env.Meta["mode"])
	assert.Contains(t, env.Meta, "processing_time_ms")
}

func TestPlanHandlerQueuesWhenAsync(t *testing.T) {
	mock := &plannerMock{}
	queue := &enqueuerMock{}
	h := NewPlannerHandler(mock, queue, &exporterMock{})

	w := serve(plannerRouter(h, "user-1"), http.MethodPost, "/courses/c-1/deadlines/d-1/plan?async=true", nil)

	require.Equal(t, http.StatusAccepted, w.Code)
	assert.False(t, mock.planInvoked)
	assert.Equal(t, "d-1", queue.req.DeadlineID)
	assert.Equal(t, "user-1", queue.req.UserID)
	var accepted dto.PlanAccepted
	decodeEnvelope(t, w, &accepted)
	assert.Equal(t, "queued", accepted.Status)
}

func TestPlanHandlerAsyncWithoutQueue(t *testing.T) {
	h := NewPlannerHandler(&plannerMock{}, nil, &exporterMock{})

	w := serve(plannerRouter(h, "user-1"), http.MethodPost, "/courses/c-1/deadlines/d-1/plan?async=1", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestPlanHandlerRejectsBadPoints(t *testing.T) {
	mock := &plannerMock{}
	h := NewPlannerHandler(mock, nil, &exporterMock{})

	for _, raw := range []string{"abc", "-5"} {
		w := serve(plannerRouter(h, "user-1"), http.MethodPost, "/courses/c-1/deadlines/d-1/plan?totalPoints="+raw, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, raw)
	}
	assert.False(t, mock.planInvoked)
}

func TestPlanHandlerMapsServiceErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		want int
		code string
	}{
		"locked":        {appErrors.Clone(appErrors.ErrLocked, ""), http.StatusConflict, appErrors.ErrLocked.Code},
		"configuration": {appErrors.Clone(appErrors.ErrConfiguration, "bad days"), http.StatusUnprocessableEntity, appErrors.ErrConfiguration.Code},
		"not found":     {appErrors.Clone(appErrors.ErrNotFound, "deadline not found"), http.StatusNotFound, appErrors.ErrNotFound.Code},
		"forbidden":     {appErrors.Clone(appErrors.ErrForbidden, ""), http.StatusForbidden, appErrors.ErrForbidden.Code},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := NewPlannerHandler(&plannerMock{planErr: tc.err}, nil, &exporterMock{})

			w := serve(plannerRouter(h, "user-1"), http.MethodPost, "/courses/c-1/deadlines/d-1/plan", nil)

			require.Equal(t, tc.want, w.Code)
			env := decodeEnvelope(t, w, nil)
			require.NotNil(t, env.Error)
			assert.Equal(t, tc.code, env.Error.Code)
		})
	}
}

func TestPlanHandlerRequiresUser(t *testing.T) {
	mock := &plannerMock{}
	h := NewPlannerHandler(mock, nil, &exporterMock{})

	w := serve(plannerRouter(h, ""), http.MethodPost, "/courses/c-1/deadlines/d-1/plan", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, mock.planInvoked)
}

func TestPreviewHandler(t *testing.T) {
	mock := &plannerMock{}
	h := NewPlannerHandler(mock, nil, &exporterMock{})

	w := serve(plannerRouter(h, "user-1"), http.MethodGet, "/courses/c-1/deadlines/d-1/plan/preview", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c-1", mock.previewReq.CourseID)
	var result dto.PlanResult
	env := decodeEnvelope(t, w, &result)
	assert.Equal(t, 6, result.CandidateCount)
	assert.Equal(t, "preview", env.Meta["mode"])
}

func TestDeleteSessionsHandler(t *testing.T) {
	mock := &plannerMock{deleted: 3}
	h := NewPlannerHandler(mock, nil, &exporterMock{})

	w := serve(plannerRouter(h, "user-1"), http.MethodDelete, "/deadlines/d-9/sessions", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, [2]string{"user-1", "d-9"}, mock.deleteArgs)
	var resp dto.DeleteSessionsResponse
	decodeEnvelope(t, w, &resp)
	assert.Equal(t, dto.DeleteSessionsResponse{DeadlineID: "d-9", Deleted: 3}, resp)
}

func TestListSessionsHandler(t *testing.T) {
	title := "Essay"
	mock := &plannerMock{sessions: []dto.SessionResponse{{ID: "s-1", Title: "Self-study", DeadlineTitle: &title}}}
	h := NewPlannerHandler(mock, nil, &exporterMock{})

	w := serve(plannerRouter(h, "user-1"), http.MethodGet, "/courses/c-1/sessions", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var sessions []dto.SessionResponse
	decodeEnvelope(t, w, &sessions)
	require.Len(t, sessions, 1)
	assert.Equal(t, "Essay", *sessions[0].DeadlineTitle)
}

func TestListSessionsHandlerError(t *testing.T) {
	mock := &plannerMock{listErr: appErrors.Clone(appErrors.ErrNotFound, "course not found")}
	h := NewPlannerHandler(mock, nil, &exporterMock{})

	w := serve(plannerRouter(h, "user-1"), http.MethodGet, "/courses/c-1/sessions", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateSessionHandler(t *testing.T) {
	mock := &plannerMock{}
	h := NewPlannerHandler(mock, nil, &exporterMock{})
	body := []byte(`{"start":"2024-01-03T09:00:00Z","end":"2024-01-03T10:30:00Z"}`)

	w := serve(plannerRouter(h, "user-1"), http.MethodPost, "/courses/c-1/sessions", body)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, time.Date(2024, 1, 3, 9, 0, 0, 0, time.UTC), mock.manualReq.Start.UTC())
	var session dto.SessionResponse
	decodeEnvelope(t, w, &session)
	assert.Equal(t, "s-1", session.ID)
}

func TestCreateSessionHandlerMalformedBody(t *testing.T) {
	h := NewPlannerHandler(&plannerMock{}, nil, &exporterMock{})

	w := serve(plannerRouter(h, "user-1"), http.MethodPost, "/courses/c-1/sessions", []byte(`{"start":`))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportSessionsHandler(t *testing.T) {
	exporter := &exporterMock{}
	h := NewPlannerHandler(&plannerMock{}, nil, exporter)

	w := serve(plannerRouter(h, "user-1"), http.MethodGet, "/courses/c-1/sessions/export?format=csv", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "csv", exporter.format)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="sessions-c-1.csv"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "Title\n", w.Body.String())
}

func TestExportSessionsHandlerServiceError(t *testing.T) {
	exporter := &exporterMock{err: appErrors.Clone(appErrors.ErrValidation, "unsupported export format")}
	h := NewPlannerHandler(&plannerMock{}, nil, exporter)

	w := serve(plannerRouter(h, "user-1"), http.MethodGet, "/courses/c-1/sessions/export?format=xlsx", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "xlsx", exporter.format)
}

func TestProgressHandler(t *testing.T) {
	mock := &plannerMock{progress: &dto.CourseProgressResponse{CourseID: "c-1", ProgressPercent: 50, WorkloadHours: 130}}
	h := NewPlannerHandler(mock, nil, &exporterMock{})

	w := serve(plannerRouter(h, "user-1"), http.MethodGet, "/courses/c-1/progress", nil)

	require.Equal(t, http.StatusOK, w.Code)
	var progress dto.CourseProgressResponse
	decodeEnvelope(t, w, &progress)
	assert.Equal(t, 50, progress.ProgressPercent)
	assert.Equal(t, 130, progress.WorkloadHours)
}
