package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/middleware"
	"github.com/noah-isme/study-planner-api/internal/service"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/response"
)

type sessionPlanner interface {
	PlanDeadline(ctx context.Context, req dto.PlanDeadlineRequest) (*dto.PlanResult, error)
	Preview(ctx context.Context, req dto.PlanDeadlineRequest) (*dto.PlanResult, error)
	DeletePlannedSessionsForUser(ctx context.Context, userID, deadlineID string) (int, error)
	ListSessions(ctx context.Context, userID, courseID string) ([]dto.SessionResponse, error)
	AddManualSession(ctx context.Context, userID, courseID string, req dto.ManualSessionRequest) (*dto.SessionResponse, error)
	Progress(ctx context.Context, userID, courseID string) (*dto.CourseProgressResponse, error)
}

type planEnqueuer interface {
	EnqueuePlan(ctx context.Context, req dto.PlanDeadlineRequest) (*dto.PlanAccepted, error)
}

type sessionExporter interface {
	ExportSessions(ctx context.Context, userID, courseID, format string) (*service.ExportFile, error)
}

// PlannerHandler exposes self-study planning and session endpoints.
type PlannerHandler struct {
	planner  sessionPlanner
	queue    planEnqueuer
	exporter sessionExporter
}

// NewPlannerHandler constructs the handler. queue may be nil, in which case
// async planning requests are rejected.
func NewPlannerHandler(planner sessionPlanner, queue planEnqueuer, exporter sessionExporter) *PlannerHandler {
	return &PlannerHandler{planner: planner, queue: queue, exporter: exporter}
}

// Plan godoc
// @Summary Plan self-study sessions for a deadline
// @Description Previously planned sessions are kept; call DELETE /deadlines/{deadlineId}/sessions before re-planning. With async=true the run is queued and 202 is returned.
// @Tags Planner
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Param deadlineId path string true "Deadline event ID"
// @Param totalPoints query int false "Total points of the course, used when the course has no study hours"
// @Param async query bool false "Queue the run instead of executing it inline"
// @Success 201 {object} response.Envelope
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /courses/{courseId}/deadlines/{deadlineId}/plan [post]
func (h *PlannerHandler) Plan(c *gin.Context) {
	req, ok := h.planRequest(c)
	if !ok {
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		if h.queue == nil {
			response.Error(c, appErrors.Clone(appErrors.ErrInternal, "async planning is disabled"))
			return
		}
		accepted, err := h.queue.EnqueuePlan(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}
		middleware.SetMeta(c, "mode", "queued")
		response.Accepted(c, accepted, middleware.ExtractMeta(c))
		return
	}

	result, err := h.planner.PlanDeadline(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "mode", "persisted")
	response.JSON(c, http.StatusCreated, result, nil, middleware.ExtractMeta(c))
}

// Preview godoc
// @Summary Preview a planning run without persisting it
// @Tags Planner
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Param deadlineId path string true "Deadline event ID"
// @Param totalPoints query int false "Total points of the course"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/deadlines/{deadlineId}/plan/preview [get]
func (h *PlannerHandler) Preview(c *gin.Context) {
	req, ok := h.planRequest(c)
	if !ok {
		return
	}
	result, err := h.planner.Preview(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "mode", "preview")
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// DeleteSessions godoc
// @Summary Delete the engine-generated sessions of a deadline
// @Tags Planner
// @Produce json
// @Security BearerAuth
// @Param deadlineId path string true "Deadline event ID"
// @Success 200 {object} response.Envelope
// @Router /deadlines/{deadlineId}/sessions [delete]
func (h *PlannerHandler) DeleteSessions(c *gin.Context) {
	userID := requireUserID(c)
	if userID == "" {
		return
	}
	deadlineID := requireParam(c, "deadlineId")
	if deadlineID == "" {
		return
	}
	deleted, err := h.planner.DeletePlannedSessionsForUser(c.Request.Context(), userID, deadlineID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DeleteSessionsResponse{DeadlineID: deadlineID, Deleted: deleted}, nil)
}

// ListSessions godoc
// @Summary List self-study sessions of a course
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/sessions [get]
func (h *PlannerHandler) ListSessions(c *gin.Context) {
	userID, courseID, ok := courseScope(c)
	if !ok {
		return
	}
	sessions, err := h.planner.ListSessions(c.Request.Context(), userID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, sessions, nil)
}

// CreateSession godoc
// @Summary Add a manual self-study session
// @Tags Sessions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Param payload body dto.ManualSessionRequest true "Session payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{courseId}/sessions [post]
func (h *PlannerHandler) CreateSession(c *gin.Context) {
	userID, courseID, ok := courseScope(c)
	if !ok {
		return
	}
	var req dto.ManualSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid session payload"))
		return
	}
	session, err := h.planner.AddManualSession(c.Request.Context(), userID, courseID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// ExportSessions godoc
// @Summary Export self-study sessions of a course
// @Tags Sessions
// @Produce text/csv
// @Produce application/pdf
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Param format query string false "csv or pdf" Enums(csv, pdf)
// @Success 200 {file} file
// @Router /courses/{courseId}/sessions/export [get]
func (h *PlannerHandler) ExportSessions(c *gin.Context) {
	userID, courseID, ok := courseScope(c)
	if !ok {
		return
	}
	var query dto.SessionExportQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid export query"))
		return
	}
	file, err := h.exporter.ExportSessions(c.Request.Context(), userID, courseID, query.Format)
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// Progress godoc
// @Summary Course progress and remaining self-study hours
// @Tags Sessions
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/progress [get]
func (h *PlannerHandler) Progress(c *gin.Context) {
	userID, courseID, ok := courseScope(c)
	if !ok {
		return
	}
	progress, err := h.planner.Progress(c.Request.Context(), userID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, progress, nil)
}

func (h *PlannerHandler) planRequest(c *gin.Context) (dto.PlanDeadlineRequest, bool) {
	userID, courseID, ok := courseScope(c)
	if !ok {
		return dto.PlanDeadlineRequest{}, false
	}
	deadlineID := requireParam(c, "deadlineId")
	if deadlineID == "" {
		return dto.PlanDeadlineRequest{}, false
	}
	req := dto.PlanDeadlineRequest{CourseID: courseID, DeadlineID: deadlineID, UserID: userID}
	if raw := c.Query("totalPoints"); raw != "" {
		points, err := strconv.Atoi(raw)
		if err != nil || points < 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "totalPoints must be a non-negative integer"))
			return dto.PlanDeadlineRequest{}, false
		}
		req.TotalPointsForCourse = points
	}
	return req, true
}

func courseScope(c *gin.Context) (string, string, bool) {
	userID := requireUserID(c)
	if userID == "" {
		return "", "", false
	}
	courseID := requireParam(c, "courseId")
	if courseID == "" {
		return "", "", false
	}
	return userID, courseID, true
}
