package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/study-planner-api/internal/dto"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/response"
)

type calendarManager interface {
	ListDeadlines(ctx context.Context, userID, courseID string) ([]dto.DeadlineResponse, error)
	CreateDeadline(ctx context.Context, userID, courseID string, req dto.DeadlineRequest) (*dto.DeadlineResponse, error)
	UpdateDeadline(ctx context.Context, userID, deadlineID string, req dto.DeadlineRequest) (*dto.DeadlineResponse, error)
	DeleteDeadline(ctx context.Context, userID, deadlineID string) (*dto.DeleteEventResponse, error)
	ListEvents(ctx context.Context, userID string, query dto.EventRangeQuery) ([]dto.EventResponse, error)
	Upcoming(ctx context.Context, userID string, limit int) ([]dto.EventResponse, error)
	CreateEvent(ctx context.Context, userID string, req dto.EventRequest) (*dto.EventResponse, error)
	UpdateEvent(ctx context.Context, userID, eventID string, req dto.EventRequest) (*dto.EventResponse, error)
	DeleteEvent(ctx context.Context, userID, eventID string) (*dto.DeleteEventResponse, error)
}

// CalendarHandler exposes deadlines and calendar entries.
type CalendarHandler struct {
	service calendarManager
}

// NewCalendarHandler constructs the handler.
func NewCalendarHandler(service calendarManager) *CalendarHandler {
	return &CalendarHandler{service: service}
}

// ListDeadlines godoc
// @Summary List the deadlines of a course
// @Tags Deadlines
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Success 200 {object} response.Envelope
// @Router /courses/{courseId}/deadlines [get]
func (h *CalendarHandler) ListDeadlines(c *gin.Context) {
	userID, courseID, ok := courseScope(c)
	if !ok {
		return
	}
	deadlines, err := h.service.ListDeadlines(c.Request.Context(), userID, courseID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deadlines, nil)
}

// CreateDeadline godoc
// @Summary Add a deadline to a course
// @Tags Deadlines
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param courseId path string true "Course ID"
// @Param payload body dto.DeadlineRequest true "Deadline payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /courses/{courseId}/deadlines [post]
func (h *CalendarHandler) CreateDeadline(c *gin.Context) {
	userID, courseID, ok := courseScope(c)
	if !ok {
		return
	}
	var req dto.DeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid deadline payload"))
		return
	}
	deadline, err := h.service.CreateDeadline(c.Request.Context(), userID, courseID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, deadline)
}

// UpdateDeadline godoc
// @Summary Replace a deadline
// @Tags Deadlines
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param deadlineId path string true "Deadline event ID"
// @Param payload body dto.DeadlineRequest true "Deadline payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /deadlines/{deadlineId} [put]
func (h *CalendarHandler) UpdateDeadline(c *gin.Context) {
	userID, deadlineID, ok := eventScope(c, "deadlineId")
	if !ok {
		return
	}
	var req dto.DeadlineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid deadline payload"))
		return
	}
	deadline, err := h.service.UpdateDeadline(c.Request.Context(), userID, deadlineID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deadline, nil)
}

// DeleteDeadline godoc
// @Summary Delete a deadline and its self-study sessions
// @Tags Deadlines
// @Produce json
// @Security BearerAuth
// @Param deadlineId path string true "Deadline event ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /deadlines/{deadlineId} [delete]
func (h *CalendarHandler) DeleteDeadline(c *gin.Context) {
	userID, deadlineID, ok := eventScope(c, "deadlineId")
	if !ok {
		return
	}
	deleted, err := h.service.DeleteDeadline(c.Request.Context(), userID, deadlineID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deleted, nil)
}

// ListEvents godoc
// @Summary List calendar entries in a time range
// @Tags Calendar
// @Produce json
// @Security BearerAuth
// @Param from query string true "Range start, RFC 3339"
// @Param to query string true "Range end, RFC 3339"
// @Success 200 {object} response.Envelope
// @Router /calendar/events [get]
func (h *CalendarHandler) ListEvents(c *gin.Context) {
	userID := requireUserID(c)
	if userID == "" {
		return
	}
	var query dto.EventRangeQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid calendar range"))
		return
	}
	events, err := h.service.ListEvents(c.Request.Context(), userID, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// Upcoming godoc
// @Summary List the next calendar entries
// @Tags Calendar
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries, default 4"
// @Success 200 {object} response.Envelope
// @Router /calendar/upcoming [get]
func (h *CalendarHandler) Upcoming(c *gin.Context) {
	userID := requireUserID(c)
	if userID == "" {
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "4"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be an integer"))
		return
	}
	events, err := h.service.Upcoming(c.Request.Context(), userID, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// CreateEvent godoc
// @Summary Add a calendar entry
// @Tags Calendar
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body dto.EventRequest true "Event payload"
// @Success 201 {object} response.Envelope
// @Router /calendar/events [post]
func (h *CalendarHandler) CreateEvent(c *gin.Context) {
	userID := requireUserID(c)
	if userID == "" {
		return
	}
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	event, err := h.service.CreateEvent(c.Request.Context(), userID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, event)
}

// UpdateEvent godoc
// @Summary Replace a calendar entry
// @Tags Calendar
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "Event ID"
// @Param payload body dto.EventRequest true "Event payload"
// @Success 200 {object} response.Envelope
// @Router /calendar/events/{eventId} [put]
func (h *CalendarHandler) UpdateEvent(c *gin.Context) {
	userID, eventID, ok := eventScope(c, "eventId")
	if !ok {
		return
	}
	var req dto.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid event payload"))
		return
	}
	event, err := h.service.UpdateEvent(c.Request.Context(), userID, eventID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, event, nil)
}

// DeleteEvent godoc
// @Summary Delete a calendar entry
// @Tags Calendar
// @Produce json
// @Security BearerAuth
// @Param eventId path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /calendar/events/{eventId} [delete]
func (h *CalendarHandler) DeleteEvent(c *gin.Context) {
	userID, eventID, ok := eventScope(c, "eventId")
	if !ok {
		return
	}
	deleted, err := h.service.DeleteEvent(c.Request.Context(), userID, eventID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, deleted, nil)
}

func eventScope(c *gin.Context, param string) (string, string, bool) {
	userID := requireUserID(c)
	if userID == "" {
		return "", "", false
	}
	id := requireParam(c, param)
	if id == "" {
		return "", "", false
	}
	return userID, id, true
}
