package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/lock"
)

const (
	defaultUpcomingLimit = 4
	maxUpcomingLimit     = 50
	maxEventRange        = 366 * 24 * time.Hour
)

type calendarEventStore interface {
	FindByID(ctx context.Context, id string) (*models.CalendarEvent, error)
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, events []models.CalendarEvent) error
	Update(ctx context.Context, exec sqlx.ExtContext, event *models.CalendarEvent) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
	DeleteSessionsByDeadline(ctx context.Context, exec sqlx.ExtContext, deadlineID string) (int, error)
	ListDeadlinesByCourse(ctx context.Context, courseID string) ([]models.CalendarEvent, error)
	ListByUserRange(ctx context.Context, userID string, from, to time.Time) ([]models.CalendarEvent, error)
	ListUpcoming(ctx context.Context, userID string, after time.Time, limit int) ([]models.CalendarEvent, error)
}

// CalendarService manages course deadlines and the plain calendar entries the
// planner treats as busy time.
type CalendarService struct {
	courses   plannerCourseRepository
	events    calendarEventStore
	tx        txProvider
	locker    lock.Locker
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewCalendarService constructs the service. tx may be nil, in which case
// multi-row writes run without a transaction. locker must be the one the
// planner uses so deadline edits never race a planning run.
func NewCalendarService(
	courses plannerCourseRepository,
	events calendarEventStore,
	tx txProvider,
	locker lock.Locker,
	validate *validator.Validate,
	logger *zap.Logger,
) *CalendarService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	return &CalendarService{
		courses:   courses,
		events:    events,
		tx:        tx,
		locker:    locker,
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// ListDeadlines returns the deadlines of a course owned by userID.
func (s *CalendarService) ListDeadlines(ctx context.Context, userID, courseID string) ([]dto.DeadlineResponse, error) {
	if _, err := ownedCourse(ctx, s.courses, userID, courseID); err != nil {
		return nil, err
	}
	deadlines, err := s.events.ListDeadlinesByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list deadlines")
	}
	out := make([]dto.DeadlineResponse, 0, len(deadlines))
	for _, d := range deadlines {
		out = append(out, toDeadlineResponse(d))
	}
	return out, nil
}

// CreateDeadline adds a deadline to a course. The deadline takes the course
// color and is linked to the course in the same transaction.
func (s *CalendarService) CreateDeadline(ctx context.Context, userID, courseID string, req dto.DeadlineRequest) (*dto.DeadlineResponse, error) {
	if err := s.validateDeadline(req); err != nil {
		return nil, err
	}
	course, err := ownedCourse(ctx, s.courses, userID, courseID)
	if err != nil {
		return nil, err
	}

	deadline := models.CalendarEvent{
		ID:         uuid.NewString(),
		UserID:     userID,
		CourseID:   &course.ID,
		Kind:       models.EventKindDeadline,
		Color:      course.Color,
		IsDeadline: true,
	}
	applyDeadline(&deadline, req)

	err = s.inTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.events.CreateBatch(ctx, exec, []models.CalendarEvent{deadline}); err != nil {
			return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save deadline")
		}
		if err := s.courses.AppendEventIDs(ctx, exec, course.ID, []string{deadline.ID}); err != nil {
			return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to link deadline to course")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("deadline created", zap.String("deadline_id", deadline.ID), zap.String("course_id", course.ID))
	resp := toDeadlineResponse(deadline)
	return &resp, nil
}

// UpdateDeadline replaces the editable fields of a deadline. It fails with
// ErrLocked while a planning run for the deadline is in progress.
func (s *CalendarService) UpdateDeadline(ctx context.Context, userID, deadlineID string, req dto.DeadlineRequest) (*dto.DeadlineResponse, error) {
	if err := s.validateDeadline(req); err != nil {
		return nil, err
	}
	release, err := s.lockDeadline(ctx, deadlineID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, release, deadlineID)

	deadline, err := s.ownedDeadline(ctx, userID, deadlineID)
	if err != nil {
		return nil, err
	}
	applyDeadline(deadline, req)
	if req.Color != "" {
		deadline.Color = req.Color
	}
	if err := s.events.Update(ctx, nil, deadline); err != nil {
		return nil, mapLookupError(err, "deadline not found", "failed to update deadline")
	}
	resp := toDeadlineResponse(*deadline)
	return &resp, nil
}

// DeleteDeadline removes a deadline together with every self-study session
// tied to it, generated or manual.
func (s *CalendarService) DeleteDeadline(ctx context.Context, userID, deadlineID string) (*dto.DeleteEventResponse, error) {
	release, err := s.lockDeadline(ctx, deadlineID)
	if err != nil {
		return nil, err
	}
	defer s.unlock(ctx, release, deadlineID)

	if _, err := s.ownedDeadline(ctx, userID, deadlineID); err != nil {
		return nil, err
	}
	return s.deleteWithSessions(ctx, deadlineID)
}

// ListEvents returns every calendar entry of the user overlapping the range.
func (s *CalendarService) ListEvents(ctx context.Context, userID string, query dto.EventRangeQuery) ([]dto.EventResponse, error) {
	if err := s.validator.Struct(query); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid calendar range")
	}
	if query.To.Sub(query.From) > maxEventRange {
		return nil, appErrors.Clone(appErrors.ErrValidation, "calendar range may span at most one year")
	}
	events, err := s.events.ListByUserRange(ctx, userID, query.From, query.To)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list calendar events")
	}
	return toEventResponses(events), nil
}

// Upcoming returns the next events of the user. limit falls back to 4 and is capped at 50.
func (s *CalendarService) Upcoming(ctx context.Context, userID string, limit int) ([]dto.EventResponse, error) {
	if limit <= 0 {
		limit = defaultUpcomingLimit
	}
	if limit > maxUpcomingLimit {
		limit = maxUpcomingLimit
	}
	events, err := s.events.ListUpcoming(ctx, userID, s.now().UTC(), limit)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list upcoming events")
	}
	return toEventResponses(events), nil
}

// CreateEvent adds a lecture, exam or other entry. Exams count as deadlines,
// so the planner can schedule study time for them.
func (s *CalendarService) CreateEvent(ctx context.Context, userID string, req dto.EventRequest) (*dto.EventResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	event := models.CalendarEvent{ID: uuid.NewString(), UserID: userID}
	course, err := s.applyEvent(ctx, userID, &event, req)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.events.CreateBatch(ctx, exec, []models.CalendarEvent{event}); err != nil {
			return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save event")
		}
		if course == nil {
			return nil
		}
		if err := s.courses.AppendEventIDs(ctx, exec, course.ID, []string{event.ID}); err != nil {
			return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to link event to course")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp := toEventResponse(event)
	return &resp, nil
}

// UpdateEvent replaces a plain calendar entry. Deadlines and self-study
// sessions are edited through their own endpoints.
func (s *CalendarService) UpdateEvent(ctx context.Context, userID, eventID string, req dto.EventRequest) (*dto.EventResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}
	event, err := s.ownedEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if event.Kind == models.EventKindDeadline || event.Kind == models.EventKindSelfStudy {
		return nil, appErrors.Clone(appErrors.ErrConflict, "event of kind "+string(event.Kind)+" cannot be edited here")
	}
	previousCourse := event.CourseID
	course, err := s.applyEvent(ctx, userID, event, req)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(exec sqlx.ExtContext) error {
		if err := s.events.Update(ctx, exec, event); err != nil {
			return mapLookupError(err, "event not found", "failed to update event")
		}
		if course == nil || (previousCourse != nil && *previousCourse == course.ID) {
			return nil
		}
		if err := s.courses.AppendEventIDs(ctx, exec, course.ID, []string{event.ID}); err != nil {
			return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to link event to course")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	resp := toEventResponse(*event)
	return &resp, nil
}

// DeleteEvent removes an entry of any kind. Deleting a deadline this way also
// removes its self-study sessions.
func (s *CalendarService) DeleteEvent(ctx context.Context, userID, eventID string) (*dto.DeleteEventResponse, error) {
	event, err := s.ownedEvent(ctx, userID, eventID)
	if err != nil {
		return nil, err
	}
	if event.IsDeadline {
		return s.DeleteDeadline(ctx, userID, eventID)
	}
	if err := s.events.Delete(ctx, nil, eventID); err != nil {
		return nil, mapLookupError(err, "event not found", "failed to delete event")
	}
	return &dto.DeleteEventResponse{ID: eventID}, nil
}

func (s *CalendarService) deleteWithSessions(ctx context.Context, deadlineID string) (*dto.DeleteEventResponse, error) {
	resp := &dto.DeleteEventResponse{ID: deadlineID}
	err := s.inTx(ctx, func(exec sqlx.ExtContext) error {
		n, err := s.events.DeleteSessionsByDeadline(ctx, exec, deadlineID)
		if err != nil {
			return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to delete deadline sessions")
		}
		resp.SessionsDeleted = n
		if err := s.events.Delete(ctx, exec, deadlineID); err != nil {
			return mapLookupError(err, "deadline not found", "failed to delete deadline")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("deadline deleted", zap.String("deadline_id", deadlineID), zap.Int("sessions_deleted", resp.SessionsDeleted))
	return resp, nil
}

func (s *CalendarService) validateDeadline(req dto.DeadlineRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid deadline payload")
	}
	if req.StudyStart != nil && !req.StudyStart.Before(req.DueAt) {
		return appErrors.Clone(appErrors.ErrValidation, "studyStart must be before dueAt")
	}
	return nil
}

// applyEvent copies the request onto event and resolves the target course, if any.
func (s *CalendarService) applyEvent(ctx context.Context, userID string, event *models.CalendarEvent, req dto.EventRequest) (*models.Course, error) {
	kind, err := models.ParseEventKind(req.Kind)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, err.Error())
	}
	event.Title = strings.TrimSpace(req.Title)
	event.Description = req.Description
	event.Kind = kind
	event.StartTime = req.Start
	event.EndTime = req.End
	event.Points = req.Points
	event.IsDeadline = kind == models.EventKindExam
	event.CourseID = nil

	var course *models.Course
	if req.CourseID != nil && *req.CourseID != "" {
		course, err = ownedCourse(ctx, s.courses, userID, *req.CourseID)
		if err != nil {
			return nil, err
		}
		event.CourseID = &course.ID
	}

	switch {
	case req.Color != "":
		event.Color = req.Color
	case course != nil:
		event.Color = course.Color
	default:
		event.Color = kind.DefaultColor()
	}
	return course, nil
}

func (s *CalendarService) ownedEvent(ctx context.Context, userID, eventID string) (*models.CalendarEvent, error) {
	event, err := s.events.FindByID(ctx, eventID)
	if err != nil {
		return nil, mapLookupError(err, "event not found", "failed to load event")
	}
	if event.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "event belongs to another user")
	}
	return event, nil
}

func (s *CalendarService) ownedDeadline(ctx context.Context, userID, deadlineID string) (*models.CalendarEvent, error) {
	deadline, err := s.ownedEvent(ctx, userID, deadlineID)
	if err != nil {
		return nil, err
	}
	if !deadline.IsDeadline {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event is not a deadline")
	}
	return deadline, nil
}

func (s *CalendarService) lockDeadline(ctx context.Context, deadlineID string) (lock.Release, error) {
	release, err := s.locker.Acquire(ctx, deadlineLockKey(deadlineID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, appErrors.Clone(appErrors.ErrLocked, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire deadline lock")
	}
	return release, nil
}

func (s *CalendarService) unlock(ctx context.Context, release lock.Release, deadlineID string) {
	if err := release(context.WithoutCancel(ctx)); err != nil {
		s.logger.Warn("failed to release deadline lock", zap.String("deadline_id", deadlineID), zap.Error(err))
	}
}

// inTx runs fn inside a transaction when a provider is configured and rolls back
// when fn fails.
func (s *CalendarService) inTx(ctx context.Context, fn func(exec sqlx.ExtContext) error) (err error) {
	if s.tx == nil {
		return fn(nil)
	}
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to commit transaction")
	}
	return nil
}

func applyDeadline(deadline *models.CalendarEvent, req dto.DeadlineRequest) {
	deadline.Title = strings.TrimSpace(req.Title)
	deadline.Description = req.Description
	deadline.StartTime = req.DueAt
	deadline.EndTime = req.DueAt
	deadline.StudyHoursNeeded = req.StudyHoursNeeded
	deadline.Points = req.Points
	deadline.StudyStart = req.StudyStart
}

func toDeadlineResponse(d models.CalendarEvent) dto.DeadlineResponse {
	resp := dto.DeadlineResponse{
		ID:               d.ID,
		Title:            d.Title,
		Description:      d.Description,
		DueAt:            d.DueAt(),
		StudyHoursNeeded: d.StudyHoursNeeded,
		Points:           d.Points,
		StudyStart:       d.StudyStart,
		Color:            d.Color,
	}
	if d.CourseID != nil {
		resp.CourseID = *d.CourseID
	}
	return resp
}

func toEventResponse(e models.CalendarEvent) dto.EventResponse {
	return dto.EventResponse{
		ID:                e.ID,
		Title:             e.Title,
		Description:       e.Description,
		Kind:              string(e.Kind),
		Color:             e.Color,
		Start:             e.StartTime,
		End:               e.EndTime,
		CourseID:          e.CourseID,
		IsDeadline:        e.IsDeadline,
		Points:            e.Points,
		GeneratedByEngine: e.GeneratedByEngine,
		DurationHours:     roundHours(e.EndTime.Sub(e.StartTime).Hours()),
	}
}

func toEventResponses(events []models.CalendarEvent) []dto.EventResponse {
	out := make([]dto.EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, toEventResponse(e))
	}
	return out
}
