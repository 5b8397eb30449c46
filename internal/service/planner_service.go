package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/planner"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
	"github.com/noah-isme/study-planner-api/pkg/lock"
	"github.com/noah-isme/study-planner-api/pkg/middleware/requestid"
)

// Reasons reported on a PlanResult.
const (
	ReasonNoStudyTime  = "no study time required"
	ReasonNoSlots      = "no available slots"
	ReasonInsufficient = "not enough free time before the deadline"
)

type plannerPreferenceReader interface {
	GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error)
}

type plannerCourseRepository interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
	AppendEventIDs(ctx context.Context, exec sqlx.ExtContext, courseID string, eventIDs []string) error
}

type plannerEventRepository interface {
	FindByID(ctx context.Context, id string) (*models.CalendarEvent, error)
	ListBusyIntervals(ctx context.Context, userID string, from, to time.Time) ([]planner.BusyInterval, error)
	CreateBatch(ctx context.Context, exec sqlx.ExtContext, events []models.CalendarEvent) error
	DeleteGeneratedByDeadline(ctx context.Context, deadlineID string) (int, error)
	ListSessionsByCourse(ctx context.Context, courseID string) ([]models.SessionView, error)
	CourseStats(ctx context.Context, courseID string, now time.Time) (models.CourseEventStats, error)
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// PlannerConfig governs planner behaviour.
type PlannerConfig struct {
	Location    *time.Location
	TotalPoints int
	Now         func() time.Time
}

// PlannerService plans, lists and resets self-study sessions for course deadlines.
type PlannerService struct {
	prefs     plannerPreferenceReader
	courses   plannerCourseRepository
	events    plannerEventRepository
	tx        txProvider
	locker    lock.Locker
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       PlannerConfig
}

// NewPlannerService wires planner dependencies. tx may be nil, in which case sessions are
// written without a surrounding transaction.
func NewPlannerService(
	prefs plannerPreferenceReader,
	courses plannerCourseRepository,
	events plannerEventRepository,
	tx txProvider,
	locker lock.Locker,
	metrics *MetricsService,
	validate *validator.Validate,
	logger *zap.Logger,
	cfg PlannerConfig,
) *PlannerService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if locker == nil {
		locker = lock.NewLocal()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &PlannerService{
		prefs:     prefs,
		courses:   courses,
		events:    events,
		tx:        tx,
		locker:    locker,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// planContext is everything loaded and computed before any write.
type planContext struct {
	course   *models.Course
	deadline *models.CalendarEvent
	window   planner.Window
	plan     planner.Plan
}

// PlanDeadline computes sessions for a deadline and persists them. Runs for the same
// deadline are mutually exclusive; a concurrent run gets ErrLocked.
func (s *PlannerService) PlanDeadline(ctx context.Context, req dto.PlanDeadlineRequest) (result *dto.PlanResult, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan request")
	}

	started := time.Now()
	log := s.logger.With(
		zap.String("deadline_id", req.DeadlineID),
		zap.String("course_id", req.CourseID),
		zap.String("request_id", requestid.FromContext(ctx)),
	)

	release, err := s.locker.Acquire(ctx, deadlineLockKey(req.DeadlineID))
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			s.metrics.ObservePlanRun(OutcomeLocked, 0, 0, 0, time.Since(started))
			return nil, appErrors.Clone(appErrors.ErrLocked, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire planning lock")
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			log.Warn("failed to release planning lock", zap.Error(relErr))
		}
	}()

	defer func() {
		if err != nil {
			s.metrics.ObservePlanRun(OutcomeFailed, 0, 0, 0, time.Since(started))
			log.Warn("planning run failed", zap.Error(err))
		}
	}()

	pc, result, err := s.prepare(ctx, req)
	if err != nil || result != nil {
		if result != nil {
			s.metrics.ObservePlanRun(OutcomeNoWork, 0, 0, 0, time.Since(started))
		}
		return result, err
	}

	result = newPlanResult(req.DeadlineID, pc.plan)
	if len(pc.plan.Allocations) == 0 {
		result.Reason = ReasonNoSlots
		s.metrics.ObservePlanRun(OutcomeNoSlots, 0, 0, result.ShortfallMinutes, time.Since(started))
		log.Info("no slots available for deadline", zap.Int("minutes_requested", result.MinutesRequested))
		return result, nil
	}

	sessions, err := s.materialize(ctx, req.UserID, pc)
	if err != nil {
		return nil, err
	}
	result.SessionsCreated = len(sessions)
	result.Sessions = toPlannedSessions(sessions)

	outcome := OutcomeScheduled
	if result.ShortfallMinutes > 0 {
		outcome = OutcomePartial
	}
	s.metrics.ObservePlanRun(outcome, result.SessionsCreated, result.MinutesScheduled, result.ShortfallMinutes, time.Since(started))
	log.Info("self-study sessions planned",
		zap.Int("sessions", result.SessionsCreated),
		zap.Int("minutes_scheduled", result.MinutesScheduled),
		zap.Int("shortfall_minutes", result.ShortfallMinutes),
		zap.Int("candidates", result.CandidateCount),
	)
	return result, nil
}

// Preview runs the planning pipeline without writing anything.
func (s *PlannerService) Preview(ctx context.Context, req dto.PlanDeadlineRequest) (*dto.PlanResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid plan request")
	}
	pc, result, err := s.prepare(ctx, req)
	if err != nil || result != nil {
		return result, err
	}

	result = newPlanResult(req.DeadlineID, pc.plan)
	if len(pc.plan.Allocations) == 0 {
		result.Reason = ReasonNoSlots
		return result, nil
	}
	sessions := make([]dto.PlannedSession, 0, len(pc.plan.Allocations))
	for _, a := range pc.plan.Allocations {
		sessions = append(sessions, dto.PlannedSession{
			Start:             a.Slot.Start,
			End:               a.End(),
			Minutes:           a.Minutes,
			RelatedDeadlineID: req.DeadlineID,
		})
	}
	result.SessionsCreated = len(sessions)
	result.Sessions = sessions
	return result, nil
}

// prepare loads the course, deadline and preferences and runs the pure stages. A non-nil
// result means there is nothing to plan.
func (s *PlannerService) prepare(ctx context.Context, req dto.PlanDeadlineRequest) (*planContext, *dto.PlanResult, error) {
	course, err := s.authorizeCourse(ctx, req.UserID, req.CourseID)
	if err != nil {
		return nil, nil, err
	}
	deadline, err := s.loadDeadline(ctx, req.UserID, req.CourseID, req.DeadlineID)
	if err != nil {
		return nil, nil, err
	}

	minutes := s.requiredMinutes(course, deadline, req.TotalPointsForCourse)
	if minutes <= 0 {
		return nil, &dto.PlanResult{DeadlineID: req.DeadlineID, Reason: ReasonNoStudyTime, Sessions: []dto.PlannedSession{}}, nil
	}

	raw, err := s.prefs.GetPreferences(ctx, req.UserID)
	if err != nil {
		return nil, nil, mapLookupError(err, "user not found", "failed to load preferences")
	}
	prefs, err := planner.ResolvePreferences(raw.Raw())
	if err != nil {
		return nil, nil, err
	}

	window := planner.PlanningWindow(deadline.StudyStart, deadline.DueAt(), s.cfg.Now(), s.cfg.Location)
	var busy []planner.BusyInterval
	if window.Start.Before(window.End) {
		busy, err = s.events.ListBusyIntervals(ctx, req.UserID, window.Start, window.End)
		if err != nil {
			return nil, nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load calendar")
		}
	}

	plan := planner.Build(planner.Input{
		Preferences:     prefs,
		Busy:            busy,
		Window:          window,
		RequiredMinutes: minutes,
	})
	return &planContext{course: course, deadline: deadline, window: window, plan: plan}, nil, nil
}

// requiredMinutes prefers the deadline's explicit hours and falls back to its share of
// the course self-study budget by points.
func (s *PlannerService) requiredMinutes(course *models.Course, deadline *models.CalendarEvent, totalPoints int) int {
	hours := deadline.StudyHoursNeeded
	if hours <= 0 {
		if totalPoints <= 0 {
			totalPoints = s.cfg.TotalPoints
		}
		hours = planner.HoursFromPoints(deadline.Points, totalPoints, planner.SelfStudyHours(course.Difficulty))
	}
	if hours <= 0 {
		return 0
	}
	return hours * 60
}

// materialize writes the allocated sessions and links them to the course, in one
// transaction when a provider is configured.
func (s *PlannerService) materialize(ctx context.Context, userID string, pc *planContext) (sessions []models.CalendarEvent, err error) {
	sessions = make([]models.CalendarEvent, 0, len(pc.plan.Allocations))
	courseID := pc.course.ID
	deadlineID := pc.deadline.ID
	for _, a := range pc.plan.Allocations {
		sessions = append(sessions, models.CalendarEvent{
			ID:                uuid.NewString(),
			UserID:            userID,
			CourseID:          &courseID,
			Title:             fmt.Sprintf("Self-study for %s, %s", pc.deadline.Title, pc.course.Name),
			Description:       "Auto-planned session",
			Kind:              models.EventKindSelfStudy,
			Color:             pc.course.Color,
			StartTime:         a.Slot.Start,
			EndTime:           a.End(),
			GeneratedByEngine: true,
			RelatedDeadlineID: &deadlineID,
		})
	}
	ids := make([]string, len(sessions))
	for i := range sessions {
		ids[i] = sessions[i].ID
	}

	var exec sqlx.ExtContext
	var tx *sqlx.Tx
	if s.tx != nil {
		tx, err = s.tx.BeginTxx(ctx, nil)
		if err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to begin transaction")
		}
		exec = tx
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()
	}

	if err = s.events.CreateBatch(ctx, exec, sessions); err != nil {
		err = appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save study sessions")
		return nil, err
	}
	if err = s.courses.AppendEventIDs(ctx, exec, courseID, ids); err != nil {
		err = appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to link study sessions to course")
		return nil, err
	}
	if tx != nil {
		if err = tx.Commit(); err != nil {
			err = appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to commit study sessions")
			return nil, err
		}
	}
	return sessions, nil
}

// DeletePlannedSessions removes every engine-generated session of a deadline. Deleting
// twice is harmless; the second call returns 0.
func (s *PlannerService) DeletePlannedSessions(ctx context.Context, deadlineID string) (int, error) {
	n, err := s.events.DeleteGeneratedByDeadline(ctx, deadlineID)
	if err != nil {
		return 0, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to delete planned sessions")
	}
	s.metrics.ObserveSessionsDeleted(n)
	s.logger.Info("planned sessions deleted", zap.String("deadline_id", deadlineID), zap.Int("deleted", n))
	return n, nil
}

// DeletePlannedSessionsForUser checks that the deadline belongs to userID before deleting.
func (s *PlannerService) DeletePlannedSessionsForUser(ctx context.Context, userID, deadlineID string) (int, error) {
	deadline, err := s.events.FindByID(ctx, deadlineID)
	if err != nil {
		return 0, mapLookupError(err, "deadline not found", "failed to load deadline")
	}
	if !deadline.IsDeadline {
		return 0, appErrors.Clone(appErrors.ErrNotFound, "event is not a deadline")
	}
	if deadline.UserID != userID {
		return 0, appErrors.Clone(appErrors.ErrForbidden, "deadline belongs to another user")
	}
	return s.DeletePlannedSessions(ctx, deadlineID)
}

// ListSessions returns the self-study sessions of a course owned by userID.
func (s *PlannerService) ListSessions(ctx context.Context, userID, courseID string) ([]dto.SessionResponse, error) {
	if _, err := s.authorizeCourse(ctx, userID, courseID); err != nil {
		return nil, err
	}
	views, err := s.events.ListSessionsByCourse(ctx, courseID)
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to list sessions")
	}
	out := make([]dto.SessionResponse, 0, len(views))
	for _, v := range views {
		out = append(out, dto.SessionResponse{
			ID:                v.ID,
			Title:             v.Title,
			Description:       v.Description,
			Start:             v.StartTime,
			End:               v.EndTime,
			Color:             v.Color,
			GeneratedByEngine: v.GeneratedByEngine,
			RelatedDeadlineID: v.RelatedDeadlineID,
			DeadlineTitle:     v.DeadlineTitle,
		})
	}
	return out, nil
}

// AddManualSession creates a user-entered self-study session on a course.
func (s *PlannerService) AddManualSession(ctx context.Context, userID, courseID string, req dto.ManualSessionRequest) (result *dto.SessionResponse, err error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	course, err := s.authorizeCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	if req.RelatedDeadlineID != nil {
		if _, err := s.loadDeadline(ctx, userID, courseID, *req.RelatedDeadlineID); err != nil {
			return nil, err
		}
	}

	title := req.Title
	if title == "" {
		title = "Self-study, " + course.Name
	}
	event := models.CalendarEvent{
		ID:                uuid.NewString(),
		UserID:            userID,
		CourseID:          &course.ID,
		Title:             title,
		Description:       req.Description,
		Kind:              models.EventKindSelfStudy,
		Color:             course.Color,
		StartTime:         req.Start,
		EndTime:           req.End,
		RelatedDeadlineID: req.RelatedDeadlineID,
	}

	var exec sqlx.ExtContext
	var tx *sqlx.Tx
	if s.tx != nil {
		tx, err = s.tx.BeginTxx(ctx, nil)
		if err != nil {
			return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to begin transaction")
		}
		exec = tx
		defer func() {
			if err != nil {
				_ = tx.Rollback()
			}
		}()
	}
	if err = s.events.CreateBatch(ctx, exec, []models.CalendarEvent{event}); err != nil {
		err = appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save session")
		return nil, err
	}
	if err = s.courses.AppendEventIDs(ctx, exec, course.ID, []string{event.ID}); err != nil {
		err = appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to link session to course")
		return nil, err
	}
	if tx != nil {
		if err = tx.Commit(); err != nil {
			err = appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to commit session")
			return nil, err
		}
	}

	return &dto.SessionResponse{
		ID:                event.ID,
		Title:             event.Title,
		Description:       event.Description,
		Start:             event.StartTime,
		End:               event.EndTime,
		Color:             event.Color,
		RelatedDeadlineID: event.RelatedDeadlineID,
	}, nil
}

// Progress reports completion and remaining self-study workload of a course.
func (s *PlannerService) Progress(ctx context.Context, userID, courseID string) (*dto.CourseProgressResponse, error) {
	course, err := s.authorizeCourse(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}
	stats, err := s.events.CourseStats(ctx, courseID, s.cfg.Now())
	if err != nil {
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load course statistics")
	}

	progress := 0
	if stats.TotalEvents > 0 {
		progress = int(math.Round(float64(stats.CompletedEvents) * 100 / float64(stats.TotalEvents)))
	}
	planned := roundHours(float64(stats.SelfStudyMinutes) / 60)
	remaining := roundHours(float64(planner.SelfStudyHours(course.Difficulty)) - planned)
	if remaining < 0 {
		remaining = 0
	}
	return &dto.CourseProgressResponse{
		CourseID:                courseID,
		ProgressPercent:         progress,
		SelfStudyHours:          planned,
		WorkloadHours:           planner.WorkloadTarget(course.Difficulty),
		RemainingSelfStudyHours: remaining,
	}, nil
}

func (s *PlannerService) authorizeCourse(ctx context.Context, userID, courseID string) (*models.Course, error) {
	return ownedCourse(ctx, s.courses, userID, courseID)
}

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// ownedCourse loads a course and checks that userID owns it.
func ownedCourse(ctx context.Context, courses courseFinder, userID, courseID string) (*models.Course, error) {
	course, err := courses.FindByID(ctx, courseID)
	if err != nil {
		return nil, mapLookupError(err, "course not found", "failed to load course")
	}
	if course.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "course belongs to another user")
	}
	return course, nil
}

func (s *PlannerService) loadDeadline(ctx context.Context, userID, courseID, deadlineID string) (*models.CalendarEvent, error) {
	deadline, err := s.events.FindByID(ctx, deadlineID)
	if err != nil {
		return nil, mapLookupError(err, "deadline not found", "failed to load deadline")
	}
	if !deadline.IsDeadline {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "event is not a deadline")
	}
	if deadline.UserID != userID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "deadline belongs to another user")
	}
	if !deadline.BelongsTo(courseID) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "deadline not found in course")
	}
	return deadline, nil
}

func mapLookupError(err error, notFound, failed string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return appErrors.Clone(appErrors.ErrNotFound, notFound)
	}
	var appErr *appErrors.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return appErrors.WrapAs(appErrors.ErrPersistence, err, failed)
}

func deadlineLockKey(deadlineID string) string {
	return "plan:deadline:" + deadlineID
}

func newPlanResult(deadlineID string, plan planner.Plan) *dto.PlanResult {
	result := &dto.PlanResult{
		DeadlineID:       deadlineID,
		MinutesRequested: plan.RequiredMinutes,
		MinutesScheduled: plan.ScheduledMinutes,
		ShortfallMinutes: plan.ShortfallMinutes(),
		CandidateCount:   len(plan.Candidates),
		Sessions:         []dto.PlannedSession{},
	}
	if result.ShortfallMinutes > 0 {
		result.Reason = ReasonInsufficient
	}
	return result
}

func toPlannedSessions(events []models.CalendarEvent) []dto.PlannedSession {
	out := make([]dto.PlannedSession, 0, len(events))
	for _, e := range events {
		related := ""
		if e.RelatedDeadlineID != nil {
			related = *e.RelatedDeadlineID
		}
		out = append(out, dto.PlannedSession{
			ID:                e.ID,
			Start:             e.StartTime,
			End:               e.EndTime,
			Minutes:           int(e.EndTime.Sub(e.StartTime) / time.Minute),
			RelatedDeadlineID: related,
		})
	}
	return out
}

func roundHours(h float64) float64 {
	return math.Round(h*100) / 100
}
