package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

type courseStore interface {
	List(ctx context.Context, filter models.CourseFilter) ([]models.Course, int, error)
	ExistsByIdentifier(ctx context.Context, userID, identifier string) (bool, error)
	Create(ctx context.Context, course *models.Course) error
}

// CourseService registers and lists a user's courses.
type CourseService struct {
	repo      courseStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewCourseService constructs the service.
func NewCourseService(repo courseStore, validate *validator.Validate, logger *zap.Logger) *CourseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CourseService{repo: repo, validator: validate, logger: logger}
}

// List returns a page of the user's courses with pagination metadata.
func (s *CourseService) List(ctx context.Context, filter models.CourseFilter) ([]models.Course, *models.Pagination, error) {
	courses, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list courses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 200 {
		size = 50
	}
	if courses == nil {
		courses = []models.Course{}
	}
	return courses, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create adds a course for userID. Identifiers are unique per user.
func (s *CourseService) Create(ctx context.Context, userID string, req dto.CreateCourseRequest) (*models.Course, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid course payload")
	}

	course := &models.Course{
		UserID:     userID,
		Name:       strings.TrimSpace(req.Name),
		Color:      req.Color,
		Difficulty: req.Difficulty,
	}
	if course.Color == "" {
		course.Color = models.DefaultCourseColor
	}
	if course.Difficulty == 0 {
		course.Difficulty = models.DifficultyMedium
	}
	if req.CourseIdentifier != nil {
		if identifier := strings.TrimSpace(*req.CourseIdentifier); identifier != "" {
			exists, err := s.repo.ExistsByIdentifier(ctx, userID, identifier)
			if err != nil {
				return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check course identifier")
			}
			if exists {
				return nil, appErrors.Clone(appErrors.ErrConflict, "course identifier already exists")
			}
			course.CourseIdentifier = &identifier
		}
	}

	if err := s.repo.Create(ctx, course); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create course")
	}
	s.logger.Info("course created", zap.String("course_id", course.ID), zap.String("user_id", userID))
	return course, nil
}
