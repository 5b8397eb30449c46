package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/internal/models"
	"github.com/noah-isme/study-planner-api/internal/planner"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

type preferenceRepository interface {
	GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error)
	UpdatePreferences(ctx context.Context, prefs *models.UserPreferences) error
}

type preferenceCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// PreferenceService reads and updates the availability settings used by the planner.
type PreferenceService struct {
	repo      preferenceRepository
	cache     preferenceCache
	cacheTTL  time.Duration
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPreferenceService wires the service. cache may be nil.
func NewPreferenceService(repo preferenceRepository, cache preferenceCache, cacheTTL time.Duration, validate *validator.Validate, logger *zap.Logger) *PreferenceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreferenceService{repo: repo, cache: cache, cacheTTL: cacheTTL, validator: validate, logger: logger}
}

func preferencesCacheKey(userID string) string {
	return "preferences:" + userID
}

// GetPreferences returns the stored settings, consulting the cache first.
func (s *PreferenceService) GetPreferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	key := preferencesCacheKey(userID)
	if s.cache != nil {
		var cached models.UserPreferences
		if hit, err := s.cache.Get(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	prefs, err := s.repo.GetPreferences(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to load preferences")
	}

	if s.cache != nil {
		_ = s.cache.Set(ctx, key, prefs, s.cacheTTL)
	}
	return prefs, nil
}

// Get returns the settings of a user as a response payload.
func (s *PreferenceService) Get(ctx context.Context, userID string) (*dto.PreferencesResponse, error) {
	prefs, err := s.GetPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	return toPreferencesResponse(prefs), nil
}

// Update validates and stores new settings. Settings the planner would reject are refused.
func (s *PreferenceService) Update(ctx context.Context, userID string, req dto.UpdatePreferencesRequest) (*dto.PreferencesResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preferences payload")
	}

	prefs := &models.UserPreferences{
		UserID:          userID,
		StudyDays:       normalizeStudyDays(req.StudyDays),
		StartTime:       strings.TrimSpace(req.StartTime),
		EndTime:         strings.TrimSpace(req.EndTime),
		BreakTime:       strings.TrimSpace(req.BreakTime),
		SessionDuration: strings.TrimSpace(req.SessionDuration),
	}
	if _, err := planner.ResolvePreferences(prefs.Raw()); err != nil {
		return nil, err
	}
	if d, err := planner.ParseClockDuration(prefs.BreakTime); err != nil || d < 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "break time must be a non-negative HH:MM")
	}
	if d, err := planner.ParseClockDuration(prefs.SessionDuration); err != nil || d <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "session duration must be a positive HH:MM")
	}

	if err := s.repo.UpdatePreferences(ctx, prefs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.WrapAs(appErrors.ErrPersistence, err, "failed to save preferences")
	}

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, preferencesCacheKey(userID)); err != nil {
			s.logger.Warn("preferences cache not invalidated", zap.String("user_id", userID), zap.Error(err))
		}
	}
	s.logger.Info("preferences updated", zap.String("user_id", userID))
	return toPreferencesResponse(prefs), nil
}

func normalizeStudyDays(raw string) string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToUpper(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

func toPreferencesResponse(p *models.UserPreferences) *dto.PreferencesResponse {
	return &dto.PreferencesResponse{
		StudyDays:       p.StudyDays,
		StartTime:       p.StartTime,
		EndTime:         p.EndTime,
		BreakTime:       p.BreakTime,
		SessionDuration: p.SessionDuration,
		UpdatedAt:       p.UpdatedAt,
	}
}
