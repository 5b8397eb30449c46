package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/study-planner-api/internal/dto"
	"github.com/noah-isme/study-planner-api/pkg/export"
	appErrors "github.com/noah-isme/study-planner-api/pkg/errors"
)

type sessionLister interface {
	ListSessions(ctx context.Context, userID, courseID string) ([]dto.SessionResponse, error)
}

type renderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
	Extension() string
}

// ExportFile is a rendered export ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportService renders a course's study sessions as CSV or PDF.
type ExportService struct {
	sessions  sessionLister
	renderers map[string]renderer
	location  *time.Location
	logger    *zap.Logger
}

// NewExportService constructs an ExportService. Nil renderers fall back to the defaults.
func NewExportService(sessions sessionLister, location *time.Location, logger *zap.Logger, csv, pdf renderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.UTC
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		sessions:  sessions,
		renderers: map[string]renderer{"csv": csv, "pdf": pdf},
		location:  location,
		logger:    logger,
	}
}

// ExportSessions renders the sessions of a course. An empty format means csv.
func (s *ExportService) ExportSessions(ctx context.Context, userID, courseID, format string) (*ExportFile, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = "csv"
	}
	r, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	sessions, err := s.sessions.ListSessions(ctx, userID, courseID)
	if err != nil {
		return nil, err
	}

	payload, err := r.Render(s.buildDataset(courseID, sessions))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Debug("sessions exported", zap.String("course_id", courseID), zap.String("format", format), zap.Int("rows", len(sessions)))

	return &ExportFile{
		Filename:    fmt.Sprintf("sessions-%s.%s", courseID, r.Extension()),
		ContentType: r.ContentType(),
		Data:        payload,
	}, nil
}

func (s *ExportService) buildDataset(courseID string, sessions []dto.SessionResponse) export.Dataset {
	const layout = "2006-01-02 15:04"
	data := export.Dataset{
		Title:   "Study sessions for course " + courseID,
		Headers: []string{"Title", "Start", "End", "Minutes", "Deadline", "Source"},
		Rows:    make([][]string, 0, len(sessions)),
	}
	for _, session := range sessions {
		deadline := ""
		if session.DeadlineTitle != nil {
			deadline = *session.DeadlineTitle
		}
		source := "manual"
		if session.GeneratedByEngine {
			source = "planner"
		}
		data.Rows = append(data.Rows, []string{
			session.Title,
			session.Start.In(s.location).Format(layout),
			session.End.In(s.location).Format(layout),
			fmt.Sprintf("%d", int(session.End.Sub(session.Start)/time.Minute)),
			deadline,
			source,
		})
	}
	return data
}
