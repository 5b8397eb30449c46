package dto

import "time"

// PlanDeadlineRequest asks the engine to plan self-study sessions for a deadline.
// UserID is taken from the access token, not the body.
type PlanDeadlineRequest struct {
	CourseID             string `json:"courseId" validate:"required"`
	DeadlineID           string `json:"deadlineId" validate:"required"`
	UserID               string `json:"-" validate:"required"`
	TotalPointsForCourse int    `json:"totalPointsForCourse" validate:"omitempty,min=0"`
}

// PlannedSession is one session produced or persisted by the planner.
type PlannedSession struct {
	ID                string    `json:"id,omitempty"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Minutes           int       `json:"minutes"`
	RelatedDeadlineID string    `json:"relatedDeadlineId,omitempty"`
}

// PlanResult summarises one planning run.
type PlanResult struct {
	DeadlineID       string           `json:"deadlineId"`
	SessionsCreated  int              `json:"sessionsCreated"`
	MinutesRequested int              `json:"minutesRequested"`
	MinutesScheduled int              `json:"minutesScheduled"`
	ShortfallMinutes int              `json:"shortfallMinutes"`
	CandidateCount   int              `json:"candidateCount"`
	Reason           string           `json:"reason,omitempty"`
	Sessions         []PlannedSession `json:"sessions"`
}

// PlanAccepted is returned when a run was queued instead of executed inline.
type PlanAccepted struct {
	DeadlineID string `json:"deadlineId"`
	Status     string `json:"status"`
}

// DeleteSessionsResponse reports how many engine sessions were removed.
type DeleteSessionsResponse struct {
	DeadlineID string `json:"deadlineId"`
	Deleted    int    `json:"deleted"`
}

// ManualSessionRequest creates a self-study session by hand.
type ManualSessionRequest struct {
	Title             string    `json:"title" validate:"omitempty,max=200"`
	Description       string    `json:"description" validate:"omitempty,max=2000"`
	Start             time.Time `json:"start" validate:"required"`
	End               time.Time `json:"end" validate:"required,gtfield=Start"`
	RelatedDeadlineID *string   `json:"relatedDeadlineId"`
}

// SessionResponse is a listed self-study session.
type SessionResponse struct {
	ID                string    `json:"id"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Start             time.Time `json:"start"`
	End               time.Time `json:"end"`
	Color             string    `json:"color"`
	GeneratedByEngine bool      `json:"generatedByEngine"`
	RelatedDeadlineID *string   `json:"relatedDeadlineId,omitempty"`
	DeadlineTitle     *string   `json:"deadlineTitle,omitempty"`
}

// SessionExportQuery selects the export format.
type SessionExportQuery struct {
	Format string `form:"format" validate:"omitempty,oneof=csv pdf"`
}

// CourseProgressResponse reports course completion and remaining study workload.
type CourseProgressResponse struct {
	CourseID                string  `json:"courseId"`
	ProgressPercent         int     `json:"progressPercent"`
	SelfStudyHours          float64 `json:"selfStudyHours"`
	WorkloadHours           int     `json:"workloadHours"`
	RemainingSelfStudyHours float64 `json:"remainingSelfStudyHours"`
}
