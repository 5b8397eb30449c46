package dto

import "time"

// PreferencesResponse exposes the stored availability settings.
type PreferencesResponse struct {
	StudyDays       string    `json:"studyDays"`
	StartTime       string    `json:"startTime"`
	EndTime         string    `json:"endTime"`
	BreakTime       string    `json:"breakTime"`
	SessionDuration string    `json:"sessionDuration"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// UpdatePreferencesRequest replaces the availability settings.
type UpdatePreferencesRequest struct {
	StudyDays       string `json:"studyDays" validate:"required"`
	StartTime       string `json:"startTime" validate:"required"`
	EndTime         string `json:"endTime" validate:"required"`
	BreakTime       string `json:"breakTime" validate:"required"`
	SessionDuration string `json:"sessionDuration" validate:"required"`
}
