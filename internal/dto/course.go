package dto

// CreateCourseRequest registers a course for the authenticated user.
type CreateCourseRequest struct {
	Name             string  `json:"name" validate:"required,max=200"`
	Color            string  `json:"color" validate:"omitempty,hexcolor"`
	CourseIdentifier *string `json:"courseIdentifier" validate:"omitempty,max=64"`
	Difficulty       int     `json:"difficulty" validate:"omitempty,min=1,max=3"`
}
