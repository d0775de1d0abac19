package lesson

import "errors"

var (
	ErrLessonNotFound     = errors.New("lesson not found")
	ErrCourseNotFound     = errors.New("course not found")
	ErrNameRequired       = errors.New("lesson name is required")
	ErrNameLength         = errors.New("lesson name must be between 3 and 80 characters")
	ErrDescriptionTooLong = errors.New("lesson description cannot exceed 1000 characters")
	ErrOrderInvalid       = errors.New("lesson order cannot be negative")
	ErrViewLimitInvalid   = errors.New("lesson view limit must be positive")
	ErrNotReady           = errors.New("lesson video is not ready for playback")
	ErrNoCorrelation      = errors.New("no lesson matches the webhook correlation keys")
)
