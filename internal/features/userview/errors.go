package userview

import "errors"

var (
	ErrQuotaExceeded = errors.New("view limit reached for this lesson")
	ErrViewNotFound  = errors.New("view record not found")
	ErrLimitInvalid  = errors.New("view limit must be positive")
)
