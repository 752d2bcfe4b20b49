package analyses

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrNotConfigured = errors.New("inference client not configured")
	ErrInvalidInput  = errors.New("invalid input")
)
