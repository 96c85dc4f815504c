package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidNotebook = errors.New("invalid notebook")
	ErrLocked          = errors.New("another publish run holds the lock")
)
