package repository

import "errors"

// Sentinel kinds for repository errors.
var (
	ErrInvalidWindow = errors.New("round end must be after start")
	ErrClosed        = errors.New("store closed")
)
