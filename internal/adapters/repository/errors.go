package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidRecord = errors.New("invalid record")
	ErrInvalidToken  = errors.New("invalid session token")
	ErrUnavailable   = errors.New("store unavailable")
	ErrClosed        = errors.New("store closed")
)
