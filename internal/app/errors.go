package service

import (
	"errors"
	"fmt"

	"github.com/okian/songsort/internal/domain/matchqueue"
	"github.com/okian/songsort/internal/domain/model"
)

// Sentinel kinds for service errors.
var (
	ErrNotFound         = errors.New("not found")
	ErrTooFewItems      = matchqueue.ErrTooFewItems
	ErrStore            = errors.New("rating store error")
	ErrPartialUpdate    = errors.New("only one of the two ratings was updated")
	ErrInvalidOutcome   = errors.New("invalid outcome")
	ErrDuplicateOutcome = errors.New("outcome already recorded")
	ErrSessionNotFound  = fmt.Errorf("session %w", ErrNotFound)
	ErrUnknownGroup     = errors.New("unknown group key")
	ErrInvalidImport    = errors.New("invalid import")
)

// PartialUpdateError reports an outcome where exactly one of the two rating
// writes committed. The rating exchange is no longer zero-sum for this pair.
type PartialUpdateError struct {
	Committed model.Rating // the record that was written
	FailedID  string       // the record that was not
	Err       error
}

func (e *PartialUpdateError) Error() string {
	return fmt.Sprintf("%s: %s committed, %s failed: %v", ErrPartialUpdate, e.Committed.ID, e.FailedID, e.Err)
}

func (e *PartialUpdateError) Unwrap() []error { return []error{ErrPartialUpdate, e.Err} }
