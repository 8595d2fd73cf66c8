package repository

import "errors"

var (
	ErrNotFound = errors.New("not found")
	// ErrSubmitted is returned for writes to an application that has been paid for.
	ErrSubmitted = errors.New("application already submitted")
	// ErrStageSkipped is returned when a stage is saved before the ones preceding it.
	ErrStageSkipped = errors.New("stage saved out of order")
	ErrNotOwner     = errors.New("application belongs to another applicant")
)
