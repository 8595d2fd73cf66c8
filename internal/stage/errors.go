package stage

import (
	"errors"
	"fmt"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
	"github.com/dharsanguruparan/AdmitFlow/internal/validation"
)

var (
	ErrSubmitted      = errors.New("application already submitted")
	ErrStageMismatch  = errors.New("stage is not the current stage")
	ErrNotAdvanceable = errors.New("stage cannot be advanced by form submission")
	ErrInvalidTarget  = errors.New("target stage is not earlier than the current stage")
	ErrDerivedField   = errors.New("field is derived and cannot be edited directly")
	ErrSaveInFlight   = errors.New("a save is already in progress")
	ErrNotEditable    = errors.New("stage has no editable fields")
)

// ValidationError carries field-level messages for one stage. They come from
// the local validator or from the persistence service.
type ValidationError struct {
	Stage  model.Stage
	Fields validation.Errors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Stage, e.Fields.Error())
}

// ResumeError means the session could not be restored. Callers redirect to
// authentication instead of showing an empty form.
type ResumeError struct {
	Err error
}

func (e *ResumeError) Error() string { return "resume application: " + e.Err.Error() }

func (e *ResumeError) Unwrap() error { return e.Err }

// PersistError is a failed save. The stage did not advance.
type PersistError struct {
	Stage model.Stage
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("save %s: %v", e.Stage, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }
