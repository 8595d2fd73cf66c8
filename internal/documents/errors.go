package documents

import (
	"errors"
	"fmt"

	"github.com/dharsanguruparan/AdmitFlow/internal/model"
)

var (
	// ErrRejected marks an upload the server refused. It is never retried.
	ErrRejected = errors.New("upload rejected")
	// ErrSuperseded is returned when the slot was removed or reselected while
	// the upload was in flight; the result was discarded.
	ErrSuperseded = errors.New("upload superseded")

	ErrNotSelected = errors.New("no file selected")
	ErrUnknownRole = errors.New("unknown document role")
)

// ConstraintError is a selection-time violation of the role's mime or size
// rule. The user has to pick a different file.
type ConstraintError struct {
	Role   model.Role
	Reason string
	Mime   string
	Size   int64
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("%s: %s", e.Role, e.Reason)
}

// UploadError is a failed upload after the retry budget was spent, or a
// permanent rejection.
type UploadError struct {
	Role      model.Role
	Attempts  int
	Permanent bool
	Err       error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s failed after %d attempt(s): %v", e.Role, e.Attempts, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }
