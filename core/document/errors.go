package document

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrNotFound         = errors.New("document not found")
	ErrSlotNotFound     = errors.New("document slot not found")
	ErrPermissionDenied = errors.New("permission denied")

	// ErrIncompleteUpload is returned when the storage did not receive the whole file.
	ErrIncompleteUpload = errors.New("the uploaded file is incomplete")

	errMalformedRecord = errors.New("malformed document record")
	errNoFileBody      = errors.New("file has no content")
)

// ConflictError reports a transition attempted from an incompatible state:
// the record is locked for review, or another writer changed it first.
type ConflictError struct {
	RecordID string
	Status   Status // state that blocked the action
	Message  string

	// OrphanedURL is the file uploaded for a submission that could not be attached.
	OrphanedURL string
}

func (e *ConflictError) Error() string {
	return e.Message
}

func newLockedError(rec Record) *ConflictError {
	return &ConflictError{
		RecordID: rec.ID,
		Status:   rec.Status,
		Message:  "document is " + rec.Status.Describe() + "; wait for the reviewer's decision",
	}
}

func newStaleError(recordID string, expected, actual Status) *ConflictError {
	return &ConflictError{
		RecordID: recordID,
		Status:   actual,
		Message: fmt.Sprintf(
			"document changed from %s to %s (%s) in the meantime; refresh and retry",
			expected, actual, actual.Describe(),
		),
	}
}

// NewStaleError is returned by stores when a conditional status update finds another status.
func NewStaleError(recordID string, expected, actual Status) error {
	return newStaleError(recordID, expected, actual)
}

// InvalidStateError reports an action that is not defined from the record's status.
type InvalidStateError struct {
	Action Action
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s a document that is %s", e.Action.verb(), e.Status)
}

// UploadError wraps a failure of the Uploader, including cancellation.
// File is the caller's original selection so the submission can be retried as is.
type UploadError struct {
	File File
	Err  error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("uploading %q: %v", e.File.Name, e.Err)
}

func (e *UploadError) Unwrap() error { return e.Err }

// IsConflict reports whether err is a ConflictError or an InvalidStateError.
func IsConflict(err error) bool {
	var cErr *ConflictError
	var sErr *InvalidStateError
	return errors.As(err, &cErr) || errors.As(err, &sErr)
}

func IsUploadError(err error) bool {
	var uErr *UploadError
	return errors.As(err, &uErr)
}

func IsNotFound(err error) bool {
	cause := errors.Cause(err)
	return cause == ErrNotFound || cause == ErrSlotNotFound
}
