package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrUploadNotFound is returned when an upload identifier is not registered.
	ErrUploadNotFound = errors.New("upload not found")

	// ErrTaskNotFound is returned when a sync task identifier is unknown.
	ErrTaskNotFound = errors.New("sync task not found")

	// ErrProcessingConflict is returned when an operation cannot proceed because
	// the upload's combine pipeline is currently running.
	ErrProcessingConflict = errors.New("upload is currently being processed")
)

// MissingChunkError reports a chunk file that was expected but not present on
// disk when the combine pipeline started.
type MissingChunkError struct {
	UploadID string
	Index    int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("missing chunk %d for upload %s", e.Index, e.UploadID)
}

// ValidationError reports a malformed or incomplete request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// PipelineError wraps a failure inside the combine-and-relay pipeline so
// callers can distinguish it from request-level errors.
type PipelineError struct {
	UploadID string
	Err      error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed for upload %s: %v", e.UploadID, e.Err)
}

func (e *PipelineError) Unwrap() error {
	return e.Err
}
