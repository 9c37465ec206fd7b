package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrRecordingActive = errors.New("a recording is already active")
	ErrNoActiveSession = errors.New("no active recording session")
	ErrQuotaExceeded   = errors.New("daily quota exceeded")
	ErrPipelineActive  = errors.New("a pipeline run is already active for this note")
	ErrEmptyTranscript = errors.New("transcript is empty")
	ErrNoteTrashed     = errors.New("note is trashed")
)
