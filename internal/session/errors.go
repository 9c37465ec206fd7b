package session

import (
	"errors"
	"fmt"

	"github.com/ravnholt/voxnote/internal/models"
)

// CaptureError classifies why a session failed to start or run, so the
// UI can distinguish a missing permission from broken hardware or a dead
// network link.
type CaptureError struct {
	Kind models.RecordingErrorKind
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}

// NewCaptureError wraps err with a taxonomy kind.
func NewCaptureError(kind models.RecordingErrorKind, err error) *CaptureError {
	return &CaptureError{Kind: kind, Err: err}
}

// Classify extracts the error kind, defaulting to hardware for
// unclassified capture failures.
func Classify(err error, fallback models.RecordingErrorKind) models.RecordingErrorKind {
	var ce *CaptureError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return fallback
}
