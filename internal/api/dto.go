package api

import (
	"time"

	"github.com/ravnholt/voxnote/internal/models"
)

// StopRecordingRequest selects how the current recording ends.
type StopRecordingRequest struct {
	Reason models.StopReason `json:"reason"`
}

// UpdateNoteRequest is the request body for replacing note content.
type UpdateNoteRequest struct {
	Content string `json:"content"`
}

// RecordingResponse is returned when a recording starts.
type RecordingResponse struct {
	RecordingID string `json:"recording_id"`
}

// StopResponse is returned when a recording stops. NoteID is empty for
// cancelled recordings and empty transcripts.
type StopResponse struct {
	NoteID string `json:"note_id,omitempty"`
}

// StateResponse reports the current session state.
type StateResponse struct {
	State models.RecordingState `json:"state"`
}

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []models.NoteMetadata `json:"notes"`
	Total int                   `json:"total"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []models.NoteMetadata `json:"results"`
}

// PendingResponse wraps the orphaned-recording list shown by the
// recovery prompt.
type PendingResponse struct {
	Pending []PendingItem `json:"pending"`
}

// PendingItem is one orphaned recording awaiting user resolution.
type PendingItem struct {
	ID              string    `json:"id"`
	DurationSeconds float64   `json:"duration_seconds"`
	NoteID          string    `json:"note_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// ProcessingResponse is the full registry snapshot.
type ProcessingResponse struct {
	Stages map[string]models.ProcessingStage `json:"stages"`
}
