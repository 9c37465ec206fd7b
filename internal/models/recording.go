package models

import "time"

// RecordingState models the lifecycle of a single recording session.
type RecordingState string

const (
	RecordingIdle       RecordingState = "idle"
	RecordingActive     RecordingState = "recording"
	RecordingProcessing RecordingState = "processing"
	RecordingError      RecordingState = "error"
)

// RecordingErrorKind classifies why a session failed to start or run.
type RecordingErrorKind string

const (
	ErrorKindPermission RecordingErrorKind = "permission"
	ErrorKindHardware   RecordingErrorKind = "hardware"
	ErrorKindNetwork    RecordingErrorKind = "network"
	ErrorKindStorage    RecordingErrorKind = "storage"
)

// StopReason tells Stop whether the user kept or discarded the recording.
type StopReason string

const (
	StopConfirmed StopReason = "confirmed"
	StopCancelled StopReason = "cancelled"
)

// StagedRecording is one audio capture at rest in the staging directory.
// The staging store owns the backing file exclusively; everything else
// refers to it by ID or path only.
type StagedRecording struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	NoteID    string    `json:"note_id,omitempty"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// PendingRecordingSnapshot is a read-only projection of a staged recording
// whose owning session is no longer alive. It is what the recovery flow
// shows the user; it does not own the file.
type PendingRecordingSnapshot struct {
	ID        string        `json:"id"`
	Path      string        `json:"path"`
	NoteID    string        `json:"note_id,omitempty"`
	Duration  time.Duration `json:"duration"`
	CreatedAt time.Time     `json:"created_at"`
}
