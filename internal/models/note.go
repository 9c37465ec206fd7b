// Package models defines the domain types for Voxnote.
package models

import "time"

// NoteLifecycle is the tri-state lifecycle of a note: active notes are
// visible, trashed notes are recoverable, purged notes are gone for good.
type NoteLifecycle string

const (
	LifecycleActive  NoteLifecycle = "active"
	LifecycleTrashed NoteLifecycle = "trashed"
	LifecyclePurged  NoteLifecycle = "purged"
)

// Note is a persisted note. Notes created by the capture pipeline start
// with empty content and are filled in once transcription completes, so
// they are navigable before any text exists.
type Note struct {
	ID        string        `json:"id"`
	OwnerID   string        `json:"owner_id"`
	Content   string        `json:"content"`
	Checksum  string        `json:"checksum"`
	Tags      []string      `json:"tags,omitempty"`
	Lifecycle NoteLifecycle `json:"lifecycle"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NoteMetadata is a lightweight representation returned by list operations.
type NoteMetadata struct {
	ID        string    `json:"id"`
	Preview   string    `json:"preview"`
	Checksum  string    `json:"checksum"`
	Tags      []string  `json:"tags,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}
