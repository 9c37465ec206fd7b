// Package provider defines the external collaborator interfaces the
// capture pipeline consumes: speech-to-text, generative refinement, sync,
// tagging, and quota. Implementations live outside this module; tests use
// fakes.
package provider

import "context"

// TranscriptKind identifies whether a stream event is partial or final text.
type TranscriptKind string

const (
	TranscriptPartial TranscriptKind = "partial"
	TranscriptFinal   TranscriptKind = "final"
)

// TranscriptEvent is incremental transcription output from a provider.
type TranscriptEvent struct {
	Kind TranscriptKind
	Text string
}

// Stream is an active streaming transcription session. Events is closed
// by the provider once the stream has drained after CloseSend, which is
// the completion signal callers block on.
type Stream interface {
	SendAudio(chunk []byte) error
	CloseSend() error
	Events() <-chan TranscriptEvent
	Close() error
}

// Transcriber converts speech to text, either from a finished audio file
// or as a live stream during recording.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
	StartStream(ctx context.Context) (Stream, error)
}

// Generator performs a single generative call. The system instruction
// constrains the model; refinement instructions require preserving the
// transcript's language and not inventing content.
type Generator interface {
	Generate(ctx context.Context, prompt, systemInstruction string) (string, error)
}

// Syncer pushes local changes to the remote on demand. Fire-and-forget:
// the pipeline never inspects the result.
type Syncer interface {
	SyncIfNeeded(ctx context.Context, reason string)
}

// Tagger proposes tags for a newly populated note. Errors are logged and
// ignored by callers; tagging never blocks the pipeline.
type Tagger interface {
	SuggestTags(ctx context.Context, noteID, content string) ([]string, error)
}

// Quota gates features on the user's daily allowance.
type Quota interface {
	CheckDailyQuota(ctx context.Context, feature string) (bool, error)
}
