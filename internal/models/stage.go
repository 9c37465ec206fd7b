package models

// ProcessingPhase is the in-flight position of a note's capture pipeline.
type ProcessingPhase string

const (
	PhaseTranscribing ProcessingPhase = "transcribing"
	PhaseRefining     ProcessingPhase = "refining"
)

// StageKind discriminates ProcessingStage values.
type StageKind string

const (
	StageProcessing StageKind = "processing"
	StageCompleted  StageKind = "completed"
	StageFailed     StageKind = "failed"
)

// ProcessingStage is the registry value for one note. A completed stage
// retains the raw transcript for the undo-to-raw window; absence from the
// registry means idle.
type ProcessingStage struct {
	Kind  StageKind       `json:"kind"`
	Phase ProcessingPhase `json:"phase,omitempty"`
	// Raw holds the unrefined transcript on completed stages so the UI
	// can offer a one-shot undo.
	Raw string `json:"raw,omitempty"`
}

// Processing returns a stage in the given in-flight phase.
func Processing(phase ProcessingPhase) ProcessingStage {
	return ProcessingStage{Kind: StageProcessing, Phase: phase}
}

// Completed returns a terminal success stage retaining the raw transcript.
func Completed(raw string) ProcessingStage {
	return ProcessingStage{Kind: StageCompleted, Raw: raw}
}

// Failed returns a terminal failure stage.
func Failed() ProcessingStage {
	return ProcessingStage{Kind: StageFailed}
}

// Terminal reports whether the stage is completed or failed.
func (s ProcessingStage) Terminal() bool {
	return s.Kind == StageCompleted || s.Kind == StageFailed
}
