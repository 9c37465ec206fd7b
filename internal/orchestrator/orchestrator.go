// Package orchestrator glues the capture pipeline together: it starts
// recording sessions, persists draft notes the moment a recording is
// confirmed, tracks progress in the processing registry, runs transcript
// refinement, and fires the sync and tagging collaborators.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ravnholt/voxnote/internal/apperr"
	"github.com/ravnholt/voxnote/internal/models"
	"github.com/ravnholt/voxnote/internal/notestore"
	"github.com/ravnholt/voxnote/internal/provider"
	"github.com/ravnholt/voxnote/internal/refine"
	"github.com/ravnholt/voxnote/internal/registry"
	"github.com/ravnholt/voxnote/internal/session"
	"github.com/ravnholt/voxnote/internal/staging"
)

// QuotaFeatureVoiceCapture is the quota feature consulted before a
// recording may start.
const QuotaFeatureVoiceCapture = "voice_capture"

const limitPollInterval = time.Second

// Config carries the tunables the orchestrator needs.
type Config struct {
	// OwnerID is stamped on every note this process creates.
	OwnerID string
	// RecordingLimit is the tier-dependent recording ceiling; zero means
	// unlimited.
	RecordingLimit time.Duration
	// UndoGrace is how long a completed stage lingers in the registry so
	// the UI can offer undo-to-raw.
	UndoGrace time.Duration
}

// Orchestrator coordinates one capture pipeline run per note.
type Orchestrator struct {
	recorder *session.Recorder
	store    *staging.Store
	notes    notestore.NoteStore
	reg      *registry.Registry
	pipeline *refine.Pipeline
	syncer   provider.Syncer
	tagger   provider.Tagger
	quota    provider.Quota
	logger   *slog.Logger
	cfg      Config

	mu      sync.Mutex
	current *session.Session
	// inflight is the per-note single-flight guard: at most one active
	// pipeline run per note identifier.
	inflight map[string]struct{}
}

// New creates an Orchestrator.
func New(
	recorder *session.Recorder,
	store *staging.Store,
	notes notestore.NoteStore,
	reg *registry.Registry,
	pipeline *refine.Pipeline,
	syncer provider.Syncer,
	tagger provider.Tagger,
	quota provider.Quota,
	logger *slog.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.UndoGrace <= 0 {
		cfg.UndoGrace = 15 * time.Second
	}
	return &Orchestrator{
		recorder: recorder,
		store:    store,
		notes:    notes,
		reg:      reg,
		pipeline: pipeline,
		syncer:   syncer,
		tagger:   tagger,
		quota:    quota,
		logger:   logger,
		cfg:      cfg,
		inflight: make(map[string]struct{}),
	}
}

// StartRecording checks quota and begins a new session. It returns the
// staged recording ID. A goroutine enforces the cooperative recording
// ceiling by forcing a confirmed stop once exceeded.
func (o *Orchestrator) StartRecording(ctx context.Context) (string, error) {
	ok, err := o.quota.CheckDailyQuota(ctx, QuotaFeatureVoiceCapture)
	if err != nil {
		return "", fmt.Errorf("orchestrator: quota check: %w", err)
	}
	if !ok {
		return "", apperr.ErrQuotaExceeded
	}

	s, err := o.recorder.Start(ctx, o.cfg.RecordingLimit)
	if err != nil {
		return "", err
	}

	o.mu.Lock()
	if o.current != nil && !o.current.Done() {
		// The recorder holds the single-session invariant, so a live
		// tracked session here means this start lost a race. Never
		// overwrite it: that would orphan a capturing session.
		o.mu.Unlock()
		if _, stopErr := s.Stop(ctx, models.StopCancelled); stopErr != nil {
			o.logger.Warn("orchestrator: discarding raced session failed",
				slog.String("error", stopErr.Error()))
		}
		return "", apperr.ErrRecordingActive
	}
	o.current = s
	o.mu.Unlock()

	if o.cfg.RecordingLimit > 0 {
		go o.watchLimit(s)
	}
	return s.ID(), nil
}

// watchLimit polls the session's elapsed time and forces a confirmed stop
// when the ceiling is exceeded. Partial content is kept.
func (o *Orchestrator) watchLimit(s *session.Session) {
	ticker := time.NewTicker(limitPollInterval)
	defer ticker.Stop()
	for range ticker.C {
		if s.State() != models.RecordingActive {
			return
		}
		if s.OverLimit() {
			o.logger.Info("orchestrator: recording limit reached, forcing stop",
				slog.String("recording_id", s.ID()))
			if _, err := o.StopRecording(context.Background(), models.StopConfirmed); err != nil &&
				!errors.Is(err, apperr.ErrNoActiveSession) {
				o.logger.Warn("orchestrator: forced stop failed", slog.String("error", err.Error()))
			}
			return
		}
	}
}

// RecordingState reports the current session state for UI polling.
func (o *Orchestrator) RecordingState() models.RecordingState {
	o.mu.Lock()
	s := o.current
	o.mu.Unlock()
	if s == nil {
		return models.RecordingIdle
	}
	return s.State()
}

// ActivePaths exposes the live session paths for the recovery scan.
func (o *Orchestrator) ActivePaths() map[string]struct{} {
	return o.recorder.ActivePaths()
}

// Recording reports whether a session is actively capturing.
func (o *Orchestrator) Recording() bool {
	return o.recorder.Recording()
}

// StopRecording ends the current session. On StopConfirmed a draft note
// is persisted immediately (navigate-first) and the refinement pipeline
// runs; the new note's ID is returned. On StopCancelled, or when the
// transcript is empty, no note is created and the empty string is
// returned.
func (o *Orchestrator) StopRecording(ctx context.Context, reason models.StopReason) (string, error) {
	// Claim the session so concurrent stops cannot double-finalize.
	o.mu.Lock()
	s := o.current
	o.current = nil
	o.mu.Unlock()
	if s == nil {
		return "", apperr.ErrNoActiveSession
	}

	raw, err := s.Stop(ctx, reason)
	if err != nil {
		return "", err
	}
	if reason == models.StopCancelled {
		return "", nil
	}

	if strings.TrimSpace(raw) == "" {
		// Nothing to save: no note, no registry entry, audio consumed.
		s.Complete()
		o.logger.Info("orchestrator: empty transcript, nothing to save",
			slog.String("recording_id", s.ID()))
		return "", nil
	}

	noteID, err := o.createDraft(s.ID())
	if err != nil {
		s.Fail("could not save note")
		return "", err
	}

	o.reg.Set(noteID, models.Processing(models.PhaseTranscribing))
	if err := o.ProcessTranscript(ctx, noteID, raw); err != nil {
		return noteID, err
	}
	s.Complete()
	return noteID, nil
}

// createDraft persists an empty note so it is navigable before any
// content exists, and links the staged recording to it.
func (o *Orchestrator) createDraft(recordingID string) (string, error) {
	now := time.Now().UTC()
	note := models.Note{
		ID:        uuid.NewString(),
		OwnerID:   o.cfg.OwnerID,
		Lifecycle: models.LifecycleActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.notes.Create(note); err != nil {
		return "", fmt.Errorf("orchestrator: create draft: %w", err)
	}
	o.store.LinkNote(recordingID, note.ID)
	o.logger.Info("orchestrator: draft note created",
		slog.String("note_id", note.ID),
		slog.String("recording_id", recordingID))
	return note.ID, nil
}

// ProcessTranscript runs the refinement pipeline for one note and saves
// the result. The caller must already have registered the note at the
// transcribing phase. At most one run per note may be active; concurrent
// calls for the same note are rejected with apperr.ErrPipelineActive.
func (o *Orchestrator) ProcessTranscript(ctx context.Context, noteID, raw string) error {
	o.mu.Lock()
	if _, active := o.inflight[noteID]; active {
		o.mu.Unlock()
		return apperr.ErrPipelineActive
	}
	o.inflight[noteID] = struct{}{}
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.inflight, noteID)
		o.mu.Unlock()
	}()

	o.reg.Set(noteID, models.Processing(models.PhaseRefining))

	res, err := o.pipeline.Refine(ctx, raw)
	if err != nil {
		// Only empty transcripts error out; the draft has nothing to hold.
		o.reg.Remove(noteID)
		if derr := o.notes.Delete(noteID); derr != nil && !errors.Is(derr, apperr.ErrNotFound) {
			o.logger.Warn("orchestrator: discard empty draft failed",
				slog.String("note_id", noteID), slog.String("error", derr.Error()))
		}
		return err
	}

	if err := o.notes.UpdateContent(noteID, res.Final); err != nil {
		o.reg.Set(noteID, models.Failed())
		return fmt.Errorf("orchestrator: save content: %w", err)
	}

	if res.Failed {
		o.reg.Set(noteID, models.Failed())
	} else {
		o.reg.Set(noteID, models.Completed(res.Raw))
		o.scheduleStageRemoval(noteID)
	}

	go o.syncer.SyncIfNeeded(context.WithoutCancel(ctx), "note content updated")
	go o.suggestTags(context.WithoutCancel(ctx), noteID, res.Final)

	o.logger.Info("orchestrator: pipeline finished",
		slog.String("note_id", noteID),
		slog.Bool("refined", res.Refined),
		slog.Bool("degraded", res.Failed))
	return nil
}

// scheduleStageRemoval drops a completed stage after the undo grace
// period, unless something replaced it in the meantime.
func (o *Orchestrator) scheduleStageRemoval(noteID string) {
	time.AfterFunc(o.cfg.UndoGrace, func() {
		if stage, ok := o.reg.Get(noteID); ok && stage.Kind == models.StageCompleted {
			o.reg.Remove(noteID)
		}
	})
}

// suggestTags asks the tagging collaborator for tags once per newly
// populated note. Failures are logged and ignored.
func (o *Orchestrator) suggestTags(ctx context.Context, noteID, content string) {
	tags, err := o.tagger.SuggestTags(ctx, noteID, content)
	if err != nil {
		o.logger.Warn("orchestrator: tag suggestion failed",
			slog.String("note_id", noteID), slog.String("error", err.Error()))
		return
	}
	if len(tags) == 0 {
		return
	}
	if err := o.notes.SetTags(noteID, tags); err != nil {
		o.logger.Warn("orchestrator: save tags failed",
			slog.String("note_id", noteID), slog.String("error", err.Error()))
	}
}

// UndoRefinement swaps a note's content back to the raw transcript. Only
// valid while the completed stage is still within its undo grace window;
// the entry is removed afterwards, making undo one-shot.
func (o *Orchestrator) UndoRefinement(noteID string) error {
	stage, ok := o.reg.Get(noteID)
	if !ok || stage.Kind != models.StageCompleted {
		return apperr.ErrNotFound
	}
	if err := o.notes.UpdateContent(noteID, stage.Raw); err != nil {
		return err
	}
	o.reg.Remove(noteID)
	go o.syncer.SyncIfNeeded(context.Background(), "refinement undone")
	return nil
}

// AcknowledgeFailure clears a failed stage once the UI has shown it.
func (o *Orchestrator) AcknowledgeFailure(noteID string) error {
	stage, ok := o.reg.Get(noteID)
	if !ok || stage.Kind != models.StageFailed {
		return apperr.ErrNotFound
	}
	o.reg.Remove(noteID)
	return nil
}
