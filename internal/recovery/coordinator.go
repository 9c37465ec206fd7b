// Package recovery detects staged recordings that belong to no live
// session — the process died mid-recording or mid-pipeline — and drives
// user resolution: recover into a note, or discard.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ravnholt/voxnote/internal/apperr"
	"github.com/ravnholt/voxnote/internal/models"
	"github.com/ravnholt/voxnote/internal/notestore"
	"github.com/ravnholt/voxnote/internal/provider"
	"github.com/ravnholt/voxnote/internal/registry"
	"github.com/ravnholt/voxnote/internal/staging"
)

// DefaultScanInterval is the minimum time between staging scans; repeated
// triggers inside the window are served from the last result.
const DefaultScanInterval = 30 * time.Second

// SessionGuard reports live capture state so an active recording is never
// mistaken for an orphan.
type SessionGuard interface {
	Recording() bool
	ActivePaths() map[string]struct{}
}

// PipelineRunner feeds a recovered transcript through the refinement
// pipeline. Implemented by the orchestrator.
type PipelineRunner interface {
	ProcessTranscript(ctx context.Context, noteID, raw string) error
}

// Coordinator owns the recovery flow.
type Coordinator struct {
	store       *staging.Store
	notes       notestore.NoteStore
	reg         *registry.Registry
	transcriber provider.Transcriber
	runner      PipelineRunner
	guard       SessionGuard
	logger      *slog.Logger
	ownerID     string
	minInterval time.Duration
	maxAge      time.Duration

	mu         sync.Mutex
	lastScan   time.Time
	lastResult []models.PendingRecordingSnapshot
}

// New creates a Coordinator. minInterval <= 0 selects the default scan
// throttle; maxAge <= 0 selects the staging store default.
func New(
	store *staging.Store,
	notes notestore.NoteStore,
	reg *registry.Registry,
	transcriber provider.Transcriber,
	runner PipelineRunner,
	guard SessionGuard,
	logger *slog.Logger,
	ownerID string,
	minInterval, maxAge time.Duration,
) *Coordinator {
	if minInterval <= 0 {
		minInterval = DefaultScanInterval
	}
	return &Coordinator{
		store:       store,
		notes:       notes,
		reg:         reg,
		transcriber: transcriber,
		runner:      runner,
		guard:       guard,
		logger:      logger,
		ownerID:     ownerID,
		minInterval: minInterval,
		maxAge:      maxAge,
	}
}

// Scan returns the pending recordings awaiting user resolution. Scans
// are rate limited; callers inside the throttle window get the previous
// result. A scan never runs while a recording is live.
func (c *Coordinator) Scan(ctx context.Context) ([]models.PendingRecordingSnapshot, error) {
	c.mu.Lock()
	if time.Since(c.lastScan) < c.minInterval {
		cached := c.lastResult
		c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	if c.guard.Recording() {
		return nil, nil
	}

	c.store.CleanupOld(c.maxAge)

	pending, err := c.pending()
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.lastScan = time.Now()
	c.lastResult = pending
	c.mu.Unlock()

	if len(pending) > 0 {
		c.logger.Info("recovery: pending recordings found", slog.Int("count", len(pending)))
	}
	return pending, nil
}

// pending lists orphans, excluding live session paths. The store already
// filters these; the second pass double-checks against a session that
// started between the two calls.
func (c *Coordinator) pending() ([]models.PendingRecordingSnapshot, error) {
	active := c.guard.ActivePaths()
	snaps, err := c.store.Pending(active)
	if err != nil {
		return nil, fmt.Errorf("recovery: scan staging: %w", err)
	}
	out := snaps[:0]
	for _, s := range snaps {
		if _, live := active[s.Path]; live {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Recover turns an orphaned recording into a note: draft, transcription,
// refinement, and release of the staged file. On transcription failure
// the audio is discarded — recovery follows an already-degraded state and
// has no retry path — and the note is left in the failed stage.
func (c *Coordinator) Recover(ctx context.Context, recordingID string) (string, error) {
	snap, err := c.find(recordingID)
	if err != nil {
		return "", err
	}

	noteID, err := c.createDraft()
	if err != nil {
		return "", err
	}
	c.reg.Set(noteID, models.Processing(models.PhaseTranscribing))

	text, err := c.transcriber.Transcribe(ctx, snap.Path)
	if err != nil {
		c.logger.Warn("recovery: transcription failed, discarding audio",
			slog.String("recording_id", recordingID),
			slog.String("error", err.Error()))
		_ = c.store.Cancel(snap.Path)
		c.reg.Set(noteID, models.Failed())
		c.invalidate()
		return noteID, fmt.Errorf("recovery: transcribe: %w", err)
	}

	if err := c.runner.ProcessTranscript(ctx, noteID, text); err != nil {
		// An empty transcript leaves nothing worth keeping.
		if errors.Is(err, apperr.ErrEmptyTranscript) {
			_ = c.store.Cancel(snap.Path)
			c.invalidate()
			return "", err
		}
		return noteID, err
	}

	if err := c.store.Complete(snap.Path); err != nil {
		c.logger.Warn("recovery: release staged file failed", slog.String("error", err.Error()))
	}
	c.invalidate()
	c.logger.Info("recovery: recording recovered",
		slog.String("recording_id", recordingID),
		slog.String("note_id", noteID))
	return noteID, nil
}

// Discard deletes an orphaned recording without creating a note.
func (c *Coordinator) Discard(recordingID string) error {
	snap, err := c.find(recordingID)
	if err != nil {
		return err
	}
	if err := c.store.Cancel(snap.Path); err != nil {
		return err
	}
	c.invalidate()
	c.logger.Info("recovery: recording discarded", slog.String("recording_id", recordingID))
	return nil
}

// createDraft persists a fresh empty note. Recovery always creates a new
// note; it never resurrects a trashed one.
func (c *Coordinator) createDraft() (string, error) {
	now := time.Now().UTC()
	note := models.Note{
		ID:        uuid.NewString(),
		OwnerID:   c.ownerID,
		Lifecycle: models.LifecycleActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.notes.Create(note); err != nil {
		return "", fmt.Errorf("recovery: create draft: %w", err)
	}
	return note.ID, nil
}

// find locates a pending recording by ID with a fresh (unthrottled) scan.
func (c *Coordinator) find(recordingID string) (models.PendingRecordingSnapshot, error) {
	snaps, err := c.pending()
	if err != nil {
		return models.PendingRecordingSnapshot{}, err
	}
	for _, s := range snaps {
		if s.ID == recordingID {
			return s, nil
		}
	}
	return models.PendingRecordingSnapshot{}, apperr.ErrNotFound
}

// invalidate forces the next Scan to hit the filesystem.
func (c *Coordinator) invalidate() {
	c.mu.Lock()
	c.lastScan = time.Time{}
	c.lastResult = nil
	c.mu.Unlock()
}
