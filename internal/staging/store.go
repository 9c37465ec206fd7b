// Package staging manages the on-disk staging area for in-progress and
// orphaned audio recordings. The Store is the sole owner of the staging
// directory; other components refer to staged files by ID or path only
// and never touch the files directly.
package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ravnholt/voxnote/internal/models"
)

const (
	audioExt = ".raw"
	metaExt  = ".json"

	// 16 kHz, 16-bit, mono PCM. Duration estimates are derived from file
	// size; they only need to be good enough for the recovery prompt.
	bytesPerSecond = 32000

	// DefaultMaxAge is how long an unclaimed staged recording survives
	// before cleanup assumes it is abandoned junk.
	DefaultMaxAge = 24 * time.Hour
)

// meta is the sidecar record written next to each audio file. It is
// written before the audio file so a crash between the two leaves a
// recoverable pair, never an anonymous blob.
type meta struct {
	ID        string    `json:"id"`
	NoteID    string    `json:"note_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Store owns the staging directory.
type Store struct {
	root   string // absolute path to the staging directory
	logger *slog.Logger
}

// NewStore creates a Store rooted at the given directory. The directory
// must already exist.
func NewStore(root string, logger *slog.Logger) (*Store, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("staging: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("staging: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("staging: root is not a directory: %s", abs)
	}
	return &Store{root: abs, logger: logger}, nil
}

// Root returns the absolute staging directory path.
func (s *Store) Root() string {
	return s.root
}

// contains rejects paths outside the staging root. Callers hand paths
// back to Complete/Cancel, so the guard keeps a confused caller from
// deleting arbitrary files.
func (s *Store) contains(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("staging: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, s.root+string(os.PathSeparator)) {
		return "", fmt.Errorf("staging: path escapes staging root: %s", path)
	}
	return abs, nil
}

// Create allocates a fresh staged recording: sidecar metadata first, then
// an exclusive audio file the session appends captured audio to. A create
// failure is fatal to the calling session start.
func (s *Store) Create() (models.StagedRecording, *os.File, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	if err := s.writeMeta(meta{ID: id, CreatedAt: now}); err != nil {
		return models.StagedRecording{}, nil, err
	}

	audioPath := filepath.Join(s.root, id+audioExt)
	f, err := os.OpenFile(audioPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		s.removeQuietly(s.metaPath(id))
		return models.StagedRecording{}, nil, fmt.Errorf("staging: create audio file: %w", err)
	}

	return models.StagedRecording{
		ID:        id,
		Path:      audioPath,
		CreatedAt: now,
	}, f, nil
}

// LinkNote records which note a staged recording feeds, so the recovery
// prompt can show it. Best effort: a failure here never fails the pipeline.
func (s *Store) LinkNote(id, noteID string) {
	m, err := s.readMeta(s.metaPath(id))
	if err != nil {
		s.logger.Warn("staging: link note: read meta failed",
			slog.String("id", id), slog.String("error", err.Error()))
		return
	}
	m.NoteID = noteID
	if err := s.writeMeta(m); err != nil {
		s.logger.Warn("staging: link note: write meta failed",
			slog.String("id", id), slog.String("error", err.Error()))
	}
}

// Complete marks a staged file as consumed and deletes it. Idempotent:
// completing twice, or completing a file that is already gone, is a no-op.
func (s *Store) Complete(audioPath string) error {
	abs, err := s.contains(audioPath)
	if err != nil {
		return err
	}
	s.removePair(abs)
	return nil
}

// Cancel deletes a staged file unconditionally. Used for user-cancelled
// and failed sessions; delete errors are swallowed and logged.
func (s *Store) Cancel(audioPath string) error {
	abs, err := s.contains(audioPath)
	if err != nil {
		return err
	}
	s.removePair(abs)
	return nil
}

// Pending enumerates staged recordings not owned by a live session.
// activePaths holds the audio paths of every live session so an active
// recording is never misread as a crash artifact.
func (s *Store) Pending(activePaths map[string]struct{}) ([]models.PendingRecordingSnapshot, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("staging: read dir: %w", err)
	}

	var out []models.PendingRecordingSnapshot
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), audioExt) {
			continue
		}
		audioPath := filepath.Join(s.root, e.Name())
		if _, live := activePaths[audioPath]; live {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		snap := models.PendingRecordingSnapshot{
			ID:        strings.TrimSuffix(e.Name(), audioExt),
			Path:      audioPath,
			Duration:  time.Duration(info.Size()/bytesPerSecond) * time.Second,
			CreatedAt: info.ModTime(),
		}
		if m, err := s.readMeta(s.metaPath(snap.ID)); err == nil {
			snap.NoteID = m.NoteID
			snap.CreatedAt = m.CreatedAt
		}
		out = append(out, snap)
	}
	return out, nil
}

// CleanupOld deletes staged files older than maxAge. These are assumed
// abandoned; failures are logged and skipped.
func (s *Store) CleanupOld(maxAge time.Duration) {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	cutoff := time.Now().Add(-maxAge)

	entries, err := os.ReadDir(s.root)
	if err != nil {
		s.logger.Warn("staging: cleanup: read dir failed", slog.String("error", err.Error()))
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), audioExt) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		audioPath := filepath.Join(s.root, e.Name())
		s.logger.Info("staging: removing expired recording",
			slog.String("path", audioPath),
			slog.Time("modified", info.ModTime()))
		s.removePair(audioPath)
	}
}

func (s *Store) metaPath(id string) string {
	return filepath.Join(s.root, id+metaExt)
}

// writeMeta writes the sidecar atomically: tmp file, fsync, rename.
func (s *Store) writeMeta(m meta) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("staging: marshal meta: %w", err)
	}
	tmp, err := os.CreateTemp(s.root, ".voxnote-tmp-*")
	if err != nil {
		return fmt.Errorf("staging: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("staging: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("staging: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("staging: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.metaPath(m.ID)); err != nil {
		return fmt.Errorf("staging: rename: %w", err)
	}
	success = true
	return nil
}

func (s *Store) readMeta(path string) (meta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return meta{}, err
	}
	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		return meta{}, err
	}
	return m, nil
}

// removePair deletes an audio file and its sidecar, best effort.
func (s *Store) removePair(audioPath string) {
	s.removeQuietly(audioPath)
	id := strings.TrimSuffix(filepath.Base(audioPath), audioExt)
	s.removeQuietly(s.metaPath(id))
}

func (s *Store) removeQuietly(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("staging: remove failed",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}
