// Package session drives a single microphone recording from start to a
// terminal state: audio is staged to disk while a streaming transcription
// runs, and stopping yields the raw transcript.
package session

import (
	"context"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/ravnholt/voxnote/internal/apperr"
	"github.com/ravnholt/voxnote/internal/models"
	"github.com/ravnholt/voxnote/internal/provider"
	"github.com/ravnholt/voxnote/internal/staging"
)

// AudioSource is a live microphone capture stream. Read returns PCM
// chunks until Stop is called, after which it returns io.EOF.
type AudioSource interface {
	io.Reader
	Stop() error
}

// AudioCapture opens microphone capture sessions. Implementations should
// return a *CaptureError so start failures carry a taxonomy kind.
type AudioCapture interface {
	Start(ctx context.Context) (AudioSource, error)
}

const chunkSize = 4096

// Recorder owns the at-most-one-active-recording invariant for the
// process and creates sessions.
type Recorder struct {
	capture     AudioCapture
	transcriber provider.Transcriber
	store       *staging.Store
	logger      *slog.Logger

	mu      sync.Mutex
	current *Session
	// starting reserves the recording slot between the availability check
	// and the session going live, so concurrent Starts cannot both pass.
	starting bool
}

// NewRecorder creates a Recorder.
func NewRecorder(capture AudioCapture, transcriber provider.Transcriber, store *staging.Store, logger *slog.Logger) *Recorder {
	return &Recorder{
		capture:     capture,
		transcriber: transcriber,
		store:       store,
		logger:      logger,
	}
}

// Start begins a new recording session. limit is the caller-supplied
// recording ceiling (tier dependent); enforcement is cooperative via
// Session.OverLimit. Starting while another session is recording is
// rejected with apperr.ErrRecordingActive.
func (r *Recorder) Start(ctx context.Context, limit time.Duration) (*Session, error) {
	// Reserve the slot before the slow setup work; a second Start racing
	// through here must lose immediately, not after it has opened capture.
	r.mu.Lock()
	if r.starting || (r.current != nil && !r.current.Done()) {
		r.mu.Unlock()
		return nil, apperr.ErrRecordingActive
	}
	r.starting = true
	r.mu.Unlock()

	rec, file, err := r.store.Create()
	if err != nil {
		r.abortStart()
		return nil, NewCaptureError(models.ErrorKindStorage, err)
	}

	sessionCtx, cancel := context.WithCancel(ctx)

	source, err := r.capture.Start(sessionCtx)
	if err != nil {
		cancel()
		file.Close()
		_ = r.store.Cancel(rec.Path)
		r.abortStart()
		return nil, NewCaptureError(Classify(err, models.ErrorKindHardware), err)
	}

	stream, err := r.transcriber.StartStream(sessionCtx)
	if err != nil {
		_ = source.Stop()
		cancel()
		file.Close()
		_ = r.store.Cancel(rec.Path)
		r.abortStart()
		return nil, NewCaptureError(Classify(err, models.ErrorKindNetwork), err)
	}

	s := &Session{
		rec:        rec,
		file:       file,
		source:     source,
		stream:     stream,
		store:      r.store,
		logger:     r.logger,
		cancel:     cancel,
		limit:      limit,
		startedAt:  time.Now(),
		state:      models.RecordingActive,
		agg:        &aggregator{},
		pumpDone:   make(chan struct{}),
		eventsDone: make(chan struct{}),
	}

	r.mu.Lock()
	r.current = s
	r.starting = false
	r.mu.Unlock()

	go s.pumpAudio()
	go s.consumeEvents()

	r.logger.Info("session: recording started",
		slog.String("recording_id", rec.ID),
		slog.Duration("limit", limit))
	return s, nil
}

// abortStart releases the reserved recording slot after a setup failure.
func (r *Recorder) abortStart() {
	r.mu.Lock()
	r.starting = false
	r.mu.Unlock()
}

// Recording reports whether a session is currently capturing audio.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current != nil && r.current.State() == models.RecordingActive
}

// ActivePaths returns the staged audio paths of every live session, used
// to keep the pending-recording scan from misreading an active recording
// as a crash artifact.
func (r *Recorder) ActivePaths() map[string]struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]struct{})
	if r.current != nil && !r.current.Done() {
		out[r.current.rec.Path] = struct{}{}
	}
	return out
}

// Session is one live recording. All mutating calls come from the single
// orchestrating goroutine; internal pump goroutines never touch
// observable state directly, they feed the aggregator and the staged file.
type Session struct {
	rec    models.StagedRecording
	file   *os.File
	source AudioSource
	stream provider.Stream
	store  *staging.Store
	logger *slog.Logger
	cancel context.CancelFunc

	limit     time.Duration
	startedAt time.Time

	stateMu   sync.Mutex
	state     models.RecordingState
	errReason string

	agg        *aggregator
	pumpDone   chan struct{}
	eventsDone chan struct{}

	completeOnce sync.Once
}

// ID returns the staged recording identifier.
func (s *Session) ID() string { return s.rec.ID }

// Path returns the staged audio file path.
func (s *Session) Path() string { return s.rec.Path }

// State returns the current session state.
func (s *Session) State() models.RecordingState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// ErrReason returns the human-readable reason for an error state.
func (s *Session) ErrReason() string {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.errReason
}

// Elapsed returns how long the session has been recording.
func (s *Session) Elapsed() time.Duration {
	return time.Since(s.startedAt)
}

// OverLimit reports whether the cooperative recording ceiling has been
// exceeded. The caller is expected to force Stop(StopConfirmed); partial
// content is kept.
func (s *Session) OverLimit() bool {
	return s.limit > 0 && s.Elapsed() > s.limit
}

// Stop ends the session. On StopConfirmed the audio file is finalized,
// the last transcript segment flushed, and the raw transcript returned.
// On StopCancelled the staged file is discarded and the transcript is
// empty.
func (s *Session) Stop(ctx context.Context, reason models.StopReason) (string, error) {
	s.setState(models.RecordingProcessing, "")

	if err := s.source.Stop(); err != nil {
		s.logger.Warn("session: audio source stop failed",
			slog.String("recording_id", s.rec.ID),
			slog.String("error", err.Error()))
	}

	// The pump drains to EOF and closes the staged file; only then is it
	// safe to close the provider's send side.
	select {
	case <-s.pumpDone:
	case <-ctx.Done():
		s.cancel()
		<-s.pumpDone
	}

	if reason == models.StopCancelled {
		s.cancel()
		_ = s.stream.Close()
		<-s.eventsDone
		if err := s.store.Cancel(s.rec.Path); err != nil {
			s.logger.Warn("session: cancel staged file failed",
				slog.String("error", err.Error()))
		}
		s.setState(models.RecordingIdle, "")
		s.logger.Info("session: recording cancelled", slog.String("recording_id", s.rec.ID))
		return "", nil
	}

	// CloseSend tells the provider no more audio is coming; the events
	// channel closing is the completion signal for the final segment.
	if err := s.stream.CloseSend(); err != nil {
		s.logger.Warn("session: close send failed", slog.String("error", err.Error()))
	}
	select {
	case <-s.eventsDone:
	case <-ctx.Done():
		_ = s.stream.Close()
		<-s.eventsDone
	}
	s.cancel()

	raw := s.agg.Raw()
	s.setState(models.RecordingIdle, "")
	s.logger.Info("session: recording finalized",
		slog.String("recording_id", s.rec.ID),
		slog.Duration("elapsed", s.Elapsed()),
		slog.Int("transcript_len", len(raw)))
	return raw, nil
}

// Complete releases the staged file after its content has been folded
// into a note. Safe to call at most the once the contract requires;
// additional calls are no-ops.
func (s *Session) Complete() {
	s.completeOnce.Do(func() {
		if err := s.store.Complete(s.rec.Path); err != nil {
			s.logger.Warn("session: complete staged file failed",
				slog.String("error", err.Error()))
		}
	})
}

// Fail moves the session into the error state with a reason.
func (s *Session) Fail(reason string) {
	s.setState(models.RecordingError, reason)
}

func (s *Session) setState(state models.RecordingState, reason string) {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	s.state = state
	s.errReason = reason
}

// Done reports whether the session has reached a terminal state.
func (s *Session) Done() bool {
	st := s.State()
	return st == models.RecordingIdle || st == models.RecordingError
}

// pumpAudio copies capture chunks into the staged file and the streaming
// transcriber until the source reports EOF.
func (s *Session) pumpAudio() {
	defer close(s.pumpDone)
	defer s.file.Close()

	buf := make([]byte, chunkSize)
	for {
		n, err := s.source.Read(buf)
		if n > 0 {
			if _, werr := s.file.Write(buf[:n]); werr != nil {
				s.logger.Error("session: staged write failed", slog.String("error", werr.Error()))
				return
			}
			if serr := s.stream.SendAudio(buf[:n]); serr != nil {
				s.logger.Warn("session: stream send failed", slog.String("error", serr.Error()))
			}
		}
		if err != nil {
			if err != io.EOF {
				s.logger.Warn("session: audio read failed", slog.String("error", err.Error()))
			}
			if serr := s.file.Sync(); serr != nil {
				s.logger.Warn("session: staged fsync failed", slog.String("error", serr.Error()))
			}
			return
		}
	}
}

func (s *Session) consumeEvents() {
	defer close(s.eventsDone)
	for ev := range s.stream.Events() {
		s.agg.Add(ev)
	}
}
