package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ravnholt/voxnote/internal/apperr"
	"github.com/ravnholt/voxnote/internal/models"
	"github.com/ravnholt/voxnote/internal/provider"
	"github.com/ravnholt/voxnote/internal/refine"
	"github.com/ravnholt/voxnote/internal/registry"
	"github.com/ravnholt/voxnote/internal/session"
	"github.com/ravnholt/voxnote/internal/staging"
)

// --- collaborator fakes ---

type memNotes struct {
	mu    sync.Mutex
	notes map[string]models.Note
}

func newMemNotes() *memNotes {
	return &memNotes{notes: make(map[string]models.Note)}
}

func (m *memNotes) Create(n models.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[n.ID]; ok {
		return apperr.ErrConflict
	}
	m.notes[n.ID] = n
	return nil
}

func (m *memNotes) Get(id string) (*models.Note, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &n, nil
}

func (m *memNotes) UpdateContent(id, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return apperr.ErrNotFound
	}
	n.Content = content
	m.notes[id] = n
	return nil
}

func (m *memNotes) SetTags(id string, tags []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notes[id]
	if !ok {
		return apperr.ErrNotFound
	}
	n.Tags = tags
	m.notes[id] = n
	return nil
}

func (m *memNotes) List(int, int, models.NoteLifecycle) ([]models.NoteMetadata, int, error) {
	return nil, 0, nil
}

func (m *memNotes) Search(string, int) ([]models.NoteMetadata, error) { return nil, nil }
func (m *memNotes) Trash(string) error                                { return nil }
func (m *memNotes) Restore(string) error                              { return nil }
func (m *memNotes) Purge(string) error                                { return nil }

func (m *memNotes) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.notes[id]; !ok {
		return apperr.ErrNotFound
	}
	delete(m.notes, id)
	return nil
}

func (m *memNotes) Close() error { return nil }

func (m *memNotes) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.notes)
}

type fakeQuota struct{ allowed bool }

func (f *fakeQuota) CheckDailyQuota(context.Context, string) (bool, error) { return f.allowed, nil }

type fakeSyncer struct{}

func (f *fakeSyncer) SyncIfNeeded(context.Context, string) {}

type fakeTagger struct{}

func (f *fakeTagger) SuggestTags(context.Context, string, string) ([]string, error) {
	return nil, nil
}

type fakeGenerator struct {
	mu    sync.Mutex
	out   string
	err   error
	block chan struct{}
}

func (f *fakeGenerator) Generate(ctx context.Context, _, _ string) (string, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out, f.err
}

// --- session fakes (capture + streaming transcriber) ---

type fakeSource struct {
	stopped chan struct{}
	once    sync.Once
}

func newFakeSource() *fakeSource { return &fakeSource{stopped: make(chan struct{})} }

func (f *fakeSource) Read(p []byte) (int, error) {
	<-f.stopped
	return 0, io.EOF
}

func (f *fakeSource) Stop() error {
	f.once.Do(func() { close(f.stopped) })
	return nil
}

type fakeCapture struct{}

func (f *fakeCapture) Start(context.Context) (session.AudioSource, error) {
	return newFakeSource(), nil
}

type fakeStream struct {
	events chan provider.TranscriptEvent
	once   sync.Once
}

func (f *fakeStream) SendAudio([]byte) error { return nil }
func (f *fakeStream) CloseSend() error {
	f.once.Do(func() { close(f.events) })
	return nil
}
func (f *fakeStream) Events() <-chan provider.TranscriptEvent { return f.events }
func (f *fakeStream) Close() error {
	f.once.Do(func() { close(f.events) })
	return nil
}

type fakeTranscriber struct {
	transcript string
}

func (f *fakeTranscriber) Transcribe(context.Context, string) (string, error) {
	return f.transcript, nil
}

func (f *fakeTranscriber) StartStream(context.Context) (provider.Stream, error) {
	ch := make(chan provider.TranscriptEvent, 1)
	if f.transcript != "" {
		ch <- provider.TranscriptEvent{Kind: provider.TranscriptFinal, Text: f.transcript}
	}
	return &fakeStream{events: ch}, nil
}

// --- fixture ---

type fixture struct {
	orch  *Orchestrator
	notes *memNotes
	reg   *registry.Registry
	store *staging.Store
	gen   *fakeGenerator
	quota *fakeQuota
}

func newFixture(t *testing.T, transcript string) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := staging.NewStore(t.TempDir(), logger)
	if err != nil {
		t.Fatal(err)
	}
	notes := newMemNotes()
	reg := registry.New()
	t.Cleanup(reg.Close)

	gen := &fakeGenerator{}
	quota := &fakeQuota{allowed: true}
	recorder := session.NewRecorder(&fakeCapture{}, &fakeTranscriber{transcript: transcript}, store, logger)
	pipeline := refine.New(gen, logger, time.Second)

	orch := New(recorder, store, notes, reg, pipeline,
		&fakeSyncer{}, &fakeTagger{}, quota, logger,
		Config{OwnerID: "user-1", UndoGrace: time.Hour})
	return &fixture{orch: orch, notes: notes, reg: reg, store: store, gen: gen, quota: quota}
}

func stagedCount(t *testing.T, store *staging.Store) int {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(store.Root(), "*.raw"))
	if err != nil {
		t.Fatal(err)
	}
	return len(matches)
}

// --- tests ---

func TestQuotaExhaustedBlocksStart(t *testing.T) {
	fx := newFixture(t, "hello")
	fx.quota.allowed = false
	if _, err := fx.orch.StartRecording(context.Background()); !errors.Is(err, apperr.ErrQuotaExceeded) {
		t.Errorf("got %v, want ErrQuotaExceeded", err)
	}
}

func TestConfirmedStopSavesVerbatimTranscript(t *testing.T) {
	fx := newFixture(t, "Buy milk, eggs.")

	if _, err := fx.orch.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	noteID, err := fx.orch.StopRecording(context.Background(), models.StopConfirmed)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if noteID == "" {
		t.Fatal("expected a note ID")
	}

	note, err := fx.notes.Get(noteID)
	if err != nil {
		t.Fatalf("Get note: %v", err)
	}
	// No structuring intent: final content equals the transcript verbatim.
	if note.Content != "Buy milk, eggs." {
		t.Errorf("content = %q", note.Content)
	}

	stage, ok := fx.reg.Get(noteID)
	if !ok || stage.Kind != models.StageCompleted {
		t.Errorf("stage = %+v, ok = %v, want completed", stage, ok)
	}
	if stage.Raw != "Buy milk, eggs." {
		t.Errorf("stage raw = %q", stage.Raw)
	}

	if stagedCount(t, fx.store) != 0 {
		t.Error("staged file should be released after the pipeline completes")
	}
}

func TestCancelledStopCreatesNothing(t *testing.T) {
	fx := newFixture(t, "secret thought")

	if _, err := fx.orch.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	noteID, err := fx.orch.StopRecording(context.Background(), models.StopCancelled)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if noteID != "" {
		t.Errorf("cancelled stop returned note ID %q", noteID)
	}
	if fx.notes.count() != 0 {
		t.Error("no note may be created on cancel")
	}
	if stagedCount(t, fx.store) != 0 {
		t.Error("staged file must be deleted on cancel")
	}
	if len(fx.reg.Snapshot()) != 0 {
		t.Error("registry must stay empty on cancel")
	}
}

func TestEmptyTranscriptDiscardsDraft(t *testing.T) {
	fx := newFixture(t, "")

	if _, err := fx.orch.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	noteID, err := fx.orch.StopRecording(context.Background(), models.StopConfirmed)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if noteID != "" {
		t.Errorf("empty transcript returned note ID %q", noteID)
	}
	if fx.notes.count() != 0 {
		t.Error("no note for empty transcript")
	}
	if len(fx.reg.Snapshot()) != 0 {
		t.Error("no registry entry for empty transcript")
	}
	if stagedCount(t, fx.store) != 0 {
		t.Error("staged file released even when nothing is saved")
	}
}

func TestStopWithoutActiveSession(t *testing.T) {
	fx := newFixture(t, "x")
	if _, err := fx.orch.StopRecording(context.Background(), models.StopConfirmed); !errors.Is(err, apperr.ErrNoActiveSession) {
		t.Errorf("got %v, want ErrNoActiveSession", err)
	}
}

func TestSecondRecordingRejectedWhileActive(t *testing.T) {
	fx := newFixture(t, "one")
	if _, err := fx.orch.StartRecording(context.Background()); err != nil {
		t.Fatalf("StartRecording: %v", err)
	}
	if _, err := fx.orch.StartRecording(context.Background()); !errors.Is(err, apperr.ErrRecordingActive) {
		t.Errorf("got %v, want ErrRecordingActive", err)
	}
	if _, err := fx.orch.StopRecording(context.Background(), models.StopCancelled); err != nil {
		t.Fatal(err)
	}
}

func TestPipelineSingleFlightPerNote(t *testing.T) {
	fx := newFixture(t, "")
	fx.gen.block = make(chan struct{})
	fx.gen.out = "REFINED"

	note := models.Note{ID: "n1", OwnerID: "user-1", Lifecycle: models.LifecycleActive}
	if err := fx.notes.Create(note); err != nil {
		t.Fatal(err)
	}
	fx.reg.Set("n1", models.Processing(models.PhaseTranscribing))

	firstDone := make(chan error, 1)
	go func() {
		firstDone <- fx.orch.ProcessTranscript(context.Background(), "n1",
			"draft an email to Ana about rent")
	}()

	// Wait until the first run holds the in-flight slot (refining phase).
	deadline := time.Now().Add(2 * time.Second)
	for {
		if stage, ok := fx.reg.Get("n1"); ok && stage.Phase == models.PhaseRefining {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first run never reached refining phase")
		}
		time.Sleep(5 * time.Millisecond)
	}

	err := fx.orch.ProcessTranscript(context.Background(), "n1", "draft an email again")
	if !errors.Is(err, apperr.ErrPipelineActive) {
		t.Errorf("concurrent run: got %v, want ErrPipelineActive", err)
	}

	close(fx.gen.block)
	if err := <-firstDone; err != nil {
		t.Fatalf("first run: %v", err)
	}
	stage, ok := fx.reg.Get("n1")
	if !ok || stage.Kind != models.StageCompleted {
		t.Errorf("stage = %+v, want completed", stage)
	}
}

func TestUndoRefinementIsOneShot(t *testing.T) {
	fx := newFixture(t, "draft an email to Ana saying thanks")
	fx.gen.out = "Subject: Thanks\n\nHi Ana, thank you."

	if _, err := fx.orch.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	noteID, err := fx.orch.StopRecording(context.Background(), models.StopConfirmed)
	if err != nil {
		t.Fatal(err)
	}

	note, _ := fx.notes.Get(noteID)
	if note.Content != fx.gen.out {
		t.Fatalf("content = %q, want refined", note.Content)
	}

	if err := fx.orch.UndoRefinement(noteID); err != nil {
		t.Fatalf("UndoRefinement: %v", err)
	}
	note, _ = fx.notes.Get(noteID)
	if note.Content != "draft an email to Ana saying thanks" {
		t.Errorf("content after undo = %q", note.Content)
	}
	// One-shot: the completed stage is gone.
	if err := fx.orch.UndoRefinement(noteID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second undo: got %v, want ErrNotFound", err)
	}
}

func TestRefinementFailureFlagsStageKeepsRaw(t *testing.T) {
	fx := newFixture(t, "make a list milk eggs butter")
	fx.gen.err = errors.New("provider down")

	if _, err := fx.orch.StartRecording(context.Background()); err != nil {
		t.Fatal(err)
	}
	noteID, err := fx.orch.StopRecording(context.Background(), models.StopConfirmed)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}

	note, _ := fx.notes.Get(noteID)
	if note.Content != "make a list milk eggs butter" {
		t.Errorf("content = %q, want raw transcript", note.Content)
	}
	stage, ok := fx.reg.Get(noteID)
	if !ok || stage.Kind != models.StageFailed {
		t.Errorf("stage = %+v, want failed", stage)
	}

	if err := fx.orch.AcknowledgeFailure(noteID); err != nil {
		t.Fatalf("AcknowledgeFailure: %v", err)
	}
	if _, ok := fx.reg.Get(noteID); ok {
		t.Error("failed stage should be removed on acknowledgement")
	}
}

func TestConcurrentStartTracksSingleSession(t *testing.T) {
	fx := newFixture(t, "racing thought")

	errs := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := fx.orch.StartRecording(context.Background())
			errs <- err
		}()
	}

	var started, rejected int
	for i := 0; i < 2; i++ {
		switch err := <-errs; {
		case err == nil:
			started++
		case errors.Is(err, apperr.ErrRecordingActive):
			rejected++
		default:
			t.Fatalf("unexpected start error: %v", err)
		}
	}
	if started != 1 || rejected != 1 {
		t.Fatalf("started = %d, rejected = %d, want exactly one of each", started, rejected)
	}
	if got := fx.orch.RecordingState(); got != models.RecordingActive {
		t.Fatalf("state = %q, want recording", got)
	}
	if stagedCount(t, fx.store) != 1 {
		t.Fatalf("staged files = %d, want 1 (losing start must not leave audio behind)", stagedCount(t, fx.store))
	}

	// The tracked session is the live one: stopping it must work and
	// drain the staging area, proving nothing was orphaned by the race.
	noteID, err := fx.orch.StopRecording(context.Background(), models.StopConfirmed)
	if err != nil {
		t.Fatalf("StopRecording: %v", err)
	}
	if noteID == "" {
		t.Fatal("expected a note ID from the surviving session")
	}
	if stagedCount(t, fx.store) != 0 {
		t.Error("staged file should be released after the pipeline completes")
	}
}
