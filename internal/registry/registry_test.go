package registry

import (
	"strings"
	"testing"
	"time"

	"github.com/ravnholt/voxnote/internal/models"
)

func TestSetGetRemove(t *testing.T) {
	r := New()
	defer r.Close()

	if _, ok := r.Get("n1"); ok {
		t.Fatal("expected no entry for idle note")
	}

	r.Set("n1", models.Processing(models.PhaseTranscribing))
	stage, ok := r.Get("n1")
	if !ok {
		t.Fatal("expected entry after Set")
	}
	if stage.Phase != models.PhaseTranscribing {
		t.Errorf("phase = %s, want transcribing", stage.Phase)
	}

	r.Remove("n1")
	if _, ok := r.Get("n1"); ok {
		t.Error("expected no entry after Remove")
	}
}

func TestReadAfterWriteConsistency(t *testing.T) {
	r := New()
	defer r.Close()

	// Every Get issued after a Set returns must see that Set's value.
	phases := []models.ProcessingPhase{models.PhaseTranscribing, models.PhaseRefining}
	for i := 0; i < 200; i++ {
		want := phases[i%len(phases)]
		r.Set("n1", models.Processing(want))
		stage, ok := r.Get("n1")
		if !ok || stage.Phase != want {
			t.Fatalf("iteration %d: got (%v, %v), want phase %s", i, stage, ok, want)
		}
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	r := New()
	defer r.Close()

	r.Set("n1", models.Processing(models.PhaseRefining))
	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot len = %d, want 1", len(snap))
	}
	delete(snap, "n1")
	if _, ok := r.Get("n1"); !ok {
		t.Error("mutating a snapshot must not affect the registry")
	}
}

func TestSubscriberReceivesOrderedEvents(t *testing.T) {
	r := New()
	defer r.Close()

	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	r.Set("n1", models.Processing(models.PhaseTranscribing))
	r.Set("n1", models.Processing(models.PhaseRefining))
	r.Remove("n1")

	want := []string{"event: stage.changed", "event: stage.changed", "event: stage.removed"}
	for i, prefix := range want {
		select {
		case msg := <-ch:
			if !strings.Contains(string(msg), prefix) {
				t.Errorf("event %d = %q, want %s", i, msg, prefix)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}
}

func TestRemoveIdleNoteEmitsNothing(t *testing.T) {
	r := New()
	defer r.Close()

	ch := r.Subscribe()
	defer r.Unsubscribe(ch)

	r.Remove("ghost")
	r.Set("n1", models.Completed("raw text"))

	select {
	case msg := <-ch:
		if !strings.Contains(string(msg), "stage.changed") {
			t.Errorf("first event = %q, want stage.changed (no event for ghost removal)", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestCompletedStageRetainsRaw(t *testing.T) {
	r := New()
	defer r.Close()

	r.Set("n1", models.Completed("the raw transcript"))
	stage, ok := r.Get("n1")
	if !ok || stage.Kind != models.StageCompleted {
		t.Fatalf("stage = %+v, ok = %v", stage, ok)
	}
	if stage.Raw != "the raw transcript" {
		t.Errorf("raw = %q", stage.Raw)
	}
	if !stage.Terminal() {
		t.Error("completed stage should be terminal")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r := New()
	r.Close()
	r.Close()
	r.Set("n1", models.Failed())
	if _, ok := r.Get("n1"); ok {
		t.Error("closed registry should drop writes")
	}
}
