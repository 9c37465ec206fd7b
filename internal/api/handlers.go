package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ravnholt/voxnote/internal/apperr"
	"github.com/ravnholt/voxnote/internal/models"
	"github.com/ravnholt/voxnote/internal/notestore"
	"github.com/ravnholt/voxnote/internal/registry"
)

// CaptureService is the orchestrator surface the API drives.
type CaptureService interface {
	StartRecording(ctx context.Context) (string, error)
	StopRecording(ctx context.Context, reason models.StopReason) (string, error)
	RecordingState() models.RecordingState
	UndoRefinement(noteID string) error
	AcknowledgeFailure(noteID string) error
}

// RecoveryService is the recovery-coordinator surface the API drives.
type RecoveryService interface {
	Scan(ctx context.Context) ([]models.PendingRecordingSnapshot, error)
	Recover(ctx context.Context, recordingID string) (string, error)
	Discard(recordingID string) error
}

// Handler holds API route handlers.
type Handler struct {
	notes    notestore.NoteStore
	capture  CaptureService
	recovery RecoveryService
	reg      *registry.Registry
}

// NewHandler creates a new Handler.
func NewHandler(notes notestore.NoteStore, capture CaptureService, recovery RecoveryService, reg *registry.Registry) *Handler {
	return &Handler{notes: notes, capture: capture, recovery: recovery, reg: reg}
}

// StartRecording handles POST /api/recordings.
func (h *Handler) StartRecording(w http.ResponseWriter, r *http.Request) {
	id, err := h.capture.StartRecording(r.Context())
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrRecordingActive):
			writeJSON(w, http.StatusConflict, errorBody("a recording is already active"))
		case errors.Is(err, apperr.ErrQuotaExceeded):
			writeJSON(w, http.StatusPaymentRequired, errorBody("daily quota exceeded"))
		default:
			slog.Error("start recording failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
		}
		return
	}
	writeJSON(w, http.StatusCreated, RecordingResponse{RecordingID: id})
}

// StopRecording handles POST /api/recordings/stop.
func (h *Handler) StopRecording(w http.ResponseWriter, r *http.Request) {
	var req StopRecordingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}
	if req.Reason != models.StopConfirmed && req.Reason != models.StopCancelled {
		writeJSON(w, http.StatusBadRequest, errorBody("reason must be confirmed or cancelled"))
		return
	}
	noteID, err := h.capture.StopRecording(r.Context(), req.Reason)
	if err != nil {
		if errors.Is(err, apperr.ErrNoActiveSession) {
			writeJSON(w, http.StatusConflict, errorBody("no active recording"))
			return
		}
		slog.Error("stop recording failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, StopResponse{NoteID: noteID})
}

// RecordingState handles GET /api/recordings/state.
func (h *Handler) RecordingState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StateResponse{State: h.capture.RecordingState()})
}

// ListNotes handles GET /api/notes.
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	lifecycle := models.NoteLifecycle(q.Get("lifecycle"))

	items, total, err := h.notes.List(limit, offset, lifecycle)
	if err != nil {
		slog.Error("list notes failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if items == nil {
		items = []models.NoteMetadata{}
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/{id}.
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	note, err := h.notes.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// UpdateNote handles PUT /api/notes/{id} with optimistic concurrency:
// when an If-Match header is present it must equal the stored checksum.
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req UpdateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid request body"))
		return
	}

	if ifMatch := r.Header.Get("If-Match"); ifMatch != "" {
		note, err := h.notes.Get(id)
		if err != nil {
			h.writeStoreError(w, err)
			return
		}
		if note.Checksum != ifMatch {
			writeJSON(w, http.StatusConflict, errorBody("checksum mismatch"))
			return
		}
	}

	if err := h.notes.UpdateContent(id, req.Content); err != nil {
		h.writeStoreError(w, err)
		return
	}
	note, err := h.notes.Get(id)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// TrashNote handles DELETE /api/notes/{id} (soft delete).
func (h *Handler) TrashNote(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.notes.Trash(id); err != nil {
		h.writeStoreError(w, err)
		return
	}
	// A trashed note's pipeline entry is no longer interesting.
	h.reg.Remove(id)
	w.WriteHeader(http.StatusNoContent)
}

// RestoreNote handles POST /api/notes/{id}/restore.
func (h *Handler) RestoreNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Restore(chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PurgeNote handles POST /api/notes/{id}/purge (hard delete of trash).
func (h *Handler) PurgeNote(w http.ResponseWriter, r *http.Request) {
	if err := h.notes.Purge(chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// UndoRefinement handles POST /api/notes/{id}/undo-refinement.
func (h *Handler) UndoRefinement(w http.ResponseWriter, r *http.Request) {
	if err := h.capture.UndoRefinement(chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AckFailure handles POST /api/notes/{id}/ack-failure.
func (h *Handler) AckFailure(w http.ResponseWriter, r *http.Request) {
	if err := h.capture.AcknowledgeFailure(chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("q is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.notes.Search(query, limit)
	if err != nil {
		slog.Error("search failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []models.NoteMetadata{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Processing handles GET /api/processing (registry snapshot).
func (h *Handler) Processing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, ProcessingResponse{Stages: h.reg.Snapshot()})
}

// ListPending handles GET /api/pending.
func (h *Handler) ListPending(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.recovery.Scan(r.Context())
	if err != nil {
		slog.Error("pending scan failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	items := make([]PendingItem, 0, len(snaps))
	for _, s := range snaps {
		items = append(items, PendingItem{
			ID:              s.ID,
			DurationSeconds: s.Duration.Seconds(),
			NoteID:          s.NoteID,
			CreatedAt:       s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, PendingResponse{Pending: items})
}

// RecoverPending handles POST /api/pending/{id}/recover.
func (h *Handler) RecoverPending(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	noteID, err := h.recovery.Recover(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		case errors.Is(err, apperr.ErrEmptyTranscript):
			writeJSON(w, http.StatusOK, StopResponse{})
		default:
			slog.Error("recover failed", slog.String("recording_id", id), slog.String("error", err.Error()))
			// The draft survives in the failed stage; report it so the
			// client can show the failure against the note.
			writeJSON(w, http.StatusBadGateway, StopResponse{NoteID: noteID})
		}
		return
	}
	writeJSON(w, http.StatusOK, StopResponse{NoteID: noteID})
}

// DiscardPending handles POST /api/pending/{id}/discard.
func (h *Handler) DiscardPending(w http.ResponseWriter, r *http.Request) {
	if err := h.recovery.Discard(chi.URLParam(r, "id")); err != nil {
		h.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("conflict"))
	case errors.Is(err, apperr.ErrNoteTrashed):
		writeJSON(w, http.StatusConflict, errorBody("note is trashed"))
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
