package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Recording lifecycle.
	r.Post("/recordings", h.StartRecording)
	r.Post("/recordings/stop", h.StopRecording)
	r.Get("/recordings/state", h.RecordingState)

	// Notes.
	r.Get("/notes", h.ListNotes)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.TrashNote)
	r.Post("/notes/{id}/restore", h.RestoreNote)
	r.Post("/notes/{id}/purge", h.PurgeNote)
	r.Post("/notes/{id}/undo-refinement", h.UndoRefinement)
	r.Post("/notes/{id}/ack-failure", h.AckFailure)

	// Search.
	r.Get("/search", h.Search)

	// Pipeline observation.
	r.Get("/processing", h.Processing)

	// Crash recovery.
	r.Get("/pending", h.ListPending)
	r.Post("/pending/{id}/recover", h.RecoverPending)
	r.Post("/pending/{id}/discard", h.DiscardPending)

	// SSE endpoint (protected by the same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
