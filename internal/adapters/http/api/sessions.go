package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	service "github.com/okian/songsort/internal/app"
	"github.com/okian/songsort/internal/validation"
)

// startRequest is the body of POST /api/sessions.
type startRequest struct {
	CollectionID string `json:"collection_id" validate:"required,max=128"`
}

// SessionsHandler serves comparison sessions.
type SessionsHandler struct {
	deps         Dependencies
	maxBodyBytes int64
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps Dependencies, maxBodyBytes int64) *SessionsHandler {
	return &SessionsHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandleStart handles POST /api/sessions.
func (h *SessionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeJSON(w, r, h.maxBodyBytes, &req); err != nil {
		writeServiceError(w, err)
		return
	}
	if err := validation.Struct(req); err != nil {
		writeServiceError(w, fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	sess, err := h.deps.StartSession(r.Context(), ownerFrom(r.Context()), req.CollectionID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess.Info())
}

// HandleGet handles GET /api/sessions/{sessionID}.
func (h *SessionsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Info())
}

// HandleEnd handles DELETE /api/sessions/{sessionID}.
func (h *SessionsHandler) HandleEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := h.deps.EndSession(r.Context(), sess.ID()); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandlePair handles GET /api/sessions/{sessionID}/pair. The same pair is
// returned until an outcome for it is recorded.
func (h *SessionsHandler) HandlePair(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pair, err := h.deps.NextPair(r.Context(), sess.ID())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleOutcome handles POST /api/sessions/{sessionID}/outcomes. A repeated
// outcome_id is acknowledged with duplicate=true and changes nothing.
func (h *SessionsHandler) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	sess, err := h.session(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	var o service.Outcome
	if err := decodeJSON(w, r, h.maxBodyBytes, &o); err != nil {
		writeServiceError(w, err)
		return
	}

	winner, loser, err := h.deps.RecordOutcome(r.Context(), sess.ID(), o)
	switch {
	case errors.Is(err, service.ErrDuplicateOutcome):
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", Duplicate: true})
	case err != nil:
		writeServiceError(w, err)
	default:
		writeJSON(w, http.StatusOK, ackResponse{Status: "recorded", Winner: &winner, Loser: &loser})
	}
}

// session resolves the path's session. Sessions of other owners are
// reported as not found.
func (h *SessionsHandler) session(r *http.Request) (*service.Session, error) {
	id := chi.URLParam(r, "sessionID")
	sess, err := h.deps.Session(id)
	if err != nil {
		return nil, err
	}
	if sess.Owner() != ownerFrom(r.Context()) {
		return nil, fmt.Errorf("%q: %w", id, service.ErrSessionNotFound)
	}
	return sess, nil
}
