package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/okian/songsort/internal/catalog"
)

const (
	defaultMatchesLimit = 50
	maxMatchesLimit     = 500
)

// CollectionsHandler serves collection imports and their standings.
type CollectionsHandler struct {
	deps         Dependencies
	maxBodyBytes int64
}

// NewCollectionsHandler creates a new collections handler.
func NewCollectionsHandler(deps Dependencies, maxBodyBytes int64) *CollectionsHandler {
	return &CollectionsHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandleList handles GET /api/collections.
func (h *CollectionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	cs, err := h.deps.ListCollections(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

// HandleImport handles POST /api/collections. Importing the same source
// again refreshes the collection and keeps existing ratings.
func (h *CollectionsHandler) HandleImport(w http.ResponseWriter, r *http.Request) {
	var imp catalog.Import
	if err := decodeJSON(w, r, h.maxBodyBytes, &imp); err != nil {
		writeServiceError(w, err)
		return
	}
	res, err := h.deps.ImportCollection(r.Context(), ownerFrom(r.Context()), imp)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// HandleDelete handles DELETE /api/collections/{collectionID}.
func (h *CollectionsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.DeleteCollection(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "collectionID")); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRanking handles GET /api/collections/{collectionID}/ranking.
func (h *CollectionsHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.CurrentRanking(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "collectionID"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleGroups handles GET /api/collections/{collectionID}/groups/{groupKey}.
func (h *CollectionsHandler) HandleGroups(w http.ResponseWriter, r *http.Request) {
	rows, err := h.deps.GroupStandings(r.Context(), ownerFrom(r.Context()),
		chi.URLParam(r, "collectionID"), chi.URLParam(r, "groupKey"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// HandleMatches handles GET /api/collections/{collectionID}/matches?limit=N.
func (h *CollectionsHandler) HandleMatches(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	ms, err := h.deps.Matches(r.Context(), ownerFrom(r.Context()), chi.URLParam(r, "collectionID"), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ms)
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return defaultMatchesLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxMatchesLimit {
		return 0, fmt.Errorf("%w: limit must be between 1 and %d", ErrBadRequest, maxMatchesLimit)
	}
	return n, nil
}
