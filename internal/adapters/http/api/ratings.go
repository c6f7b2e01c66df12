package api

import "net/http"

// RatingsHandler serves the owner's rating records.
type RatingsHandler struct {
	deps Dependencies
}

// NewRatingsHandler creates a new ratings handler.
func NewRatingsHandler(deps Dependencies) *RatingsHandler {
	return &RatingsHandler{deps: deps}
}

// HandleList handles GET /api/ratings.
func (h *RatingsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	rs, err := h.deps.Ratings(r.Context(), ownerFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}
