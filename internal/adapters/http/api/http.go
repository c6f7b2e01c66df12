// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	json "github.com/goccy/go-json"

	service "github.com/okian/songsort/internal/app"
	"github.com/okian/songsort/internal/catalog"
	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/internal/domain/standings"
	"github.com/okian/songsort/internal/validation"
	"github.com/okian/songsort/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service satisfies it.
type Dependencies interface {
	StartSession(ctx context.Context, owner, collectionID string) (*service.Session, error)
	Session(id string) (*service.Session, error)
	EndSession(ctx context.Context, id string) error
	NextPair(ctx context.Context, sessionID string) (service.Pair, error)
	RecordOutcome(ctx context.Context, sessionID string, o service.Outcome) (model.Rating, model.Rating, error)

	ImportCollection(ctx context.Context, owner string, imp catalog.Import) (service.ImportResult, error)
	ListCollections(ctx context.Context, owner string) ([]model.Collection, error)
	DeleteCollection(ctx context.Context, owner, collectionID string) error

	CurrentRanking(ctx context.Context, owner, collectionID string) ([]standings.Standing, error)
	GroupStandings(ctx context.Context, owner, collectionID, groupKey string) ([]standings.GroupStanding, error)
	Matches(ctx context.Context, owner, collectionID string, limit int) ([]model.Match, error)
	Ratings(ctx context.Context, owner string) ([]model.Rating, error)

	StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	collectionsHandler *CollectionsHandler
	sessionsHandler    *SessionsHandler
	ratingsHandler     *RatingsHandler

	origins      []string
	maxBodyBytes int64
	logger       logger.Logger
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		origins:      []string{"*"},
		maxBodyBytes: defaultMaxBodyBytes,
		logger:       logger.Get().Named("http"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.healthHandler = NewHealthHandler()
	s.statsHandler = NewStatsHandler(deps)
	s.collectionsHandler = NewCollectionsHandler(deps, s.maxBodyBytes)
	s.sessionsHandler = NewSessionsHandler(deps, s.maxBodyBytes)
	s.ratingsHandler = NewRatingsHandler(deps)
	return s
}

// Register attaches all HTTP routes to r. Extra registrars, such as the API
// docs, are mounted at the root next to /healthz.
func (s *Server) Register(r chi.Router, extra ...func(chi.Router)) {
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Content-Type", OwnerHeader},
		ExposedHeaders:   []string{chimiddleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(MetricsMiddleware)
	r.Use(RequestLogger(s.logger))

	r.Get("/healthz", s.healthHandler.HandleHealth)
	r.Get("/stats", s.statsHandler.HandleStats)
	for _, fn := range extra {
		fn(r)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(OwnerMiddleware)

		r.Route("/collections", func(r chi.Router) {
			r.Get("/", s.collectionsHandler.HandleList)
			r.Post("/", s.collectionsHandler.HandleImport)
			r.Route("/{collectionID}", func(r chi.Router) {
				r.Delete("/", s.collectionsHandler.HandleDelete)
				r.Get("/ranking", s.collectionsHandler.HandleRanking)
				r.Get("/groups/{groupKey}", s.collectionsHandler.HandleGroups)
				r.Get("/matches", s.collectionsHandler.HandleMatches)
			})
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", s.sessionsHandler.HandleStart)
			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", s.sessionsHandler.HandleGet)
				r.Delete("/", s.sessionsHandler.HandleEnd)
				r.Get("/pair", s.sessionsHandler.HandlePair)
				r.Post("/outcomes", s.sessionsHandler.HandleOutcome)
			})
		})

		r.Get("/ratings", s.ratingsHandler.HandleList)
	})
}

// Handler returns a router with every route registered.
func (s *Server) Handler(extra ...func(chi.Router)) http.Handler {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})
	s.Register(r, extra...)
	return r
}

type ackResponse struct {
	Status    string        `json:"status"`
	Duplicate bool          `json:"duplicate"`
	Winner    *model.Rating `json:"winner,omitempty"`
	Loser     *model.Rating `json:"loser,omitempty"`
}

type errorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Fields  []validation.FieldError `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	resp := errorResponse{Code: code, Message: msg}
	var verr *validation.Error
	if errors.As(err, &verr) {
		resp.Fields = verr.Fields
	}
	writeJSON(w, status, resp)
}

// writeServiceError maps a service error onto a status and error code.
func writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	writeError(w, status, code, err)
}

// decodeJSON reads one JSON document of at most limit bytes into v.
// Unknown fields are rejected.
func decodeJSON(w http.ResponseWriter, r *http.Request, limit int64, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return fmt.Errorf("%w: body exceeds %d bytes", ErrBodyTooLarge, tooLarge.Limit)
		case errors.Is(err, io.EOF):
			return fmt.Errorf("%w: empty body", ErrBadRequest)
		}
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
	if dec.More() {
		return fmt.Errorf("%w: trailing data after JSON body", ErrBadRequest)
	}
	return nil
}
