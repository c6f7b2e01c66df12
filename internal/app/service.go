// Package service provides the comparison engine behind the HTTP API:
// sessions, pair selection, outcome recording, imports and standings.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/songsort/internal/adapters/mq/queue"
	"github.com/okian/songsort/internal/adapters/mq/worker"
	"github.com/okian/songsort/internal/adapters/repository"
	"github.com/okian/songsort/internal/catalog"
	"github.com/okian/songsort/internal/domain/dedupe"
	"github.com/okian/songsort/internal/domain/elo"
	"github.com/okian/songsort/internal/domain/journal"
	"github.com/okian/songsort/internal/domain/matchqueue"
	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/internal/domain/standings"
	"github.com/okian/songsort/internal/validation"
	"github.com/okian/songsort/pkg/logger"
	"github.com/okian/songsort/pkg/metrics"
)

// Group keys accepted by GroupStandings.
const (
	GroupAlbum  = "album"
	GroupArtist = "artist"
)

var groupKeys = map[string]standings.KeyFunc{ //nolint:gochecknoglobals // read-only lookup
	GroupAlbum:  standings.ByAlbum,
	GroupArtist: standings.ByArtists,
}

// Service implements the API dependencies of the ranking engine.
type Service struct {
	store   repository.Store
	updater *Updater
	deduper dedupe.Deduper

	scopes   scopes
	sessions sessions

	matches     *queue.InMemoryQueue
	journal     *journal.Journal
	journalPool *worker.Pool

	// Configuration
	eloK              float64
	dedupeSize        int
	importConcurrency int
	idleTimeout       time.Duration
	reapInterval      time.Duration
	queueOpts         []matchqueue.Option
	journalCapacity   int
	journalWorkers    int
	journalRetention  int
	now               func() time.Time

	logger logger.Logger
}

// New constructs a Service over store.
func New(store repository.Store, opts ...Option) *Service {
	s := &Service{
		store:             store,
		eloK:              elo.DefaultK,
		dedupeSize:        defaultDedupeSize,
		importConcurrency: defaultImportConcurrency,
		idleTimeout:       defaultIdleTimeout,
		reapInterval:      defaultReapInterval,
		journalCapacity:   defaultJournalCapacity,
		journalWorkers:    defaultJournalWorkers,
		journalRetention:  defaultJournalRetention,
		now:               time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.updater = NewUpdater(store, elo.NewCalculator(elo.WithK(s.eloK)), s.logger)
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.matches = queue.NewInMemoryQueue(queue.WithCapacity(s.journalCapacity))
	s.journal = journal.New(journal.WithPerCollection(s.journalRetention))
	s.journalPool = worker.NewPool(s.journalWorkers, s.matches, s.journal, worker.WithClock(s.now))

	return s
}

// JournalPool returns the workers draining match events into the journal.
// The caller runs it, usually under a supervisor.
func (s *Service) JournalPool() *worker.Pool { return s.journalPool }

// Scope returns the consistency scope shared by all of owner's calls.
func (s *Service) Scope(owner string) *Scope { return s.scopes.get(owner) }

// StartSession opens a comparison session over one of owner's collections.
func (s *Service) StartSession(ctx context.Context, owner, collectionID string) (*Session, error) {
	scope := s.scopes.get(owner)
	items, err := s.snapshot(ctx, scope, collectionID)
	if err != nil {
		return nil, err
	}
	if len(items) < 2 {
		return nil, fmt.Errorf("collection %s has %d rated items: %w", collectionID, len(items), ErrTooFewItems)
	}

	now := s.now()
	sess := &Session{
		id:           uuid.NewString(),
		owner:        owner,
		collectionID: collectionID,
		scope:        scope,
		startedAt:    now,
		queue:        matchqueue.New(s.queueOpts...),
		lastActive:   now,
	}
	active := s.sessions.add(sess)

	metrics.RecordSessionStarted()
	metrics.UpdateActiveSessions(active)
	s.logger.Info(ctx, "session started",
		logger.String("session", sess.id),
		logger.String("owner", owner),
		logger.String("collection", collectionID),
		logger.Int("items", len(items)),
	)
	return sess, nil
}

// Session returns an open session.
func (s *Service) Session(id string) (*Session, error) {
	sess, ok := s.sessions.get(id)
	if !ok {
		return nil, fmt.Errorf("%q: %w", id, ErrSessionNotFound)
	}
	return sess, nil
}

// EndSession closes a session and forgets its outcome ids.
func (s *Service) EndSession(ctx context.Context, id string) error {
	sess, active, ok := s.sessions.remove(id)
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrSessionNotFound)
	}
	s.deduper.Forget(ctx, id)
	metrics.UpdateActiveSessions(active)
	s.logger.Info(ctx, "session ended",
		logger.String("session", id),
		logger.String("owner", sess.owner),
		logger.Int("matches", sess.Info().Matches),
	)
	return nil
}

// NextPair returns the session's outstanding pair, drawing a new one from
// the match queue when there is none. The collection is re-read on every
// call so imports that change its items reset the queue. Only items that
// still have a rating record are drawn.
func (s *Service) NextPair(ctx context.Context, sessionID string) (Pair, error) {
	sess, err := s.Session(sessionID)
	if err != nil {
		return Pair{}, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	items, err := s.snapshot(ctx, sess.scope, sess.collectionID)
	if err != nil {
		return Pair{}, err
	}
	byID := make(map[string]model.Rating, len(items))
	ids := make([]string, 0, len(items))
	for _, r := range items {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	if o := sess.outstanding; o != nil {
		_, okA := byID[o[0]]
		_, okB := byID[o[1]]
		if !okA || !okB {
			sess.outstanding = nil
		}
	}
	if sess.outstanding == nil {
		a, b, err := sess.queue.Next(ids)
		if err != nil {
			return Pair{}, fmt.Errorf("collection %s: %w", sess.collectionID, err)
		}
		sess.outstanding = &[2]string{a, b}
		metrics.RecordPairServed()
	}

	sess.lastActive = s.now()
	return Pair{SessionID: sess.id, A: byID[sess.outstanding[0]], B: byID[sess.outstanding[1]]}, nil
}

// RecordOutcome applies a win of o.WinnerID over o.LoserID. Both ids must
// belong to the session's collection. A repeated OutcomeID within the
// session returns ErrDuplicateOutcome without touching any rating.
//
// Outcomes of one session are applied one at a time. A retry that arrives
// while the first attempt is in flight waits for it, and is applied itself
// if that attempt failed without moving any rating.
func (s *Service) RecordOutcome(ctx context.Context, sessionID string, o Outcome) (model.Rating, model.Rating, error) {
	if err := validation.Struct(o); err != nil {
		metrics.RecordOutcomeFailed("invalid")
		return model.Rating{}, model.Rating{}, fmt.Errorf("%w: %w", ErrInvalidOutcome, err)
	}
	sess, err := s.Session(sessionID)
	if err != nil {
		return model.Rating{}, model.Rating{}, err
	}

	w, l, err := s.applyOutcome(ctx, sess, o)
	switch {
	case errors.Is(err, ErrDuplicateOutcome):
		metrics.RecordOutcomeDuplicate()
		s.logger.Debug(ctx, "duplicate outcome ignored",
			logger.String("session", sess.id),
			logger.String("outcome", o.OutcomeID),
		)
		return model.Rating{}, model.Rating{}, err
	case err != nil:
		metrics.RecordOutcomeFailed(failureReason(err))
		return model.Rating{}, model.Rating{}, err
	}
	return w, l, nil
}

// applyOutcome runs under the session lock. The outcome id stays recorded
// once any rating moved; otherwise it is released for a retry.
func (s *Service) applyOutcome(ctx context.Context, sess *Session, o Outcome) (w, l model.Rating, err error) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if o.OutcomeID != "" {
		if s.deduper.SeenAndRecord(ctx, sess.id, o.OutcomeID) {
			return model.Rating{}, model.Rating{}, ErrDuplicateOutcome
		}
		defer func() {
			var partial *PartialUpdateError
			if err != nil && !errors.As(err, &partial) {
				s.deduper.Unrecord(ctx, sess.id, o.OutcomeID)
			}
		}()
	}

	c, err := s.collection(ctx, sess.scope, sess.collectionID)
	if err != nil {
		return model.Rating{}, model.Rating{}, err
	}
	for _, id := range []string{o.WinnerID, o.LoserID} {
		if !c.Contains(id) {
			return model.Rating{}, model.Rating{}, fmt.Errorf("rating %s in collection %s: %w", id, c.ID, ErrNotFound)
		}
	}

	start := s.now()
	w, l, ex, err := s.updater.apply(ctx, sess.scope, o.WinnerID, o.LoserID)
	var partial *PartialUpdateError
	if err != nil && !errors.As(err, &partial) {
		return model.Rating{}, model.Rating{}, err
	}

	// The pair is answered once any rating moved.
	if out := sess.outstanding; out != nil && samePair(*out, o.WinnerID, o.LoserID) {
		sess.outstanding = nil
	}
	now := s.now()
	sess.lastActive = now
	if partial != nil {
		return model.Rating{}, model.Rating{}, err
	}
	sess.matches++

	metrics.RecordOutcomeRecorded()
	metrics.RecordOutcomeLatency(float64(now.Sub(start).Milliseconds()))
	s.publish(ctx, model.Match{
		ID:           uuid.NewString(),
		OwnerID:      sess.owner,
		CollectionID: sess.collectionID,
		SessionID:    sess.id,
		WinnerID:     w.ID,
		LoserID:      l.ID,
		WinnerRating: w.Rating,
		LoserRating:  l.Rating,
		Delta:        ex.WinnerDelta,
		At:           now,
	})
	return w, l, nil
}

// publish hands a match to the journal. A full queue only costs history.
func (s *Service) publish(ctx context.Context, m model.Match) { //nolint:gocritic // hugeParam: Match is queued by value
	if err := s.matches.Enqueue(ctx, m); err != nil {
		s.logger.Warn(ctx, "match not journaled",
			logger.String("match", m.ID),
			logger.Error(err),
		)
	}
}

// Matches returns up to limit of the collection's most recent matches,
// newest first.
func (s *Service) Matches(ctx context.Context, owner, collectionID string, limit int) ([]model.Match, error) {
	if _, err := s.collection(ctx, s.scopes.get(owner), collectionID); err != nil {
		return nil, err
	}
	return s.journal.Recent(owner, collectionID, limit), nil
}

// CurrentRanking returns the collection's items ordered by rating.
func (s *Service) CurrentRanking(ctx context.Context, owner, collectionID string) ([]standings.Standing, error) {
	items, err := s.snapshot(ctx, s.scopes.get(owner), collectionID)
	if err != nil {
		return nil, err
	}
	return standings.Rank(items), nil
}

// GroupStandings returns the mean rating per album or artist group.
func (s *Service) GroupStandings(ctx context.Context, owner, collectionID, groupKey string) ([]standings.GroupStanding, error) {
	key, ok := groupKeys[groupKey]
	if !ok {
		return nil, fmt.Errorf("%q: %w", groupKey, ErrUnknownGroup)
	}
	items, err := s.snapshot(ctx, s.scopes.get(owner), collectionID)
	if err != nil {
		return nil, err
	}
	return standings.GroupAverage(items, key), nil
}

// Ratings returns every rating owner has, ordered by id.
func (s *Service) Ratings(ctx context.Context, owner string) ([]model.Rating, error) {
	scope := s.scopes.get(owner)
	rs, err := call(ctx, scope, "query_ratings", func(tok repository.Token) ([]model.Rating, repository.Token, error) {
		return s.store.QueryRatings(ctx, owner, repository.All(), tok)
	})
	if err != nil {
		return nil, storeError(err, "ratings")
	}
	return rs, nil
}

// ListCollections returns owner's collections ordered by id.
func (s *Service) ListCollections(ctx context.Context, owner string) ([]model.Collection, error) {
	scope := s.scopes.get(owner)
	cs, err := call(ctx, scope, "list_collections", func(tok repository.Token) ([]model.Collection, repository.Token, error) {
		return s.store.ListCollections(ctx, owner, tok)
	})
	if err != nil {
		return nil, storeError(err, "collections")
	}
	return cs, nil
}

// ImportResult summarizes an import.
type ImportResult struct {
	Collection model.Collection `json:"collection"`
	Ratings    int              `json:"ratings"` // records ensured to exist
	Removed    int              `json:"removed"`   // records of items no longer listed
	Refreshed  int              `json:"refreshed"` // kept records whose labels changed
}

// ImportCollection creates or refreshes a collection. Existing ratings keep
// their values and counters but take the new name, album and artists;
// items dropped since the previous import lose their records.
// The collection document is written last, so a failed import can simply
// be repeated.
func (s *Service) ImportCollection(ctx context.Context, owner string, imp catalog.Import) (ImportResult, error) {
	if err := imp.Validate(); err != nil {
		return ImportResult{}, fmt.Errorf("%w: %w", ErrInvalidImport, err)
	}
	scope := s.scopes.get(owner)
	c, ratings := imp.Build(owner)

	prev, err := s.collection(ctx, scope, c.ID)
	switch {
	case errors.Is(err, ErrNotFound):
	case err != nil:
		return ImportResult{}, err
	}

	existing, err := call(ctx, scope, "query_ratings", func(tok repository.Token) ([]model.Rating, repository.Token, error) {
		return s.store.QueryRatings(ctx, owner, repository.WithIDs(c.Items...), tok)
	})
	if err != nil {
		return ImportResult{}, storeError(err, "import "+c.ID)
	}
	current := make(map[string]model.Rating, len(existing))
	for _, r := range existing {
		current[r.ID] = r
	}

	var refreshed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.importConcurrency)
	for _, r := range ratings {
		g.Go(func() error {
			if cur, ok := current[r.ID]; ok {
				if sameLabels(&cur, &r) {
					return nil
				}
				moved, err := s.relabel(gctx, scope, &r)
				if moved {
					refreshed.Add(1)
				}
				return err
			}
			_, err := call(gctx, scope, "create_rating", func(tok repository.Token) (struct{}, repository.Token, error) {
				next, err := s.store.CreateRatingIfAbsent(gctx, r, tok)
				return struct{}{}, next, err
			})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		metrics.RecordErrorByComponent("service", "import")
		return ImportResult{}, storeError(err, "import "+c.ID)
	}

	res := ImportResult{Collection: c, Ratings: len(ratings), Refreshed: int(refreshed.Load())}
	if removed := missing(prev.Items, c.Items); len(removed) > 0 {
		res.Removed, err = call(ctx, scope, "delete_ratings", func(tok repository.Token) (int, repository.Token, error) {
			return s.store.DeleteRatings(ctx, owner, repository.WithIDs(removed...), tok)
		})
		if err != nil {
			return ImportResult{}, storeError(err, "import "+c.ID)
		}
	}

	if _, err := call(ctx, scope, "put_collection", func(tok repository.Token) (struct{}, repository.Token, error) {
		next, err := s.store.PutCollection(ctx, c, tok)
		return struct{}{}, next, err
	}); err != nil {
		return ImportResult{}, storeError(err, "collection "+c.ID)
	}

	metrics.RecordImport(string(imp.SourceKind()), len(ratings))
	s.logger.Info(ctx, "collection imported",
		logger.String("owner", owner),
		logger.String("collection", c.ID),
		logger.Int("ratings", res.Ratings),
		logger.Int("removed", res.Removed),
		logger.Int("refreshed", res.Refreshed),
	)
	return res, nil
}

// DeleteCollection removes a collection, its ratings, its match history
// and every session ranking it.
func (s *Service) DeleteCollection(ctx context.Context, owner, collectionID string) error {
	scope := s.scopes.get(owner)
	if _, err := s.collection(ctx, scope, collectionID); err != nil {
		return err
	}

	n, err := call(ctx, scope, "delete_ratings", func(tok repository.Token) (int, repository.Token, error) {
		return s.store.DeleteRatings(ctx, owner, repository.InCollection(collectionID), tok)
	})
	if err != nil {
		return storeError(err, "ratings of "+collectionID)
	}
	if _, err := call(ctx, scope, "delete_collection", func(tok repository.Token) (struct{}, repository.Token, error) {
		next, err := s.store.DeleteCollection(ctx, owner, collectionID, tok)
		return struct{}{}, next, err
	}); err != nil {
		return storeError(err, "collection "+collectionID)
	}

	ended := s.endSessions(ctx, func(sess *Session) bool {
		return sess.owner == owner && sess.collectionID == collectionID
	})
	s.journal.Drop(owner, collectionID)

	s.logger.Info(ctx, "collection deleted",
		logger.String("owner", owner),
		logger.String("collection", collectionID),
		logger.Int("ratings", n),
		logger.Int("sessions", ended),
	)
	return nil
}

// Stats is a snapshot of the engine.
type Stats struct {
	Ratings         int    `json:"ratings"`
	Collections     int    `json:"collections"`
	LSN             uint64 `json:"lsn"`
	ActiveSessions  int    `json:"active_sessions"`
	Owners          int    `json:"owners"`
	DedupeEntries   int64  `json:"dedupe_entries"`
	JournalBacklog  int    `json:"journal_backlog"`
	JournalRetained int    `json:"journal_retained"`
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) (Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return Stats{}, storeError(err, "stats")
	}

	out := Stats{
		Ratings:         st.Ratings,
		Collections:     st.Collections,
		LSN:             st.LSN,
		ActiveSessions:  s.sessions.count(),
		Owners:          s.scopes.count(),
		DedupeEntries:   s.deduper.Size(),
		JournalBacklog:  s.matches.Len(),
		JournalRetained: s.journal.Len(),
	}
	metrics.UpdateTotalRatings(out.Ratings)
	metrics.UpdateTotalCollections(out.Collections)
	metrics.UpdateActiveSessions(out.ActiveSessions)
	return out, nil
}

// ReapIdle ends every session idle for at least the idle timeout and
// returns how many it ended.
func (s *Service) ReapIdle(ctx context.Context, now time.Time) int {
	if s.idleTimeout <= 0 {
		return 0
	}
	n := s.endSessions(ctx, func(sess *Session) bool {
		return sess.idleSince(now) >= s.idleTimeout
	})
	if n > 0 {
		metrics.RecordSessionsReaped(n)
		s.logger.Info(ctx, "idle sessions reaped", logger.Int("sessions", n))
	}
	return n
}

func (s *Service) endSessions(ctx context.Context, match func(*Session) bool) int {
	n := 0
	for _, sess := range s.sessions.match(match) {
		_, active, ok := s.sessions.remove(sess.id)
		if !ok {
			continue
		}
		s.deduper.Forget(ctx, sess.id)
		metrics.UpdateActiveSessions(active)
		n++
	}
	return n
}

// Reaper periodically ends idle sessions. It implements suture.Service.
type Reaper struct {
	svc *Service
}

// Reaper returns the idle-session reaper of the service.
func (s *Service) Reaper() *Reaper { return &Reaper{svc: s} }

// Serve runs until ctx is done.
func (r *Reaper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.svc.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.svc.ReapIdle(ctx, r.svc.now())
		}
	}
}

func (r *Reaper) String() string { return "session-reaper" }

func (s *Service) collection(ctx context.Context, scope *Scope, id string) (model.Collection, error) {
	c, err := call(ctx, scope, "get_collection", func(tok repository.Token) (model.Collection, repository.Token, error) {
		return s.store.GetCollection(ctx, scope.Owner(), id, tok)
	})
	if err != nil {
		return model.Collection{}, storeError(err, "collection "+id)
	}
	return c, nil
}

// snapshot returns the collection's ratings in collection order. Items
// whose record is missing are left out.
func (s *Service) snapshot(ctx context.Context, scope *Scope, collectionID string) ([]model.Rating, error) {
	c, err := s.collection(ctx, scope, collectionID)
	if err != nil {
		return nil, err
	}
	rs, err := call(ctx, scope, "query_ratings", func(tok repository.Token) ([]model.Rating, repository.Token, error) {
		return s.store.QueryRatings(ctx, scope.Owner(), repository.WithIDs(c.Items...), tok)
	})
	if err != nil {
		return nil, storeError(err, "ratings of "+collectionID)
	}

	byID := make(map[string]model.Rating, len(rs))
	for _, r := range rs {
		byID[r.ID] = r
	}
	out := make([]model.Rating, 0, len(rs))
	for _, id := range c.Items {
		if r, ok := byID[id]; ok {
			out = append(out, r)
			delete(byID, id)
		}
	}
	return out, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, ErrPartialUpdate):
		return "partial_update"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStore):
		return "store"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	}
	return "other"
}

func samePair(p [2]string, x, y string) bool {
	return (p[0] == x && p[1] == y) || (p[0] == y && p[1] == x)
}

// relabel copies the display and group labels of r onto the stored record,
// keeping its rating and counters. It reports whether a write happened.
func (s *Service) relabel(ctx context.Context, scope *Scope, r *model.Rating) (bool, error) {
	cur, err := call(ctx, scope, "get_rating", func(tok repository.Token) (model.Rating, repository.Token, error) {
		return s.store.GetRating(ctx, r.OwnerID, r.ID, tok)
	})
	if err != nil {
		return false, err
	}
	if sameLabels(&cur, r) {
		return false, nil
	}
	cur.ItemID, cur.Name, cur.Album = r.ItemID, r.Name, r.Album
	cur.Artists = slices.Clone(r.Artists)
	_, err = call(ctx, scope, "replace_rating", func(tok repository.Token) (struct{}, repository.Token, error) {
		next, err := s.store.ReplaceRating(ctx, cur, tok)
		return struct{}{}, next, err
	})
	return err == nil, err
}

func sameLabels(a, b *model.Rating) bool {
	return a.ItemID == b.ItemID && a.Name == b.Name && a.Album == b.Album && slices.Equal(a.Artists, b.Artists)
}

// missing returns the ids of prev not present in next.
func missing(prev, next []string) []string {
	var out []string
	for _, id := range prev {
		if !slices.Contains(next, id) {
			out = append(out, id)
		}
	}
	return out
}
