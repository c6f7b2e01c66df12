// Package repository stores ratings and collections partitioned by owner.
//
// Every call takes the caller's most recent session token and returns a
// token covering the call. Reads issued with a token observe every write
// that produced it or an older token.
package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"

	"github.com/okian/songsort/internal/domain/model"
)

// Token is an opaque session consistency token. The empty token means the
// caller has not talked to the store yet.
type Token string

// NewToken renders a log sequence number as a token.
func NewToken(lsn uint64) Token {
	return Token(strconv.FormatUint(lsn, 10))
}

// LSN parses the token. The empty token is LSN 0.
func (t Token) LSN() (uint64, error) {
	if t == "" {
		return 0, nil
	}
	lsn, err := strconv.ParseUint(string(t), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidToken, string(t))
	}
	return lsn, nil
}

// Latest returns the newest of the given tokens. Malformed tokens lose to
// any well-formed one.
func Latest(tokens ...Token) Token {
	var (
		best    Token
		bestLSN uint64
	)
	for _, t := range tokens {
		lsn, err := t.LSN()
		if err != nil || t == "" {
			continue
		}
		if best == "" || lsn > bestLSN {
			best, bestLSN = t, lsn
		}
	}
	return best
}

// Predicate selects ratings in a query.
type Predicate func(model.Rating) bool

// All matches every rating.
func All() Predicate { return func(model.Rating) bool { return true } }

// InCollection matches ratings imported for the collection.
func InCollection(collectionID string) Predicate {
	return func(r model.Rating) bool { return r.CollectionID == collectionID }
}

// WithIDs matches ratings whose id is listed.
func WithIDs(ids ...string) Predicate {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return func(r model.Rating) bool {
		_, ok := set[r.ID]
		return ok
	}
}

// Store provides owner-partitioned access to ratings and collections.
type Store interface {
	// GetRating returns ErrNotFound if the owner has no rating with id.
	GetRating(ctx context.Context, owner, id string, tok Token) (model.Rating, Token, error)
	QueryRatings(ctx context.Context, owner string, pred Predicate, tok Token) ([]model.Rating, Token, error)
	// ReplaceRating overwrites an existing rating and returns ErrNotFound if
	// there is none.
	ReplaceRating(ctx context.Context, r model.Rating, tok Token) (Token, error)
	// CreateRatingIfAbsent stores r unless a rating with its id exists, in
	// which case the call succeeds without writing.
	CreateRatingIfAbsent(ctx context.Context, r model.Rating, tok Token) (Token, error)
	DeleteRatings(ctx context.Context, owner string, pred Predicate, tok Token) (int, Token, error)

	GetCollection(ctx context.Context, owner, id string, tok Token) (model.Collection, Token, error)
	ListCollections(ctx context.Context, owner string, tok Token) ([]model.Collection, Token, error)
	PutCollection(ctx context.Context, c model.Collection, tok Token) (Token, error)
	// DeleteCollection returns ErrNotFound if the collection does not exist.
	DeleteCollection(ctx context.Context, owner, id string, tok Token) (Token, error)

	// Stats counts records across all owners.
	Stats(ctx context.Context) (Stats, error)

	Close() error
}

// Stats is a point-in-time record count.
type Stats struct {
	Ratings     int    `json:"ratings"`
	Collections int    `json:"collections"`
	LSN         uint64 `json:"lsn"`
}

func sortRatings(rs []model.Rating) {
	slices.SortFunc(rs, func(a, b model.Rating) int { return cmp.Compare(a.ID, b.ID) })
}

func sortCollections(cs []model.Collection) {
	slices.SortFunc(cs, func(a, b model.Collection) int { return cmp.Compare(a.ID, b.ID) })
}

func checkRating(r *model.Rating) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}

func checkCollection(c *model.Collection) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, err)
	}
	return nil
}
