package repository

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/pkg/logger"
)

// Key layout. Owner and record ids are path-escaped so a '/' inside an id
// cannot leak into another owner's prefix.
const (
	ratingPrefix     = "rating/"
	collectionPrefix = "collection/"
	lsnKey           = "meta/lsn"

	maxConflictRetries = 8
)

// BadgerStore persists ratings and collections in BadgerDB. Badger commits
// are serializable, so every read observes every earlier write and tokens
// only carry the commit sequence number.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens (or creates) a badger database.
func NewBadgerStore(opts ...BadgerOption) (*BadgerStore, error) {
	st := badgerSettings{inMemory: true}
	for _, opt := range opts {
		opt(&st)
	}

	bopts := badger.DefaultOptions(st.dir)
	if st.inMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	if st.logger != nil {
		bopts = bopts.WithLogger(badgerLogger{l: st.logger})
	} else {
		bopts = bopts.WithLogger(nil)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func ownerPrefix(kind, owner string) []byte {
	return []byte(kind + url.PathEscape(owner) + "/")
}

func recordKey(kind, owner, id string) []byte {
	return []byte(kind + url.PathEscape(owner) + "/" + url.PathEscape(id))
}

func readLSN(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte(lsnKey))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var lsn uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return fmt.Errorf("corrupt lsn value of %d bytes", len(val))
		}
		lsn = binary.BigEndian.Uint64(val)
		return nil
	})
	return lsn, err
}

func bumpLSN(txn *badger.Txn) (uint64, error) {
	lsn, err := readLSN(txn)
	if err != nil {
		return 0, err
	}
	lsn++
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, lsn)
	return lsn, txn.Set([]byte(lsnKey), buf)
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return txn.Set(key, data)
}

// view runs fn in a read transaction and returns a token for the snapshot.
func (s *BadgerStore) view(ctx context.Context, tok Token, fn func(txn *badger.Txn) error) (Token, error) {
	if err := ctx.Err(); err != nil {
		return tok, err
	}
	if _, err := tok.LSN(); err != nil {
		return tok, err
	}
	var lsn uint64
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		if lsn, err = readLSN(txn); err != nil {
			return err
		}
		return fn(txn)
	})
	return Latest(tok, NewToken(lsn)), s.wrap(err)
}

// update runs fn in a write transaction, retrying on commit conflicts. fn
// reports whether it wrote anything; only writes advance the sequence number.
func (s *BadgerStore) update(ctx context.Context, tok Token, fn func(txn *badger.Txn) (bool, error)) (Token, error) {
	if _, err := tok.LSN(); err != nil {
		return tok, err
	}
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return tok, err
		}
		var lsn uint64
		err := s.db.Update(func(txn *badger.Txn) error {
			wrote, err := fn(txn)
			if err != nil {
				return err
			}
			if !wrote {
				lsn, err = readLSN(txn)
				return err
			}
			lsn, err = bumpLSN(txn)
			return err
		})
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			continue
		}
		if err != nil {
			return tok, s.wrap(err)
		}
		return Latest(tok, NewToken(lsn)), nil
	}
}

func (s *BadgerStore) wrap(err error) error {
	switch {
	case err == nil, errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidRecord):
		return err
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	}
	return fmt.Errorf("%w: %w", ErrUnavailable, err)
}

// GetRating implements Store.
func (s *BadgerStore) GetRating(ctx context.Context, owner, id string, tok Token) (model.Rating, Token, error) {
	var r model.Rating
	next, err := s.view(ctx, tok, func(txn *badger.Txn) error {
		return getJSON(txn, recordKey(ratingPrefix, owner, id), &r)
	})
	if err != nil {
		return model.Rating{}, next, err
	}
	return r, next, nil
}

// QueryRatings implements Store. Results are ordered by id.
func (s *BadgerStore) QueryRatings(ctx context.Context, owner string, pred Predicate, tok Token) ([]model.Rating, Token, error) {
	if pred == nil {
		pred = All()
	}
	var out []model.Rating
	next, err := s.view(ctx, tok, func(txn *badger.Txn) error {
		return scan(txn, ownerPrefix(ratingPrefix, owner), func(val []byte) error {
			var r model.Rating
			if err := json.Unmarshal(val, &r); err != nil {
				return err
			}
			if pred(r) {
				out = append(out, r)
			}
			return nil
		})
	})
	if err != nil {
		return nil, next, err
	}
	sortRatings(out)
	return out, next, nil
}

func scan(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	it := txn.NewIterator(badger.DefaultIteratorOptions)
	defer it.Close()
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

func countKeys(txn *badger.Txn, prefix []byte) int {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()
	n := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		n++
	}
	return n
}

// ReplaceRating implements Store.
func (s *BadgerStore) ReplaceRating(ctx context.Context, r model.Rating, tok Token) (Token, error) {
	if err := checkRating(&r); err != nil {
		return tok, err
	}
	key := recordKey(ratingPrefix, r.OwnerID, r.ID)
	return s.update(ctx, tok, func(txn *badger.Txn) (bool, error) {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return false, ErrNotFound
		} else if err != nil {
			return false, err
		}
		return true, setJSON(txn, key, r)
	})
}

// CreateRatingIfAbsent implements Store.
func (s *BadgerStore) CreateRatingIfAbsent(ctx context.Context, r model.Rating, tok Token) (Token, error) {
	if err := checkRating(&r); err != nil {
		return tok, err
	}
	key := recordKey(ratingPrefix, r.OwnerID, r.ID)
	return s.update(ctx, tok, func(txn *badger.Txn) (bool, error) {
		_, err := txn.Get(key)
		switch {
		case err == nil:
			return false, nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return false, err
		}
		return true, setJSON(txn, key, r)
	})
}

// DeleteRatings implements Store.
func (s *BadgerStore) DeleteRatings(ctx context.Context, owner string, pred Predicate, tok Token) (int, Token, error) {
	if pred == nil {
		pred = All()
	}
	n := 0
	next, err := s.update(ctx, tok, func(txn *badger.Txn) (bool, error) {
		n = 0
		var doomed [][]byte
		prefix := ownerPrefix(ratingPrefix, owner)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			var r model.Rating
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &r) }); err != nil {
				it.Close()
				return false, err
			}
			if pred(r) {
				doomed = append(doomed, item.KeyCopy(nil))
			}
		}
		it.Close()
		for _, key := range doomed {
			if err := txn.Delete(key); err != nil {
				return false, err
			}
		}
		n = len(doomed)
		return n > 0, nil
	})
	if err != nil {
		return 0, next, err
	}
	return n, next, nil
}

// GetCollection implements Store.
func (s *BadgerStore) GetCollection(ctx context.Context, owner, id string, tok Token) (model.Collection, Token, error) {
	var c model.Collection
	next, err := s.view(ctx, tok, func(txn *badger.Txn) error {
		return getJSON(txn, recordKey(collectionPrefix, owner, id), &c)
	})
	if err != nil {
		return model.Collection{}, next, err
	}
	return c, next, nil
}

// ListCollections implements Store. Results are ordered by id.
func (s *BadgerStore) ListCollections(ctx context.Context, owner string, tok Token) ([]model.Collection, Token, error) {
	var out []model.Collection
	next, err := s.view(ctx, tok, func(txn *badger.Txn) error {
		return scan(txn, ownerPrefix(collectionPrefix, owner), func(val []byte) error {
			var c model.Collection
			if err := json.Unmarshal(val, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	if err != nil {
		return nil, next, err
	}
	sortCollections(out)
	return out, next, nil
}

// PutCollection implements Store.
func (s *BadgerStore) PutCollection(ctx context.Context, c model.Collection, tok Token) (Token, error) {
	if err := checkCollection(&c); err != nil {
		return tok, err
	}
	return s.update(ctx, tok, func(txn *badger.Txn) (bool, error) {
		return true, setJSON(txn, recordKey(collectionPrefix, c.OwnerID, c.ID), c)
	})
}

// DeleteCollection implements Store.
func (s *BadgerStore) DeleteCollection(ctx context.Context, owner, id string, tok Token) (Token, error) {
	key := recordKey(collectionPrefix, owner, id)
	return s.update(ctx, tok, func(txn *badger.Txn) (bool, error) {
		if _, err := txn.Get(key); errors.Is(err, badger.ErrKeyNotFound) {
			return false, ErrNotFound
		} else if err != nil {
			return false, err
		}
		return true, txn.Delete(key)
	})
}

// Stats implements Store.
func (s *BadgerStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	_, err := s.view(ctx, "", func(txn *badger.Txn) error {
		var err error
		if st.LSN, err = readLSN(txn); err != nil {
			return err
		}
		st.Ratings = countKeys(txn, []byte(ratingPrefix))
		st.Collections = countKeys(txn, []byte(collectionPrefix))
		return nil
	})
	return st, err
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// badgerLogger forwards badger's printf-style logging.
type badgerLogger struct {
	l logger.Logger
}

func (b badgerLogger) Errorf(format string, args ...interface{}) {
	b.l.Error(context.Background(), line(format, args))
}

func (b badgerLogger) Warningf(format string, args ...interface{}) {
	b.l.Warn(context.Background(), line(format, args))
}

func (b badgerLogger) Infof(format string, args ...interface{}) {
	b.l.Debug(context.Background(), line(format, args))
}

func (b badgerLogger) Debugf(format string, args ...interface{}) {
	b.l.Debug(context.Background(), line(format, args))
}

func line(format string, args []interface{}) string {
	return strings.TrimRight(fmt.Sprintf(format, args...), "\n")
}
