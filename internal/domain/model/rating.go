// Package model contains domain models passed between layers.
package model

import (
	"errors"
	"slices"
)

// InitialRating is the rating every record starts with at import time.
const InitialRating = 1500

// Validation errors for domain records.
var (
	ErrMissingOwner    = errors.New("missing owner id")
	ErrMissingID       = errors.New("missing id")
	ErrNegativeCounter = errors.New("wins and losses must not be negative")
)

// Rating is the persisted skill estimate for one comparable item of one owner.
type Rating struct {
	ID           string   `json:"id"`            // unique within the owner partition
	ItemID       string   `json:"item_id"`       // catalog entity, e.g. a track id
	Name         string   `json:"name"`          // display label
	Album        string   `json:"album"`         // optional group attribute
	Artists      []string `json:"artists"`       // optional group attribute
	CollectionID string   `json:"collection_id"` // collection the record was imported for
	OwnerID      string   `json:"owner_id"`      // partition key
	Rating       int      `json:"rating"`
	Wins         int      `json:"wins"`
	Losses       int      `json:"losses"`
}

// NewRating returns a fresh record with the initial rating and empty counters.
func NewRating(ownerID, collectionID, id, itemID, name string) Rating {
	return Rating{
		ID:           id,
		ItemID:       itemID,
		Name:         name,
		CollectionID: collectionID,
		OwnerID:      ownerID,
		Rating:       InitialRating,
	}
}

// Validate checks the record invariants the store relies on.
func (r *Rating) Validate() error {
	switch {
	case r.OwnerID == "":
		return ErrMissingOwner
	case r.ID == "":
		return ErrMissingID
	case r.Wins < 0 || r.Losses < 0:
		return ErrNegativeCounter
	}
	return nil
}

// Matches returns the number of comparisons the record took part in.
func (r *Rating) Matches() int {
	return r.Wins + r.Losses
}

// Clone returns a deep copy so callers can mutate without aliasing Artists.
func (r Rating) Clone() Rating {
	r.Artists = slices.Clone(r.Artists)
	return r
}

// Collection is an owned, ordered list of rating record ids (a playlist or album).
type Collection struct {
	ID       string   `json:"id"`
	OwnerID  string   `json:"owner_id"`
	Name     string   `json:"name"`
	SourceID string   `json:"source_id"` // external playlist/album id
	Items    []string `json:"items"`     // rating record ids in collection order
}

// Validate checks the collection has an owner and an id.
func (c *Collection) Validate() error {
	switch {
	case c.OwnerID == "":
		return ErrMissingOwner
	case c.ID == "":
		return ErrMissingID
	}
	return nil
}

// Contains reports whether id is one of the collection's items.
func (c *Collection) Contains(id string) bool {
	return slices.Contains(c.Items, id)
}

// Clone returns a deep copy of the collection.
func (c Collection) Clone() Collection {
	c.Items = slices.Clone(c.Items)
	return c
}
