// Package catalog turns imported playlists and albums into rating records.
package catalog

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/okian/songsort/internal/domain/model"
	"github.com/okian/songsort/internal/validation"
)

// Kind is the source of an import.
type Kind string

// Supported import kinds.
const (
	KindPlaylist Kind = "playlist"
	KindAlbum    Kind = "album"
)

// namespace scopes every derived id to this application.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/okian/songsort"))

// Item is one track of an import.
type Item struct {
	ItemID  string   `json:"item_id" yaml:"item_id" validate:"required,max=256"`
	Name    string   `json:"name" yaml:"name" validate:"required"`
	Album   string   `json:"album,omitempty" yaml:"album"`
	Artists []string `json:"artists,omitempty" yaml:"artists"`
}

// Import describes a collection to create or refresh. When ID is empty the
// collection id is derived from the owner, kind and SourceID, so importing
// the same source twice refreshes one collection.
type Import struct {
	ID       string `json:"id,omitempty" yaml:"id" validate:"omitempty,max=128"`
	Name     string `json:"name" yaml:"name" validate:"required"`
	SourceID string `json:"source_id,omitempty" yaml:"source_id" validate:"required_without=ID"`
	Kind     Kind   `json:"kind,omitempty" yaml:"kind" validate:"omitempty,oneof=playlist album"`
	Items    []Item `json:"items" yaml:"items" validate:"dive"`
}

// Validate checks the import's tags.
func (imp *Import) Validate() error {
	return validation.Struct(imp)
}

// CollectionID returns the id the import is stored under for owner.
func (imp *Import) CollectionID(owner string) string {
	if imp.ID != "" {
		return imp.ID
	}
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("collection\x1f%s\x1f%s\x1f%s", owner, imp.SourceKind(), imp.SourceID))).String()
}

// SourceKind returns the import kind, defaulting to a playlist.
func (imp *Import) SourceKind() Kind {
	if imp.Kind == "" {
		return KindPlaylist
	}
	return imp.Kind
}

// RecordID derives the rating record id of an item within a collection.
// The same item in two collections gets two independent records.
func RecordID(owner, collectionID, itemID string) string {
	return uuid.NewSHA1(namespace, []byte(fmt.Sprintf("rating\x1f%s\x1f%s\x1f%s", owner, collectionID, itemID))).String()
}

// Build returns the collection and the initial rating of every item.
// Repeated item ids are kept once, at their first position.
func (imp *Import) Build(owner string) (model.Collection, []model.Rating) {
	c := model.Collection{
		ID:       imp.CollectionID(owner),
		OwnerID:  owner,
		Name:     imp.Name,
		SourceID: imp.SourceID,
		Items:    make([]string, 0, len(imp.Items)),
	}
	ratings := make([]model.Rating, 0, len(imp.Items))
	seen := make(map[string]struct{}, len(imp.Items))
	for _, it := range imp.Items {
		if _, ok := seen[it.ItemID]; ok {
			continue
		}
		seen[it.ItemID] = struct{}{}

		r := model.NewRating(owner, c.ID, RecordID(owner, c.ID, it.ItemID), it.ItemID, it.Name)
		r.Album = it.Album
		r.Artists = append([]string(nil), it.Artists...)
		ratings = append(ratings, r)
		c.Items = append(c.Items, r.ID)
	}
	return c, ratings
}
