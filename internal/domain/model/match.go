package model

import "time"

// Match records one applied comparison and the ratings it produced.
type Match struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	CollectionID string    `json:"collection_id"`
	SessionID    string    `json:"session_id"`
	WinnerID     string    `json:"winner_id"`
	LoserID      string    `json:"loser_id"`
	WinnerRating int       `json:"winner_rating"` // after the exchange
	LoserRating  int       `json:"loser_rating"`  // after the exchange
	Delta        int       `json:"delta"`         // points gained by the winner
	At           time.Time `json:"at"`
}
