// internal/models/player.go
package models

import (
	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// PlayerEntry is a single player's state inside a game session. It is owned
// exclusively by its session and re-keyed (not recreated) when the player
// reconnects under a new connection id.
type PlayerEntry struct {
	ID     uuid.UUID `json:"id"` // current connection id
	Name   string    `json:"name"`
	Avatar string    `json:"avatar,omitempty"`
	Email  string    `json:"email,omitempty"`

	// SelectedCards is recomputed server-side from Hand; it equals the number
	// of slots with Selected = true and never decreases.
	SelectedCards int `json:"selectedCards"`

	Connected bool `json:"connected"`
	Winner    bool `json:"winner"`

	// Hand holds the player's 16 dealt slots. It is private to the player and
	// only ever sent point-to-point, never in room broadcasts.
	Hand []*CardSlot `json:"-"`

	Conn *websocket.Conn `json:"-"`
}

// HasEmail reports whether the entry carries a non-anonymous identity.
func (p *PlayerEntry) HasEmail() bool { return p.Email != "" }
