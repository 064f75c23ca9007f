// internal/models/room.go
package models

import "time"

// Room is the durable registry row for a game room. The live session in
// memory is authoritative while the room is up; this row exists so codes stay
// unique, hosts can be pointed back at their active room, and stale rooms can
// be swept.
type Room struct {
	Code      string     `json:"code"`
	HostName  string     `json:"hostName"`
	HostEmail string     `json:"hostEmail,omitempty"`
	Status    string     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	ExpiresAt time.Time  `json:"expiresAt"`
}
