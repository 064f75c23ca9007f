// internal/game/events.go
package game

import (
	"github.com/loteria-live/loteria/internal/models"
)

// EventType is an enum-like type for outbound session events.
type EventType string

const (
	EventRoomState          EventType = "room-state"           // full snapshot, joining socket only
	EventPlayersUpdated     EventType = "players-updated"      // roster change
	EventCountdownStart     EventType = "countdown-start"      // start-of-game 5 count
	EventCountdownUpdate    EventType = "countdown-update"     // per-second countdown tick
	EventGameStarted        EventType = "game-started"         // per-player: hand + first reveal
	EventNewCard            EventType = "new-card"             // next reveal
	EventTimeUpdate         EventType = "time-update"          // per-second reveal window tick
	EventPlayerUpdated      EventType = "player-updated"       // selection progress
	EventGameEnded          EventType = "game-ended"           // winner declared
	EventGameFinished       EventType = "game-finished"        // deck exhausted, no winner
	EventPlayerDisconnected EventType = "player-disconnected"  // mid-game connection loss
	EventNewHost            EventType = "new-host"             // host migration
	EventHostLeft           EventType = "host-left"            // session dissolved by host
	EventError              EventType = "error"                // single-socket error report
	EventGameAlreadyStarted EventType = "game-already-started" // join rejected, no reconnection match
)

// Event is the single outbound message shape. Fields are omitted unless the
// event type uses them; clients switch on Type.
type Event struct {
	Type EventType `json:"type"`

	Players      map[string]*models.PlayerEntry `json:"players,omitempty"`
	PlayersCount int                            `json:"playersCount,omitempty"`

	GameState State `json:"gameState,omitempty"`
	IsHost    *bool `json:"isHost,omitempty"`
	GameEnded bool  `json:"gameEnded,omitempty"`

	Hand        []*models.CardSlot `json:"playerCards,omitempty"`
	Card        *models.Card       `json:"card,omitempty"`
	CurrentCard *models.Card       `json:"currentCard,omitempty"`
	CardIndex   *int               `json:"cardIndex,omitempty"`
	TimeLeft    *int               `json:"timeLeft,omitempty"`
	Count       *int               `json:"count,omitempty"`
	Timestamp   int64              `json:"timestamp,omitempty"`

	PlayerID      string `json:"playerId,omitempty"`
	SelectedCards *int   `json:"selectedCards,omitempty"`

	Winner     string         `json:"winner,omitempty"`
	WinnerName string         `json:"winnerName,omitempty"`
	TotalCards int            `json:"totalCards,omitempty"`
	Totals     map[string]int `json:"totals,omitempty"`

	HostID   string `json:"hostId,omitempty"`
	HostName string `json:"hostName,omitempty"`

	Message string `json:"message,omitempty"`
}

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

// rosterPayload builds the players-updated broadcast. Assumes lock is held.
func (s *Session) rosterPayload() Event {
	return Event{
		Type:         EventPlayersUpdated,
		Players:      s.playersByID(),
		PlayersCount: len(s.Players),
	}
}

// playersByID renders the players map with string keys for JSON.
// Assumes lock is held.
func (s *Session) playersByID() map[string]*models.PlayerEntry {
	out := make(map[string]*models.PlayerEntry, len(s.Players))
	for id, p := range s.Players {
		out[id.String()] = p
	}
	return out
}
