// internal/game/session.go
package game

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/loteria-live/loteria/internal/cache"
	"github.com/loteria-live/loteria/internal/models"
)

// State is the session lifecycle phase. Transitions are strictly forward.
type State string

const (
	StateWaiting  State = "waiting"
	StateStarting State = "starting"
	StatePlaying  State = "playing"
	StateEnded    State = "ended"
)

// Durable room statuses reported to the StatusNotifier.
const (
	StatusWaiting   = "waiting"
	StatusPlaying   = "playing"
	StatusFinished  = "finished"
	StatusAbandoned = "abandoned"
)

// StatusNotifier is the durable room registry as seen from the engine. Calls
// are fire-and-forget: failures are logged and in-memory state stays
// authoritative.
type StatusNotifier interface {
	SetRoomStatus(ctx context.Context, code, status string) error
}

// DefaultMaxPlayers is the per-room player cap.
const DefaultMaxPlayers = 5

// Session holds the entire state for one live room in memory.
type Session struct {
	Code       string
	MaxPlayers int

	Players map[uuid.UUID]*models.PlayerEntry
	HostID  uuid.UUID

	State        State
	Deck         []models.Card
	RevealCursor int          // cards shown so far; CurrentCard = Deck[RevealCursor-1]
	CurrentCard  *models.Card
	TimeLeft     int
	WinnerID     uuid.UUID
	Ended        bool

	// Timing knobs, overridable in tests.
	CountdownFrom int
	TickInterval  time.Duration
	RevealSeconds int
	RevealGap     time.Duration
	CleanupDelay  time.Duration

	Mu sync.Mutex

	// BroadcastFn sends an event to every connected member. If nil, no
	// broadcast is done.
	BroadcastFn func(ev Event)
	// BroadcastToPlayerFn sends an event to a single member.
	BroadcastToPlayerFn func(id uuid.UUID, ev Event)

	Notifier StatusNotifier

	// OnClose is invoked once when the session shuts down, typically to remove
	// it from the registry.
	OnClose func(code string)

	countdown    int
	timer        *time.Timer // single slot: countdown tick, reveal tick, or gap
	timerGen     int
	cleanupTimer *time.Timer
	closed       bool
	eventIndex   int
}

// NewSession builds an empty waiting session for a room code.
func NewSession(code string) *Session {
	return &Session{
		Code:          code,
		MaxPlayers:    DefaultMaxPlayers,
		Players:       make(map[uuid.UUID]*models.PlayerEntry),
		State:         StateWaiting,
		TimeLeft:      30,
		CountdownFrom: 5,
		TickInterval:  time.Second,
		RevealSeconds: 5,
		RevealGap:     500 * time.Millisecond,
		CleanupDelay:  30 * time.Second,
	}
}

// Join admits a connection into the session, either as a new player or by
// re-keying a returning player's entry. On success the joining socket receives
// the full room snapshot and the whole room gets an updated roster.
func (s *Session) Join(connID uuid.UUID, ident models.Identity, conn *websocket.Conn) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.closed {
		return newError(ErrNotFound, "room %s no longer exists", s.Code)
	}

	entry, oldID := s.matchReturning(ident)

	if s.State == StateStarting || s.State == StatePlaying {
		if entry == nil {
			return newError(ErrStateConflict, "room %s has already started", s.Code)
		}
	}

	if entry != nil {
		s.rekeyPlayer(entry, oldID, connID, conn)
		log.Printf("Room %s: player %s reconnected as %s (was %s)", s.Code, entry.Name, connID, oldID)
	} else {
		if len(s.Players) >= s.MaxPlayers {
			return newError(ErrCapacity, "room %s is full", s.Code)
		}
		entry = &models.PlayerEntry{
			ID:        connID,
			Name:      ident.Name,
			Avatar:    ident.Avatar,
			Email:     ident.Email,
			Hand:      DealHand(),
			Connected: true,
			Conn:      conn,
		}
		s.Players[connID] = entry
		if s.HostID == uuid.Nil {
			s.HostID = connID
		}
		log.Printf("Room %s: player %s joined as %s (%d total)", s.Code, entry.Name, connID, len(s.Players))
	}

	s.logEvent(connID, "player_join", map[string]interface{}{"name": entry.Name, "reconnect": oldID != uuid.Nil})

	s.broadcastTo(connID, s.snapshotFor(connID))
	s.broadcast(s.rosterPayload())
	return nil
}

// matchReturning finds a previously registered entry for this identity: by
// exact email first, else by display name when that entry is currently
// disconnected. Assumes lock is held.
func (s *Session) matchReturning(ident models.Identity) (*models.PlayerEntry, uuid.UUID) {
	if ident.Email != "" {
		for id, p := range s.Players {
			if p.Email == ident.Email {
				return p, id
			}
		}
	}
	for id, p := range s.Players {
		if !p.Connected && p.Name == ident.Name {
			return p, id
		}
	}
	return nil, uuid.Nil
}

// rekeyPlayer moves an entry under its new connection id, preserving hand,
// progress and winner flag. Assumes lock is held.
func (s *Session) rekeyPlayer(entry *models.PlayerEntry, oldID, newID uuid.UUID, conn *websocket.Conn) {
	delete(s.Players, oldID)
	entry.ID = newID
	entry.Conn = conn
	entry.Connected = true
	s.Players[newID] = entry

	if len(entry.Hand) == 0 {
		// Should not happen; hands are dealt at first join. Regenerate rather
		// than leave the player unable to play.
		log.Printf("Room %s: regenerating empty hand for returning player %s", s.Code, entry.Name)
		entry.Hand = DealHand()
		entry.SelectedCards = 0
	}
	if s.HostID == oldID {
		s.HostID = newID
	}
}

// snapshotFor renders the room-state event for one recipient. Assumes lock is held.
func (s *Session) snapshotFor(connID uuid.UUID) Event {
	ev := Event{
		Type:      EventRoomState,
		Players:   s.playersByID(),
		GameState: s.State,
		IsHost:    boolPtr(s.HostID == connID),
		GameEnded: s.Ended,
		TimeLeft:  intPtr(s.TimeLeft),
	}
	if s.CurrentCard != nil {
		ev.CurrentCard = s.CurrentCard
		ev.CardIndex = intPtr(s.RevealCursor - 1)
	}
	if s.WinnerID != uuid.Nil {
		ev.Winner = s.WinnerID.String()
	}
	if p, ok := s.Players[connID]; ok {
		ev.Hand = p.Hand
	}
	return ev
}

// StartGame begins the pre-game countdown. Host only; requires at least one
// connected player; quietly ignores a second start once the room has left
// waiting.
func (s *Session) StartGame(connID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.closed {
		return newError(ErrNotFound, "room %s no longer exists", s.Code)
	}
	if s.HostID != connID {
		return newError(ErrAuthorization, "only the host can start the game")
	}
	if s.State != StateWaiting {
		log.Printf("Room %s: start ignored, already %s", s.Code, s.State)
		return nil
	}
	if s.countConnected() < 1 {
		return newError(ErrValidation, "at least one connected player is required")
	}

	s.State = StateStarting
	s.countdown = s.CountdownFrom
	s.logEvent(connID, "game_countdown_start", map[string]interface{}{"count": s.countdown})
	s.broadcast(Event{Type: EventCountdownStart, Count: intPtr(s.countdown)})
	s.schedule(s.TickInterval, s.countdownTick)
	return nil
}

// SelectCard marks a slot in the caller's hand, validating in order: index in
// bounds, slot matches the current reveal, not already selected. The
// server-side recount is canonical; claimed is the client's advisory value and
// only logged on mismatch.
func (s *Session) SelectCard(connID uuid.UUID, cardIndex, claimed int) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.closed || s.Ended {
		return newError(ErrStateConflict, "the game has ended")
	}
	if s.State != StatePlaying {
		return newError(ErrStateConflict, "no card selection outside gameplay")
	}
	p, ok := s.Players[connID]
	if !ok {
		return newError(ErrNotFound, "you are not in this room")
	}
	if cardIndex < 0 || cardIndex >= len(p.Hand) {
		return newError(ErrValidation, "card index %d out of range", cardIndex)
	}
	slot := p.Hand[cardIndex]
	if s.CurrentCard == nil || slot.Number != s.CurrentCard.Number {
		return newError(ErrStateConflict, "card %d is not the current reveal", slot.Number)
	}
	if slot.Selected {
		return newError(ErrStateConflict, "card %d is already selected", slot.Number)
	}

	slot.Selected = true
	count := 0
	for _, cs := range p.Hand {
		if cs.Selected {
			count++
		}
	}
	p.SelectedCards = count
	if claimed != count {
		log.Printf("Room %s: player %s reported %d selected, server counts %d", s.Code, p.Name, claimed, count)
	}

	s.logEvent(connID, "card_selected", map[string]interface{}{"number": slot.Number, "selected": count})
	s.broadcast(Event{
		Type:          EventPlayerUpdated,
		PlayerID:      connID.String(),
		SelectedCards: intPtr(count),
	})

	if count >= models.HandSize {
		s.declareWinner(p)
	}
	return nil
}

// declareWinner ends the game with p as the sole winner. First evaluation
// wins; a second player reaching 16 in the same instant is rejected upstream
// by the Ended guard. Assumes lock is held.
func (s *Session) declareWinner(p *models.PlayerEntry) {
	if s.Ended {
		return
	}
	s.Ended = true
	s.State = StateEnded
	s.WinnerID = p.ID
	p.Winner = true
	s.cancelTimer()

	log.Printf("Room %s: %s wins", s.Code, p.Name)
	s.logEvent(p.ID, "game_won", map[string]interface{}{"winner": p.Name})
	s.broadcast(Event{
		Type:       EventGameEnded,
		Winner:     p.ID.String(),
		WinnerName: p.Name,
	})
	s.notifyStatus(StatusFinished)
	s.scheduleCleanup()
}

// finishExhausted ends the game after the full deck has been revealed with no
// winner. Assumes lock is held.
func (s *Session) finishExhausted() {
	if s.Ended {
		return
	}
	s.Ended = true
	s.State = StateEnded
	s.cancelTimer()

	totals := make(map[string]int, len(s.Players))
	for id, p := range s.Players {
		totals[id.String()] = p.SelectedCards
	}
	log.Printf("Room %s: deck exhausted after %d reveals, no winner", s.Code, s.RevealCursor)
	s.logEvent(uuid.Nil, "game_finished", map[string]interface{}{"totalCards": s.RevealCursor})
	s.broadcast(Event{
		Type:       EventGameFinished,
		TotalCards: s.RevealCursor,
		Totals:     totals,
		Players:    s.playersByID(),
	})
	s.notifyStatus(StatusFinished)
	s.scheduleCleanup()
}

// HandleDisconnect processes a transport-level connection loss for connID.
func (s *Session) HandleDisconnect(connID uuid.UUID) {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.closed {
		return
	}
	p, ok := s.Players[connID]
	if !ok {
		return
	}
	wasHost := s.HostID == connID
	s.logEvent(connID, "player_disconnect", map[string]interface{}{"name": p.Name, "state": string(s.State)})

	switch s.State {
	case StatePlaying, StateStarting:
		// Keep the entry (and its hand) for a reconnection match.
		p.Connected = false
		p.Conn = nil
		s.broadcast(Event{Type: EventPlayerDisconnected, PlayerID: connID.String()})
		s.broadcast(s.rosterPayload())
		if wasHost {
			s.migrateHost()
		}
	case StateWaiting:
		if wasHost {
			s.dissolve("the host has left the room")
			return
		}
		delete(s.Players, connID)
		s.broadcast(s.rosterPayload())
	default: // ended
		p.Connected = false
		p.Conn = nil
	}

	if s.countConnected() == 0 {
		log.Printf("Room %s: no connected players remain, closing", s.Code)
		if !s.Ended {
			s.notifyStatus(StatusAbandoned)
		}
		s.close()
	}
}

// migrateHost elects any still-connected player as the new host. Assumes lock
// is held.
func (s *Session) migrateHost() {
	for id, p := range s.Players {
		if p.Connected {
			s.HostID = id
			log.Printf("Room %s: host migrated to %s (%s)", s.Code, id, p.Name)
			s.broadcast(Event{Type: EventNewHost, HostID: id.String(), HostName: p.Name})
			return
		}
	}
	// Nobody left to promote; the zero-connected check in the caller closes
	// the session.
}

// Leave removes a non-host player who explicitly left the room.
func (s *Session) Leave(connID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.closed {
		return newError(ErrNotFound, "room %s no longer exists", s.Code)
	}
	if s.HostID == connID {
		return newError(ErrAuthorization, "the host must abandon the game instead of leaving")
	}
	p, ok := s.Players[connID]
	if !ok {
		return newError(ErrNotFound, "you are not in this room")
	}

	delete(s.Players, connID)
	log.Printf("Room %s: player %s left (%d remain)", s.Code, p.Name, len(s.Players))
	s.logEvent(connID, "player_leave", map[string]interface{}{"name": p.Name})
	s.broadcast(s.rosterPayload())

	if s.countConnected() == 0 {
		if !s.Ended {
			s.notifyStatus(StatusAbandoned)
		}
		s.close()
	}
	return nil
}

// Abandon dissolves the session on the host's explicit request.
func (s *Session) Abandon(connID uuid.UUID) error {
	s.Mu.Lock()
	defer s.Mu.Unlock()

	if s.closed {
		return newError(ErrNotFound, "room %s no longer exists", s.Code)
	}
	if s.HostID != connID {
		return newError(ErrAuthorization, "only the host can abandon the game")
	}
	s.logEvent(connID, "host_abandon", nil)
	s.dissolve("the host has abandoned the game")
	return nil
}

// dissolve tears the room down for everyone: host-left broadcast, abandoned
// status, registry removal. Assumes lock is held.
func (s *Session) dissolve(message string) {
	s.broadcast(Event{Type: EventHostLeft, Message: message})
	s.notifyStatus(StatusAbandoned)
	s.close()
}

// close cancels every timer and removes the session from its registry.
// Idempotent. Assumes lock is held.
func (s *Session) close() {
	if s.closed {
		return
	}
	s.closed = true
	s.cancelTimer()
	if s.cleanupTimer != nil {
		s.cleanupTimer.Stop()
		s.cleanupTimer = nil
	}
	if s.OnClose != nil {
		s.OnClose(s.Code)
	}
}

// Closed reports whether the session has been shut down.
func (s *Session) Closed() bool {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	return s.closed
}

// countConnected returns the number of players currently marked connected.
// Assumes lock is held.
func (s *Session) countConnected() int {
	n := 0
	for _, p := range s.Players {
		if p.Connected {
			n++
		}
	}
	return n
}

// broadcast fans an event out to the whole room. Assumes lock is held.
func (s *Session) broadcast(ev Event) {
	if s.BroadcastFn != nil {
		s.BroadcastFn(ev)
	}
}

// broadcastTo sends an event to one member. Assumes lock is held.
func (s *Session) broadcastTo(id uuid.UUID, ev Event) {
	if s.BroadcastToPlayerFn != nil {
		s.BroadcastToPlayerFn(id, ev)
	}
}

// notifyStatus reports a room status transition to the durable registry
// without blocking gameplay. Failures are logged and otherwise ignored;
// in-memory state stays authoritative.
func (s *Session) notifyStatus(status string) {
	if s.Notifier == nil {
		return
	}
	go func(n StatusNotifier, code string) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := n.SetRoomStatus(ctx, code, status); err != nil {
			log.Printf("Room %s: status update to %q: %v", code, status, WrapPersistence(err))
		}
	}(s.Notifier, s.Code)
}

// logEvent pushes an action record onto the Redis history queue. Asynchronous
// and nil-safe; the queue being down never affects gameplay.
func (s *Session) logEvent(actorID uuid.UUID, eventType string, payload map[string]interface{}) {
	s.eventIndex++
	if payload == nil {
		payload = make(map[string]interface{})
	}
	record := cache.RoomEventRecord{
		RoomCode:   s.Code,
		EventIndex: s.eventIndex,
		ActorID:    actorID.String(),
		EventType:  eventType,
		Payload:    payload,
		Timestamp:  time.Now().UnixMilli(),
	}
	go func(rec cache.RoomEventRecord) {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if cache.Rdb == nil {
			return
		}
		if err := cache.PublishRoomEvent(ctx, rec); err != nil {
			log.Printf("Room %s: failed to publish %s event: %v", rec.RoomCode, rec.EventType, err)
		}
	}(record)
}
