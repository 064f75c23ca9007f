// internal/game/session_test.go
package game

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/loteria-live/loteria/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockBroadcaster collects events instead of sending them over WS.
type mockBroadcaster struct {
	mu           sync.Mutex
	allEvents    []Event               // Events sent to everyone
	playerEvents map[uuid.UUID][]Event // Events sent to specific players
}

func newMockBroadcaster() *mockBroadcaster {
	return &mockBroadcaster{
		playerEvents: make(map[uuid.UUID][]Event),
	}
}

func (mb *mockBroadcaster) broadcastFn(ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = append(mb.allEvents, ev)
}

func (mb *mockBroadcaster) broadcastToPlayerFn(playerID uuid.UUID, ev Event) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.playerEvents[playerID] = append(mb.playerEvents[playerID], ev)
}

func (mb *mockBroadcaster) clear() {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	mb.allEvents = []Event{}
	mb.playerEvents = make(map[uuid.UUID][]Event)
}

// eventsOfType returns every room-wide event with the given type.
func (mb *mockBroadcaster) eventsOfType(t EventType) []Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []Event
	for _, ev := range mb.allEvents {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// playerEventsOfType returns every point-to-point event of a type for one player.
func (mb *mockBroadcaster) playerEventsOfType(id uuid.UUID, t EventType) []Event {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	var out []Event
	for _, ev := range mb.playerEvents[id] {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// setupTestSession builds a session with fast timers and a mock broadcaster.
func setupTestSession(t *testing.T) (*Session, *mockBroadcaster) {
	t.Helper()
	s := NewSession("123456")
	mb := newMockBroadcaster()
	s.BroadcastFn = mb.broadcastFn
	s.BroadcastToPlayerFn = mb.broadcastToPlayerFn
	s.TickInterval = 5 * time.Millisecond
	s.RevealGap = 2 * time.Millisecond
	s.CleanupDelay = time.Hour // keep sessions alive for assertions
	return s, mb
}

func join(t *testing.T, s *Session, name, email string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, s.Join(id, models.Identity{Name: name, Email: email}, nil))
	return id
}

func TestJoinAssignsHostAndDealsHands(t *testing.T) {
	s, mb := setupTestSession(t)
	hostID := join(t, s, "Maria", "maria@example.com")
	otherID := join(t, s, "Luis", "")

	assert.Equal(t, hostID, s.HostID)
	assert.Len(t, s.Players, 2)
	assert.Len(t, s.Players[hostID].Hand, models.HandSize)
	assert.Len(t, s.Players[otherID].Hand, models.HandSize)

	// Each joiner gets a private snapshot with their own host flag and hand.
	hostSnaps := mb.playerEventsOfType(hostID, EventRoomState)
	require.Len(t, hostSnaps, 1)
	assert.True(t, *hostSnaps[0].IsHost)
	assert.Len(t, hostSnaps[0].Hand, models.HandSize)

	otherSnaps := mb.playerEventsOfType(otherID, EventRoomState)
	require.Len(t, otherSnaps, 1)
	assert.False(t, *otherSnaps[0].IsHost)

	rosters := mb.eventsOfType(EventPlayersUpdated)
	require.Len(t, rosters, 2)
	assert.Equal(t, 2, rosters[1].PlayersCount)
}

func TestJoinRespectsCapacity(t *testing.T) {
	s, _ := setupTestSession(t)
	for i := 0; i < DefaultMaxPlayers; i++ {
		join(t, s, "Player", "")
	}
	err := s.Join(uuid.New(), models.Identity{Name: "Overflow"}, nil)
	require.Error(t, err)
	assert.Equal(t, ErrCapacity, KindOf(err))
}

func TestStartGameCountdownToPlaying(t *testing.T) {
	s, mb := setupTestSession(t)
	hostID := join(t, s, "Maria", "")
	otherID := join(t, s, "Luis", "")

	err := s.StartGame(otherID)
	require.Error(t, err)
	assert.Equal(t, ErrAuthorization, KindOf(err))

	mb.clear()
	require.NoError(t, s.StartGame(hostID))

	starts := mb.eventsOfType(EventCountdownStart)
	require.Len(t, starts, 1)
	assert.Equal(t, 5, *starts[0].Count)

	// A second start while counting down is ignored.
	require.NoError(t, s.StartGame(hostID))
	assert.Len(t, mb.eventsOfType(EventCountdownStart), 1)

	require.Eventually(t, func() bool {
		s.Mu.Lock()
		defer s.Mu.Unlock()
		return s.State == StatePlaying
	}, 2*time.Second, 5*time.Millisecond)

	s.Mu.Lock()
	firstCard := s.Deck[0]
	s.Mu.Unlock()

	// Every connected player got exactly one game-started carrying their
	// private hand plus the first reveal.
	for _, id := range []uuid.UUID{hostID, otherID} {
		evs := mb.playerEventsOfType(id, EventGameStarted)
		require.Len(t, evs, 1, "player %s should receive one game-started", id)
		assert.Len(t, evs[0].Hand, models.HandSize)
		require.NotNil(t, evs[0].CurrentCard)
		assert.Equal(t, firstCard.Number, evs[0].CurrentCard.Number)
		require.NotNil(t, evs[0].CardIndex)
		assert.Equal(t, 0, *evs[0].CardIndex)
		assert.Equal(t, 5, *evs[0].TimeLeft)
	}
}

func TestRevealAdvancesThroughDeck(t *testing.T) {
	s, mb := setupTestSession(t)
	hostID := join(t, s, "Maria", "")
	require.NoError(t, s.StartGame(hostID))

	require.Eventually(t, func() bool {
		return len(mb.eventsOfType(EventNewCard)) >= 2
	}, 5*time.Second, 5*time.Millisecond)

	cards := mb.eventsOfType(EventNewCard)
	assert.Equal(t, 1, *cards[0].CardIndex)
	assert.Equal(t, 2, *cards[1].CardIndex)
	require.NotNil(t, cards[0].Card)
	assert.NotZero(t, cards[0].Card.Number)

	ticks := mb.eventsOfType(EventTimeUpdate)
	assert.NotEmpty(t, ticks)
}

func TestJoinAfterStartRejectedWithoutMatch(t *testing.T) {
	s, _ := setupTestSession(t)
	join(t, s, "Maria", "maria@example.com")
	s.Mu.Lock()
	s.State = StatePlaying
	s.Mu.Unlock()

	err := s.Join(uuid.New(), models.Identity{Name: "Stranger"}, nil)
	require.Error(t, err)
	assert.Equal(t, ErrStateConflict, KindOf(err))
}

func TestReconnectionByEmailRestoresEntry(t *testing.T) {
	s, mb := setupTestSession(t)
	join(t, s, "Maria", "maria@example.com")
	playerID := join(t, s, "Luis", "luis@example.com")

	s.Mu.Lock()
	s.State = StatePlaying
	hand := s.Players[playerID].Hand
	s.Players[playerID].SelectedCards = 3
	s.Mu.Unlock()

	s.HandleDisconnect(playerID)
	assert.False(t, s.Players[playerID].Connected)
	require.Len(t, mb.eventsOfType(EventPlayerDisconnected), 1)

	newID := uuid.New()
	require.NoError(t, s.Join(newID, models.Identity{Name: "Luis on phone", Email: "luis@example.com"}, nil))

	s.Mu.Lock()
	entry, ok := s.Players[newID]
	_, oldStillThere := s.Players[playerID]
	s.Mu.Unlock()

	require.True(t, ok)
	assert.False(t, oldStillThere)
	assert.True(t, entry.Connected)
	assert.Equal(t, 3, entry.SelectedCards)
	assert.Equal(t, hand, entry.Hand, "reconnection must restore the original hand")

	snaps := mb.playerEventsOfType(newID, EventRoomState)
	require.Len(t, snaps, 1)
	assert.Len(t, snaps[0].Hand, models.HandSize)
}

func TestReconnectionByNameRequiresDisconnected(t *testing.T) {
	s, _ := setupTestSession(t)
	playerID := join(t, s, "Luis", "")
	s.Mu.Lock()
	s.State = StatePlaying
	s.Mu.Unlock()

	// Connected entry with the same name is not a reconnection target.
	err := s.Join(uuid.New(), models.Identity{Name: "Luis"}, nil)
	require.Error(t, err)
	assert.Equal(t, ErrStateConflict, KindOf(err))

	s.HandleDisconnect(playerID)
	newID := uuid.New()
	require.NoError(t, s.Join(newID, models.Identity{Name: "Luis"}, nil))
	assert.True(t, s.Players[newID].Connected)
}

// putInPlay moves a session into playing with a revealed card matching the
// given hand slot, without running any timers.
func putInPlay(s *Session, p *models.PlayerEntry, slotIdx int) {
	s.Mu.Lock()
	defer s.Mu.Unlock()
	s.State = StatePlaying
	s.Deck = NewDeck()
	s.RevealCursor = 1
	card := p.Hand[slotIdx].Card
	s.CurrentCard = &card
}

func TestSelectCardValidation(t *testing.T) {
	s, mb := setupTestSession(t)
	playerID := join(t, s, "Maria", "")
	p := s.Players[playerID]
	putInPlay(s, p, 0)

	err := s.SelectCard(playerID, -1, 0)
	require.Error(t, err)
	assert.Equal(t, ErrValidation, KindOf(err))

	err = s.SelectCard(playerID, models.HandSize, 0)
	require.Error(t, err)
	assert.Equal(t, ErrValidation, KindOf(err))

	// Slot 1 does not match the current reveal (slot 0 does).
	if p.Hand[1].Number != s.CurrentCard.Number {
		err = s.SelectCard(playerID, 1, 0)
		require.Error(t, err)
		assert.Equal(t, ErrStateConflict, KindOf(err))
	}

	mb.clear()
	require.NoError(t, s.SelectCard(playerID, 0, 1))
	assert.Equal(t, 1, p.SelectedCards)
	assert.True(t, p.Hand[0].Selected)

	updates := mb.eventsOfType(EventPlayerUpdated)
	require.Len(t, updates, 1)
	assert.Equal(t, playerID.String(), updates[0].PlayerID)
	assert.Equal(t, 1, *updates[0].SelectedCards)

	// Selecting the same slot twice is rejected and the count holds.
	err = s.SelectCard(playerID, 0, 2)
	require.Error(t, err)
	assert.Equal(t, ErrStateConflict, KindOf(err))
	assert.Equal(t, 1, p.SelectedCards)
}

func TestSelectCardRecountIgnoresClaimedValue(t *testing.T) {
	s, _ := setupTestSession(t)
	playerID := join(t, s, "Maria", "")
	p := s.Players[playerID]
	putInPlay(s, p, 0)

	// Client claims 99; server count is authoritative.
	require.NoError(t, s.SelectCard(playerID, 0, 99))
	assert.Equal(t, 1, p.SelectedCards)
}

func TestWinnerDeclaredOnFullHand(t *testing.T) {
	s, mb := setupTestSession(t)
	playerID := join(t, s, "Maria", "maria@example.com")
	rivalID := join(t, s, "Luis", "")
	p := s.Players[playerID]
	putInPlay(s, p, 0)

	for i := 0; i < models.HandSize; i++ {
		s.Mu.Lock()
		card := p.Hand[i].Card
		s.CurrentCard = &card
		s.Mu.Unlock()
		require.NoError(t, s.SelectCard(playerID, i, i+1))
	}

	assert.True(t, s.Ended)
	assert.Equal(t, StateEnded, s.State)
	assert.Equal(t, playerID, s.WinnerID)
	assert.True(t, p.Winner)

	ends := mb.eventsOfType(EventGameEnded)
	require.Len(t, ends, 1)
	assert.Equal(t, playerID.String(), ends[0].Winner)
	assert.Equal(t, "Maria", ends[0].WinnerName)

	// No further selections once ended; the win is final.
	rival := s.Players[rivalID]
	s.Mu.Lock()
	card := rival.Hand[0].Card
	s.CurrentCard = &card
	s.Mu.Unlock()
	err := s.SelectCard(rivalID, 0, 1)
	require.Error(t, err)
	assert.Equal(t, ErrStateConflict, KindOf(err))
	assert.Len(t, mb.eventsOfType(EventGameEnded), 1)
}

func TestDeckExhaustedFinishesWithoutWinner(t *testing.T) {
	s, mb := setupTestSession(t)
	playerID := join(t, s, "Maria", "")
	p := s.Players[playerID]
	putInPlay(s, p, 0)

	s.Mu.Lock()
	s.RevealCursor = models.DeckSize
	p.SelectedCards = 7
	s.finishExhausted()
	s.Mu.Unlock()

	assert.True(t, s.Ended)
	fins := mb.eventsOfType(EventGameFinished)
	require.Len(t, fins, 1)
	assert.Equal(t, models.DeckSize, fins[0].TotalCards)
	assert.Equal(t, 7, fins[0].Totals[playerID.String()])
}

func TestHostDisconnectWhileWaitingDissolves(t *testing.T) {
	s, mb := setupTestSession(t)
	closed := make(chan string, 1)
	s.OnClose = func(code string) { closed <- code }

	hostID := join(t, s, "Maria", "")
	join(t, s, "Luis", "")

	s.HandleDisconnect(hostID)

	require.Len(t, mb.eventsOfType(EventHostLeft), 1)
	select {
	case code := <-closed:
		assert.Equal(t, "123456", code)
	default:
		t.Fatal("session should have closed")
	}
	assert.True(t, s.Closed())
}

func TestHostDisconnectWhilePlayingMigrates(t *testing.T) {
	s, mb := setupTestSession(t)
	hostID := join(t, s, "Maria", "")
	otherID := join(t, s, "Luis", "")
	s.Mu.Lock()
	s.State = StatePlaying
	s.Mu.Unlock()

	s.HandleDisconnect(hostID)

	news := mb.eventsOfType(EventNewHost)
	require.Len(t, news, 1, "exactly one new-host per migration")
	assert.Equal(t, otherID.String(), news[0].HostID)
	assert.Equal(t, "Luis", news[0].HostName)
	assert.Equal(t, otherID, s.HostID)
	assert.False(t, s.Closed())
}

func TestNonHostDisconnectWhilePlayingKeepsHost(t *testing.T) {
	s, mb := setupTestSession(t)
	hostID := join(t, s, "Maria", "")
	otherID := join(t, s, "Luis", "")
	s.Mu.Lock()
	s.State = StatePlaying
	s.Mu.Unlock()

	s.HandleDisconnect(otherID)

	assert.Empty(t, mb.eventsOfType(EventNewHost))
	assert.Equal(t, hostID, s.HostID)
	assert.False(t, s.Players[otherID].Connected)
	_, stillThere := s.Players[otherID]
	assert.True(t, stillThere, "entry survives for reconnection")
}

func TestLastDisconnectClosesSession(t *testing.T) {
	s, _ := setupTestSession(t)
	closed := make(chan struct{}, 1)
	s.OnClose = func(string) { closed <- struct{}{} }

	hostID := join(t, s, "Maria", "")
	otherID := join(t, s, "Luis", "")
	s.Mu.Lock()
	s.State = StatePlaying
	s.Mu.Unlock()

	s.HandleDisconnect(otherID)
	assert.False(t, s.Closed())
	s.HandleDisconnect(hostID)

	select {
	case <-closed:
	default:
		t.Fatal("session should close once nobody is connected")
	}
}

func TestLeaveRemovesNonHost(t *testing.T) {
	s, mb := setupTestSession(t)
	hostID := join(t, s, "Maria", "")
	otherID := join(t, s, "Luis", "")
	mb.clear()

	err := s.Leave(hostID)
	require.Error(t, err)
	assert.Equal(t, ErrAuthorization, KindOf(err))

	require.NoError(t, s.Leave(otherID))
	_, stillThere := s.Players[otherID]
	assert.False(t, stillThere)
	rosters := mb.eventsOfType(EventPlayersUpdated)
	require.Len(t, rosters, 1)
	assert.Equal(t, 1, rosters[0].PlayersCount)
}

func TestAbandonDissolvesForHostOnly(t *testing.T) {
	s, mb := setupTestSession(t)
	hostID := join(t, s, "Maria", "")
	otherID := join(t, s, "Luis", "")

	err := s.Abandon(otherID)
	require.Error(t, err)
	assert.Equal(t, ErrAuthorization, KindOf(err))
	assert.False(t, s.Closed())

	require.NoError(t, s.Abandon(hostID))
	require.Len(t, mb.eventsOfType(EventHostLeft), 1)
	assert.True(t, s.Closed())
}

// recordingNotifier captures status transitions for assertions.
type recordingNotifier struct {
	mu       sync.Mutex
	statuses []string
}

func (n *recordingNotifier) SetRoomStatus(_ context.Context, _, status string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.statuses = append(n.statuses, status)
	return nil
}

func (n *recordingNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.statuses...)
}

// failingNotifier always refuses the write, like a down database.
type failingNotifier struct{}

func (failingNotifier) SetRoomStatus(context.Context, string, string) error {
	return WrapPersistence(assert.AnError)
}

func TestNotifierFailureDoesNotBlockGameplay(t *testing.T) {
	s, mb := setupTestSession(t)
	s.Notifier = failingNotifier{}

	hostID := join(t, s, "Maria", "")
	require.NoError(t, s.StartGame(hostID))

	require.Eventually(t, func() bool {
		s.Mu.Lock()
		defer s.Mu.Unlock()
		return s.State == StatePlaying
	}, 2*time.Second, 5*time.Millisecond)

	// In-memory state stays authoritative; the room still started and the
	// player still got their hand.
	evs := mb.playerEventsOfType(hostID, EventGameStarted)
	require.Len(t, evs, 1)
	assert.Len(t, evs[0].Hand, models.HandSize)
}

func TestStatusTransitionsReachNotifier(t *testing.T) {
	s, _ := setupTestSession(t)
	rn := &recordingNotifier{}
	s.Notifier = rn

	hostID := join(t, s, "Maria", "")
	require.NoError(t, s.StartGame(hostID))

	require.Eventually(t, func() bool {
		for _, st := range rn.all() {
			if st == StatusPlaying {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Abandon(hostID))
	require.Eventually(t, func() bool {
		for _, st := range rn.all() {
			if st == StatusAbandoned {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
}
