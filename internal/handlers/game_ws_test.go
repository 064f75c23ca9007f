// internal/handlers/game_ws_test.go
package handlers

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/loteria-live/loteria/internal/game"
	"github.com/loteria-live/loteria/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMessageDecode(t *testing.T) {
	raw := `{"type":"card-selected","cardIndex":0,"selectedCards":4}`
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	msg.normalize()

	assert.Equal(t, "card-selected", msg.Type)
	require.NotNil(t, msg.CardIndex, "index zero must survive decoding")
	assert.Equal(t, 0, *msg.CardIndex)
	assert.Equal(t, 4, msg.SelectedCards)
}

func TestClientMessageMissingCardIndex(t *testing.T) {
	raw := `{"type":"card-selected","selectedCards":4}`
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	assert.Nil(t, msg.CardIndex)
}

func TestClientMessageLegacyJoinShape(t *testing.T) {
	raw := `{"type":"joinGame","gameCode":"123456","playerName":"Maria","playerAvatar":"avatar-2"}`
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	msg.normalize()

	assert.Equal(t, "join-room", msg.Type)
	assert.Equal(t, "123456", msg.RoomCode)
	assert.Equal(t, "Maria", msg.PlayerName)
	assert.Equal(t, "avatar-2", msg.PlayerAvatar)
}

func TestBroadcastsWiredBeforeAnyJoin(t *testing.T) {
	logger := logrus.New()
	reg := game.NewRegistry(nil)

	// Many connections race join-room on the same fresh code. Whichever one
	// reaches the session first, the callbacks must already be installed by
	// the time its Join runs, or its room-state snapshot is silently dropped.
	const sockets = 16
	var wg sync.WaitGroup
	sessions := make([]*game.Session, sockets)
	joinErrs := make([]error, sockets)
	for i := 0; i < sockets; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			s, _ := reg.ResolveOrCreate("777777")
			attachBroadcasts(s, logger)
			sessions[idx] = s
			if idx < game.DefaultMaxPlayers {
				joinErrs[idx] = s.Join(uuid.New(), models.Identity{Name: "Player"}, nil)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < game.DefaultMaxPlayers; i++ {
		assert.NoError(t, joinErrs[i])
	}
	for _, s := range sessions {
		s.Mu.Lock()
		assert.NotNil(t, s.BroadcastFn)
		assert.NotNil(t, s.BroadcastToPlayerFn)
		s.Mu.Unlock()
	}
}

func TestAttachBroadcastsKeepsExistingCallbacks(t *testing.T) {
	logger := logrus.New()
	s := game.NewSession("888888")

	calls := 0
	s.BroadcastFn = func(game.Event) { calls++ }
	attachBroadcasts(s, logger)

	s.Mu.Lock()
	s.BroadcastFn(game.Event{})
	assert.Equal(t, 1, calls, "existing callback must not be replaced")
	assert.NotNil(t, s.BroadcastToPlayerFn)
	s.Mu.Unlock()
}

func TestClientMessageModernJoinWins(t *testing.T) {
	raw := `{"type":"join-room","roomCode":"654321","gameCode":"123456"}`
	var msg ClientMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &msg))
	msg.normalize()

	assert.Equal(t, "654321", msg.RoomCode, "modern field takes precedence over legacy")
}
