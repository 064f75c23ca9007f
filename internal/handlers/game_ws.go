// internal/handlers/game_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/loteria-live/loteria/internal/auth"
	"github.com/loteria-live/loteria/internal/game"
	"github.com/loteria-live/loteria/internal/models"
	"github.com/sirupsen/logrus"
)

// ClientMessage is the single inbound WebSocket message shape. Clients tag
// every message with Type; the other fields apply per type.
type ClientMessage struct {
	Type string `json:"type"`

	// RoomCode targets a room on join-room. Later messages in the same
	// connection act on the room already joined.
	RoomCode string `json:"roomCode,omitempty"`

	// SessionID is an optional hint from clients resuming a prior connection.
	// Accepted for compatibility; reconnection is decided by identity matching,
	// not by this value.
	SessionID string `json:"sessionId,omitempty"`

	// CardIndex is the hand slot for card-selected. A pointer so a missing
	// field is distinguishable from slot 0.
	CardIndex *int `json:"cardIndex,omitempty"`

	// SelectedCards is the client's own running count on card-selected. It is
	// advisory only; the server recomputes the real count.
	SelectedCards int `json:"selectedCards,omitempty"`

	// Fields kept for the first client generation, which sent gameCode and
	// inline identity on its join message.
	GameCode     string `json:"gameCode,omitempty"`
	PlayerName   string `json:"playerName,omitempty"`
	PlayerAvatar string `json:"playerAvatar,omitempty"`
}

// normalize maps legacy message shapes onto the current schema.
func (m *ClientMessage) normalize() {
	if m.Type == "joinGame" {
		m.Type = "join-room"
	}
	if m.RoomCode == "" && m.GameCode != "" {
		m.RoomCode = m.GameCode
	}
}

// GameWSHandler upgrades the HTTP connection to WebSocket and runs the
// per-connection read loop. Each socket gets a fresh connection id; identity
// comes from the request (JWT or query params) and may be overridden by a
// legacy join message.
func GameWSHandler(logger *logrus.Logger, gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{"game"},
			OriginPatterns: []string{"*"}, // Adjust for production security.
		})
		if err != nil {
			logger.Warnf("WebSocket accept error: %v", err)
			return
		}
		defer c.Close(websocket.StatusInternalError, "Internal server error during handler exit.")

		if c.Subprotocol() != "game" {
			logger.Warnf("Client connected with invalid subprotocol: %s", c.Subprotocol())
			c.Close(BadSubprotocolError, "Client must use the 'game' subprotocol.")
			return
		}

		connID := uuid.New()
		ident := auth.ResolveIdentity(r)
		logger.Infof("WebSocket connection %s established from %s (%s)", connID, r.RemoteAddr, ident.Name)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := readGameMessages(ctx, c, gs, connID, ident, logger)

		logger.Infof("Connection %s read loop exited.", connID)
		if sess != nil {
			sess.HandleDisconnect(connID)
		}
	}
}

// readGameMessages continuously reads client messages, unmarshals them, and
// routes them to the session. It returns the session the connection joined, if
// any, so the caller can run disconnect handling.
func readGameMessages(ctx context.Context, c *websocket.Conn, gs *GameServer, connID uuid.UUID, ident models.Identity, logger *logrus.Logger) *game.Session {
	var sess *game.Session

	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				logger.Infof("WebSocket closed normally for connection %s.", connID)
			} else if strings.Contains(err.Error(), "context canceled") {
				logger.Infof("WebSocket context canceled for connection %s.", connID)
			} else {
				logger.Warnf("Error reading from WebSocket for connection %s: %v (Status: %d)", connID, err, status)
			}
			return sess
		}

		if msgType != websocket.MessageText {
			logger.Warnf("Received non-text message type %d from connection %s. Ignoring.", msgType, connID)
			continue
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warnf("Invalid JSON from connection %s: %v. Data: %s", connID, err, string(data))
			sendWsError(ctx, c, "Invalid JSON format.")
			continue
		}
		msg.normalize()
		logger.Debugf("Received '%s' from connection %s.", msg.Type, connID)

		switch msg.Type {
		case "join-room":
			if msg.RoomCode == "" {
				sendWsError(ctx, c, "Missing roomCode.")
				continue
			}
			if sess != nil {
				sendWsError(ctx, c, "This connection has already joined a room.")
				continue
			}
			joinIdent := ident
			if msg.PlayerName != "" {
				joinIdent.Name = msg.PlayerName
			}
			if msg.PlayerAvatar != "" {
				joinIdent.Avatar = msg.PlayerAvatar
			}

			s, _ := gs.Registry.ResolveOrCreate(msg.RoomCode)
			attachBroadcasts(s, logger)
			if err := s.Join(connID, joinIdent, c); err != nil {
				switch game.KindOf(err) {
				case game.ErrStateConflict:
					sendWsEvent(ctx, c, game.Event{Type: game.EventGameAlreadyStarted, Message: err.Error()})
				case game.ErrCapacity:
					sendWsError(ctx, c, err.Error())
					c.Close(RoomFullError, "room is full")
				case game.ErrNotFound:
					sendWsError(ctx, c, err.Error())
					c.Close(RoomNotFoundError, "room no longer exists")
				default:
					sendWsError(ctx, c, err.Error())
				}
				continue
			}
			sess = s

		case "start-game":
			if sess == nil {
				sendWsError(ctx, c, "Join a room first.")
				continue
			}
			if err := sess.StartGame(connID); err != nil {
				sendWsError(ctx, c, err.Error())
			}

		case "card-selected":
			if sess == nil {
				sendWsError(ctx, c, "Join a room first.")
				continue
			}
			if msg.CardIndex == nil {
				sendWsError(ctx, c, "Missing cardIndex.")
				continue
			}
			if err := sess.SelectCard(connID, *msg.CardIndex, msg.SelectedCards); err != nil {
				sendWsError(ctx, c, err.Error())
			}

		case "leave-game":
			if sess == nil {
				continue
			}
			if err := sess.Leave(connID); err != nil {
				sendWsError(ctx, c, err.Error())
				continue
			}
			sess = nil

		case "host-abandon-game":
			if sess == nil {
				continue
			}
			if err := sess.Abandon(connID); err != nil {
				sendWsError(ctx, c, err.Error())
				continue
			}
			sess = nil

		case "ping":
			logger.Tracef("Received ping from connection %s, sending pong.", connID)
			sendWsMessage(ctx, c, map[string]string{"type": "pong"})

		default:
			logger.Warnf("Unknown message type '%s' from connection %s.", msg.Type, connID)
			sendWsError(ctx, c, fmt.Sprintf("Unknown message type: %s", msg.Type))
		}

		select {
		case <-ctx.Done():
			logger.Infof("Context canceled after processing message for connection %s.", connID)
			return sess
		default:
		}
	}
}

// attachBroadcasts installs the socket fan-out callbacks if they are not set
// yet. It runs on every join, under the session lock, so a second connection
// racing the creator on a fresh code can never join before the callbacks are
// wired and lose its room-state snapshot.
func attachBroadcasts(s *game.Session, logger *logrus.Logger) {
	s.Mu.Lock()
	if s.BroadcastFn == nil {
		s.BroadcastFn = createBroadcastFunc(s, logger)
	}
	if s.BroadcastToPlayerFn == nil {
		s.BroadcastToPlayerFn = createBroadcastToPlayerFunc(s, logger)
	}
	s.Mu.Unlock()
}

// createBroadcastFunc returns a function suitable for Session.BroadcastFn.
// It snapshots the connected members and sends the event asynchronously so the
// session lock is never held across a socket write.
func createBroadcastFunc(s *game.Session, logger *logrus.Logger) func(ev game.Event) {
	return func(ev game.Event) {
		// Called while the session lock is held; collect targets only, then
		// marshal and write without the lock.
		conns := make(map[uuid.UUID]*websocket.Conn, len(s.Players))
		for id, p := range s.Players {
			if p.Connected && p.Conn != nil {
				conns[id] = p.Conn
			}
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal broadcast event (%s) for room %s: %v", ev.Type, s.Code, err)
			return
		}

		go func(targets map[uuid.UUID]*websocket.Conn, data []byte, code string) {
			for id, conn := range targets {
				ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				err := conn.Write(ctx, websocket.MessageText, data)
				cancel()
				if err != nil {
					logger.Warnf("Failed to write broadcast message to player %s in room %s: %v", id, code, err)
				}
			}
		}(conns, msgBytes, s.Code)
	}
}

// createBroadcastToPlayerFunc returns a function suitable for
// Session.BroadcastToPlayerFn.
func createBroadcastToPlayerFunc(s *game.Session, logger *logrus.Logger) func(targetID uuid.UUID, ev game.Event) {
	return func(targetID uuid.UUID, ev game.Event) {
		// Called while the session lock is held.
		var targetConn *websocket.Conn
		if p, ok := s.Players[targetID]; ok && p.Connected && p.Conn != nil {
			targetConn = p.Conn
		}
		if targetConn == nil {
			return
		}

		msgBytes, err := json.Marshal(ev)
		if err != nil {
			logger.Errorf("Failed to marshal private event (%s) for player %s in room %s: %v", ev.Type, targetID, s.Code, err)
			return
		}

		go func(conn *websocket.Conn, data []byte, playerID uuid.UUID, code string) {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err := conn.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				logger.Warnf("Failed to write private message to player %s in room %s: %v", playerID, code, err)
			}
		}(targetConn, msgBytes, targetID, s.Code)
	}
}

// sendWsMessage marshals a message and sends it to the WebSocket client.
// Includes logging for errors and uses a write timeout.
func sendWsMessage(ctx context.Context, c *websocket.Conn, message interface{}) {
	if c == nil {
		log.Println("Error: Attempted to send WebSocket message on nil connection.")
		return
	}
	msgBytes, err := json.Marshal(message)
	if err != nil {
		log.Printf("Error marshaling WebSocket message: %v", err)
		return
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = c.Write(writeCtx, websocket.MessageText, msgBytes)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Error writing WebSocket message: %v (Status: %d)", err, status)
		} else if strings.Contains(err.Error(), "context deadline exceeded") {
			log.Printf("Timeout writing WebSocket message: %v", err)
		}
	}
}

// sendWsEvent sends a typed session event to a single client outside the
// normal broadcast path.
func sendWsEvent(ctx context.Context, c *websocket.Conn, ev game.Event) {
	sendWsMessage(ctx, c, ev)
}

// sendWsError sends a structured error message to the client.
func sendWsError(ctx context.Context, c *websocket.Conn, errorMsg string) {
	sendWsMessage(ctx, c, map[string]interface{}{
		"type":    "error",
		"message": errorMsg,
	})
}
