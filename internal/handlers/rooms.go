// internal/handlers/rooms.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/loteria-live/loteria/internal/auth"
	"github.com/loteria-live/loteria/internal/database"
	"github.com/loteria-live/loteria/internal/game"
	"github.com/loteria-live/loteria/internal/models"
)

// CreateRoomHandler allocates a fresh room code and its durable row, issuing
// an identity token on the way out. Creation is idempotent per host: a host
// with an active room gets that room back instead of a second one.
func CreateRoomHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if database.DB == nil {
			http.Error(w, "Room registry unavailable", http.StatusServiceUnavailable)
			return
		}

		ident := auth.ResolveIdentity(r)

		if existing, err := database.ActiveRoomByHost(r.Context(), ident.Email); err == nil {
			gs.Logger.Infof("Host %s already has active room %s", ident.Name, existing.Code)
			writeRoomJSON(w, http.StatusOK, existing, ident)
			return
		} else if !errors.Is(err, database.ErrRoomNotFound) {
			gs.Logger.Errorf("Active room lookup failed: %v", err)
			http.Error(w, "Could not create room", http.StatusInternalServerError)
			return
		}

		code, err := database.GenerateUniqueCode(r.Context())
		if err != nil {
			gs.Logger.Errorf("Room code generation failed: %v", err)
			http.Error(w, "Could not create room", http.StatusInternalServerError)
			return
		}

		room := &models.Room{
			Code:      code,
			HostName:  ident.Name,
			HostEmail: ident.Email,
		}
		if err := database.InsertRoom(r.Context(), room); err != nil {
			gs.Logger.Errorf("Room insert failed: %v", err)
			http.Error(w, "Could not create room", http.StatusInternalServerError)
			return
		}

		gs.Logger.Infof("Room %s created by %s", code, ident.Name)
		writeRoomJSON(w, http.StatusCreated, room, ident)
	}
}

// JoinRoomHandler is the pre-join check clients call before opening the
// socket: it verifies the code exists and the room can still be entered.
func JoinRoomHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Code string `json:"code"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
			http.Error(w, "Missing room code", http.StatusBadRequest)
			return
		}

		room, err := lookupRoom(gs, r, req.Code)
		if err != nil {
			writeRoomLookupError(w, err)
			return
		}
		if err := joinPrecheck(room, gs.Registry.Find(req.Code)); err != nil {
			writeRoomLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

// RoomInfoHandler returns the durable room row for a code.
func RoomInfoHandler(gs *GameServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := r.URL.Query().Get("code")
		if code == "" {
			http.Error(w, "Missing room code", http.StatusBadRequest)
			return
		}
		room, err := lookupRoom(gs, r, code)
		if err != nil {
			writeRoomLookupError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, room)
	}
}

var (
	errRoomGone    = errors.New("room no longer joinable")
	errRoomStarted = errors.New("room already started")
	errRoomFull    = errors.New("room is full")
)

// joinPrecheck applies the pre-join rules against the durable row and the live
// session: only a waiting room with a free seat passes. Reconnection into a
// started game goes straight to the socket, where identity matching decides.
func joinPrecheck(room *models.Room, sess *game.Session) error {
	if room.Status != "waiting" {
		return errRoomStarted
	}
	if sess != nil {
		sess.Mu.Lock()
		full := len(sess.Players) >= sess.MaxPlayers
		sess.Mu.Unlock()
		if full {
			return errRoomFull
		}
	}
	return nil
}

// lookupRoom loads a joinable room row. Terminal or expired rooms count as
// gone even before the sweeper removes them.
func lookupRoom(gs *GameServer, r *http.Request, code string) (*models.Room, error) {
	if database.DB == nil {
		return nil, errors.New("room registry unavailable")
	}
	room, err := database.GetRoomByCode(r.Context(), code)
	if err != nil {
		return nil, err
	}
	if room.Status == "finished" || room.Status == "abandoned" || room.ExpiresAt.Before(time.Now()) {
		return nil, errRoomGone
	}
	return room, nil
}

func writeRoomLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, database.ErrRoomNotFound):
		http.Error(w, "Room not found", http.StatusNotFound)
	case errors.Is(err, errRoomGone):
		http.Error(w, "Room no longer joinable", http.StatusGone)
	case errors.Is(err, errRoomStarted):
		http.Error(w, "Room already started", http.StatusConflict)
	case errors.Is(err, errRoomFull):
		http.Error(w, "Room is full", http.StatusConflict)
	default:
		http.Error(w, "Room lookup failed", http.StatusInternalServerError)
	}
}

// writeRoomJSON responds with the room row and sets a fresh identity token so
// reconnecting sockets can be matched by email.
func writeRoomJSON(w http.ResponseWriter, status int, room *models.Room, ident models.Identity) {
	if token, err := auth.CreateJWT(ident); err == nil {
		http.SetCookie(w, &http.Cookie{
			Name:     "auth_token",
			Value:    token,
			HttpOnly: true,
			Path:     "/",
		})
	}
	writeJSON(w, status, room)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
