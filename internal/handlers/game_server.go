// internal/handlers/game_server.go
package handlers

import (
	"context"

	"github.com/loteria-live/loteria/internal/database"
	"github.com/loteria-live/loteria/internal/game"
	"github.com/sirupsen/logrus"
)

// GameServer holds the live session registry shared by the WebSocket and HTTP
// handlers. There is exactly one per process.
type GameServer struct {
	Registry *game.Registry
	Logger   *logrus.Logger
}

// NewGameServer builds the server around a registry. The durable room store is
// attached as the registry's status notifier when the database is connected;
// without it sessions simply run in memory only.
func NewGameServer(logger *logrus.Logger) *GameServer {
	var notifier game.StatusNotifier
	if database.DB != nil {
		notifier = DBNotifier{}
	}
	return &GameServer{
		Registry: game.NewRegistry(notifier),
		Logger:   logger,
	}
}

// DBNotifier adapts the rooms table to the engine's StatusNotifier.
type DBNotifier struct{}

func (DBNotifier) SetRoomStatus(ctx context.Context, code, status string) error {
	return game.WrapPersistence(database.SetRoomStatus(ctx, code, status))
}
