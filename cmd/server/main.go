// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/loteria-live/loteria/internal/auth"
	"github.com/loteria-live/loteria/internal/cache"
	"github.com/loteria-live/loteria/internal/database"
	"github.com/loteria-live/loteria/internal/handlers"
	"github.com/loteria-live/loteria/internal/middleware"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	auth.Init()
	database.ConnectDB()

	if err := cache.ConnectRedis(); err != nil {
		// Event history is best-effort; games run without it.
		logger.Warnf("Redis unavailable, event history disabled: %v", err)
	}

	srv := handlers.NewGameServer(logger)

	mux := http.NewServeMux()

	// room endpoints
	mux.Handle("/rooms/create", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.CreateRoomHandler(srv),
	)))
	mux.Handle("/rooms/join", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.JoinRoomHandler(srv),
	)))
	mux.Handle("/rooms/info", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.RoomInfoHandler(srv),
	)))

	// game websocket
	mux.Handle("/game/ws", middleware.LogMiddleware(logger)(http.HandlerFunc(
		handlers.GameWSHandler(logger, srv),
	)))

	// sweep expired room rows in the background
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweepExpiredRooms(sweepCtx, logger)

	addr := ":8080"
	if port := os.Getenv("PORT"); port != "" {
		addr = ":" + port
	}

	httpSrv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		logger.Infof("Running on %s", addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server exited: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("Shutting down")
	stopSweep()
	srv.Registry.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// sweepExpiredRooms deletes expired room rows every half hour until ctx is done.
func sweepExpiredRooms(ctx context.Context, logger *logrus.Logger) {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := database.CleanExpiredRooms(cleanCtx)
			cancel()
			if err != nil {
				logger.Warnf("Expired room sweep failed: %v", err)
				continue
			}
			if n > 0 {
				logger.Infof("Swept %d expired room(s)", n)
			}
		}
	}
}
