// internal/handlers/ws_codes.go
package handlers

// Custom WebSocket close codes used within the game handlers. These provide
// more specific reasons for closure than standard codes.
const (
	BadSubprotocolError = 3000 // Client connected with an unsupported subprotocol.
	RoomNotFoundError   = 3003 // Target room code does not exist or has expired.
	RoomFullError       = 3004 // Room already holds the maximum number of players.
)
