// internal/database/rooms.go
package database

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/loteria-live/loteria/internal/models"
)

// Expiry policy for room rows. A room in play gets a generous window measured
// from its start; once finished or abandoned it only lingers long enough for
// stragglers to see the result.
const (
	WaitingTTL  = 4 * time.Hour
	PlayingTTL  = 4 * time.Hour
	FinishedTTL = 10 * time.Minute
)

// ErrRoomNotFound indicates no row exists for the requested code.
var ErrRoomNotFound = errors.New("room not found")

// GenerateUniqueCode picks a random 6-digit code not currently held by any
// room row. Retries a bounded number of times before giving up.
func GenerateUniqueCode(ctx context.Context) (string, error) {
	for i := 0; i < 25; i++ {
		code := fmt.Sprintf("%06d", rand.Intn(1000000))
		var exists bool
		err := DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM rooms WHERE code=$1)`, code).Scan(&exists)
		if err != nil {
			return "", fmt.Errorf("check room code: %w", err)
		}
		if !exists {
			return code, nil
		}
	}
	return "", errors.New("could not generate a unique room code")
}

// InsertRoom creates a fresh waiting room row for a host.
func InsertRoom(ctx context.Context, room *models.Room) error {
	now := time.Now()
	room.Status = "waiting"
	room.CreatedAt = now
	room.ExpiresAt = now.Add(WaitingTTL)

	q := `
		INSERT INTO rooms (code, host_name, host_email, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := DB.Exec(ctx, q, room.Code, room.HostName, room.HostEmail, room.Status, room.CreatedAt, room.ExpiresAt); err != nil {
		return fmt.Errorf("insert room %s: %w", room.Code, err)
	}
	return nil
}

// GetRoomByCode loads a room row, or ErrRoomNotFound.
func GetRoomByCode(ctx context.Context, code string) (*models.Room, error) {
	q := `
		SELECT code, host_name, host_email, status, created_at, started_at, expires_at
		FROM rooms WHERE code=$1
	`
	var r models.Room
	err := DB.QueryRow(ctx, q, code).Scan(
		&r.Code, &r.HostName, &r.HostEmail, &r.Status, &r.CreatedAt, &r.StartedAt, &r.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("get room %s: %w", code, err)
	}
	return &r, nil
}

// SetRoomStatus records a status transition and moves the expiry accordingly:
// playing restarts the clock from now with the in-play window, terminal
// statuses shrink it to the cleanup window.
func SetRoomStatus(ctx context.Context, code, status string) error {
	now := time.Now()
	var q string
	switch status {
	case "playing":
		q = `UPDATE rooms SET status=$2, started_at=$3, expires_at=$4 WHERE code=$1`
		if _, err := DB.Exec(ctx, q, code, status, now, now.Add(PlayingTTL)); err != nil {
			return fmt.Errorf("set room %s playing: %w", code, err)
		}
	case "finished", "abandoned":
		q = `UPDATE rooms SET status=$2, expires_at=$3 WHERE code=$1`
		if _, err := DB.Exec(ctx, q, code, status, now.Add(FinishedTTL)); err != nil {
			return fmt.Errorf("set room %s %s: %w", code, status, err)
		}
	default:
		q = `UPDATE rooms SET status=$2 WHERE code=$1`
		if _, err := DB.Exec(ctx, q, code, status); err != nil {
			return fmt.Errorf("set room %s %s: %w", code, status, err)
		}
	}
	return nil
}

// ActiveRoomByHost returns the host's current non-terminal room, if any. Used
// to make room creation idempotent per host.
func ActiveRoomByHost(ctx context.Context, hostEmail string) (*models.Room, error) {
	if hostEmail == "" {
		return nil, ErrRoomNotFound
	}
	q := `
		SELECT code, host_name, host_email, status, created_at, started_at, expires_at
		FROM rooms
		WHERE host_email=$1 AND status IN ('waiting', 'playing') AND expires_at > now()
		ORDER BY created_at DESC
		LIMIT 1
	`
	var r models.Room
	err := DB.QueryRow(ctx, q, hostEmail).Scan(
		&r.Code, &r.HostName, &r.HostEmail, &r.Status, &r.CreatedAt, &r.StartedAt, &r.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, fmt.Errorf("active room for %s: %w", hostEmail, err)
	}
	return &r, nil
}

// CleanExpiredRooms deletes every room row past its expiry. Returns the
// number of rows removed.
func CleanExpiredRooms(ctx context.Context) (int64, error) {
	tag, err := DB.Exec(ctx, `DELETE FROM rooms WHERE expires_at < now()`)
	if err != nil {
		return 0, fmt.Errorf("clean expired rooms: %w", err)
	}
	return tag.RowsAffected(), nil
}
