package ports

import (
	"context"
	"time"

	"streamcast/internal/core/domain"
)

// RoomRegistry is the concurrency-safe store of rooms and their
// participants. Every operation is atomic with respect to the others; no
// lock is held across a call back into another component, and reads return
// owned snapshots.
type RoomRegistry interface {
	CreateRoom(ctx context.Context, roomID domain.RoomID, postID string, hostUserID domain.UserID) error
	DeleteRoom(ctx context.Context, roomID domain.RoomID) error
	RoomExists(ctx context.Context, roomID domain.RoomID) (bool, error)

	// AddParticipant inserts or overwrites the participant keyed by user ID
	// and refreshes the room's last-activity timestamp. Adding a second,
	// different active host fails with domain.ErrHostAlreadyPresent.
	AddParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID, username string, role domain.Role, session domain.SignalingSession) error
	RemoveParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error

	GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.RoomInfo, error)
	ListActiveRooms(ctx context.Context) ([]domain.RoomID, error)
	CountRooms(ctx context.Context) (int, error)
	CountParticipants(ctx context.Context) (int, error)

	// CleanupIdleRooms removes every room whose last activity is strictly
	// older than timeout and returns the removed room IDs. A room idle for
	// exactly timeout is retained.
	CleanupIdleRooms(ctx context.Context, timeout time.Duration) ([]domain.RoomID, error)

	Stats(ctx context.Context) (*domain.RegistryStats, error)

	// HealthCheck reports whether the backing store is reachable.
	HealthCheck(ctx context.Context) error
}
