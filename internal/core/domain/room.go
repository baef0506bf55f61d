package domain

import (
	"time"
)

type RoomID string
type UserID string
type PeerID string
type TrackID string

// Role is a participant's role inside a room. A room has at most one
// active host; everyone else is a viewer.
type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

// Room groups one host and many viewers around a single post's live stream.
// Rooms are exclusively owned by the registry; everything outside the
// registry refers to a room by ID only.
type Room struct {
	ID           RoomID                  `json:"room_id"`
	PostID       string                  `json:"post_id"`
	HostUserID   UserID                  `json:"host_user_id"`
	Active       bool                    `json:"active"`
	CreatedAt    time.Time               `json:"created_at"`
	LastActivity time.Time               `json:"last_activity"`
	Participants map[UserID]*Participant `json:"participants"`
}

// Participant is one user's membership in a room, keyed by user ID.
// The signaling session reference is process-local and shared 1:1 with the
// orchestrator's peer connection record; it is never serialized.
type Participant struct {
	UserID   UserID    `json:"user_id"`
	Username string    `json:"username"`
	Role     Role      `json:"role"`
	Active   bool      `json:"active"`
	JoinedAt time.Time `json:"joined_at"`
	Session  SignalingSession `json:"-"`
}

func (r *Room) ViewerCount() int {
	count := 0
	for _, p := range r.Participants {
		if p.Role == RoleViewer && p.Active {
			count++
		}
	}
	return count
}

func (r *Room) HasHost() bool {
	for _, p := range r.Participants {
		if p.Role == RoleHost && p.Active {
			return true
		}
	}
	return false
}

// RoomInfo is an owned snapshot of a room. Registry reads return copies so
// no reference into the locked store ever escapes a critical section.
type RoomInfo struct {
	ID           RoomID
	PostID       string
	HostUserID   UserID
	Active       bool
	CreatedAt    time.Time
	LastActivity time.Time
	ViewerCount  int
	HasHost      bool
	Participants []ParticipantInfo
}

type ParticipantInfo struct {
	UserID   UserID
	Username string
	Role     Role
	Active   bool
	JoinedAt time.Time
}
