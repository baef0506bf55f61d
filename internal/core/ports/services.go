package ports

import (
	"context"
	"time"

	"streamcast/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// SessionService orchestrates rooms, peers and their signaling sessions.
type SessionService interface {
	CreateRoom(ctx context.Context, postID string, hostUserID domain.UserID) (domain.RoomID, error)
	DeleteRoom(ctx context.Context, roomID domain.RoomID) error
	GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.RoomInfo, error)

	AddPeer(ctx context.Context, roomID domain.RoomID, userID domain.UserID, username string, role domain.Role) (domain.PeerID, error)
	RemovePeer(ctx context.Context, peerID domain.PeerID) error
	GetPeer(ctx context.Context, peerID domain.PeerID) (*domain.PeerInfo, error)

	CreateOffer(ctx context.Context, peerID domain.PeerID) (webrtc.SessionDescription, error)
	ProcessOffer(ctx context.Context, peerID domain.PeerID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	ProcessAnswer(ctx context.Context, peerID domain.PeerID, answer webrtc.SessionDescription) error
	AddICECandidate(ctx context.Context, peerID domain.PeerID, candidate webrtc.ICECandidateInit) error

	Stats(ctx context.Context) (*domain.ServerStats, error)

	CleanupIdleRooms(ctx context.Context) ([]domain.RoomID, error)
	CleanupStalePeers(ctx context.Context, grace time.Duration) ([]domain.PeerID, error)
}

// MetricsCollector receives lifecycle and traffic events from the
// orchestrator. A nil collector is allowed and means "no metrics".
type MetricsCollector interface {
	RoomCreated()
	RoomDeleted()
	PeerAdded(role domain.Role)
	PeerRemoved(role domain.Role)
	Negotiation(kind string)
	DataSent(bytes int)
}
