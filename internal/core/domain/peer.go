package domain

import (
	"time"

	"github.com/pion/webrtc/v3"
)

// PeerConnection ties one participant's signaling session to its room and
// user. The peer ID is generated independently of room/user IDs so session
// state can be looked up without knowing the room.
type PeerConnection struct {
	PeerID    PeerID
	RoomID    RoomID
	UserID    UserID
	Role      Role
	Active    bool
	CreatedAt time.Time
	Session   SignalingSession
}

// PeerInfo is an owned snapshot of a peer connection and the observable
// state of its signaling session.
type PeerInfo struct {
	PeerID         PeerID
	RoomID         RoomID
	UserID         UserID
	Role           Role
	Active         bool
	CreatedAt      time.Time
	SignalingState webrtc.SignalingState
	ICEState       webrtc.ICEConnectionState
	Connected      bool
}

// MediaTrack is a locally attached audio or video track, advertised in
// offers but never actually carrying media in this process.
type MediaTrack struct {
	ID      TrackID
	Kind    string // "audio" or "video"
	Enabled bool
}
