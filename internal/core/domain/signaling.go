package domain

import (
	"time"

	"github.com/pion/webrtc/v3"
)

// SignalingSession drives one peer's SDP/ICE negotiation. Implementations
// serialize all operations per session; operations on different sessions
// never contend.
//
// Observer callbacks run synchronously under the session's lock and must
// not call back into the session.
type SignalingSession interface {
	PeerID() PeerID

	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	SetRemoteDescription(desc webrtc.SessionDescription) error
	SetLocalDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error

	AddAudioTrack(id TrackID) error
	AddVideoTrack(id TrackID) error
	RemoveTrack(id TrackID) error

	SendData(payload []byte) error

	SignalingState() webrtc.SignalingState
	ICEState() webrtc.ICEConnectionState
	// SetICEConnectionState is the seam a real ICE agent fills in: it records
	// the new state and fires the state-change observer.
	SetICEConnectionState(state webrtc.ICEConnectionState)
	IsConnected() bool
	Stats() SessionStats

	OnICECandidate(fn func(webrtc.ICECandidateInit))
	OnStateChange(fn func(webrtc.ICEConnectionState))
	OnTrack(fn func(MediaTrack))
	OnData(fn func([]byte))

	// Close is idempotent and irreversible.
	Close()
}

// SessionStats are the per-session traffic counters. Byte/packet counts are
// accounted in SendData only; RoundTripTime is a fixed placeholder until a
// media engine reports real timings.
type SessionStats struct {
	BytesSent       uint64
	BytesReceived   uint64
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsLost     uint64
	RoundTripTime   time.Duration
}
