package webrtc

import (
	"sync"
	"time"

	"streamcast/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

const placeholderRTT = 50 * time.Millisecond

// Handler is the per-peer signaling state machine. It tracks the
// offer/answer negotiation and the ICE connection state, accumulates
// candidates and local tracks, and counts outbound traffic. No media bytes
// ever flow through it; a real media engine plugs in via the observer
// callbacks and SetICEConnectionState.
type Handler struct {
	peerID domain.PeerID

	mu     sync.Mutex
	closed bool

	signalingState webrtc.SignalingState
	iceState       webrtc.ICEConnectionState

	localDesc  *webrtc.SessionDescription
	remoteDesc *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	tracks     []domain.MediaTrack

	stats domain.SessionStats

	onICECandidate func(webrtc.ICECandidateInit)
	onStateChange  func(webrtc.ICEConnectionState)
	onTrack        func(domain.MediaTrack)
	onData         func([]byte)
}

var _ domain.SignalingSession = (*Handler)(nil)

func NewHandler(peerID domain.PeerID) *Handler {
	return &Handler{
		peerID:         peerID,
		signalingState: webrtc.SignalingStateStable,
		iceState:       webrtc.ICEConnectionStateNew,
		stats:          domain.SessionStats{RoundTripTime: placeholderRTT},
	}
}

func (h *Handler) PeerID() domain.PeerID {
	return h.peerID
}

// CreateOffer builds a session description with one application section
// plus one section per local track and moves signaling to HaveLocalOffer.
// This is a local-state operation only; nothing is sent anywhere.
func (h *Handler) CreateOffer() (webrtc.SessionDescription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return webrtc.SessionDescription{}, domain.ErrSessionClosed
	}

	desc := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  buildOfferSDP(h.peerID, h.tracks),
	}
	h.localDesc = &desc
	h.signalingState = webrtc.SignalingStateHaveLocalOffer
	return desc, nil
}

// CreateAnswer records the offer as the remote description, builds the
// answer (application section only) and settles back to Stable. The
// offer→answer round-trip is modeled as a single atomic step.
func (h *Handler) CreateAnswer(offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return webrtc.SessionDescription{}, domain.ErrSessionClosed
	}

	h.remoteDesc = &offer
	h.signalingState = webrtc.SignalingStateHaveRemoteOffer

	desc := webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  buildAnswerSDP(h.peerID),
	}
	h.localDesc = &desc
	h.signalingState = webrtc.SignalingStateStable
	return desc, nil
}

func (h *Handler) SetRemoteDescription(desc webrtc.SessionDescription) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return domain.ErrSessionClosed
	}

	h.remoteDesc = &desc
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		h.signalingState = webrtc.SignalingStateHaveRemoteOffer
	case webrtc.SDPTypeAnswer:
		h.signalingState = webrtc.SignalingStateStable
	default:
		// store-only
	}
	return nil
}

func (h *Handler) SetLocalDescription(desc webrtc.SessionDescription) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return domain.ErrSessionClosed
	}

	h.localDesc = &desc
	switch desc.Type {
	case webrtc.SDPTypeOffer:
		h.signalingState = webrtc.SignalingStateHaveLocalOffer
	case webrtc.SDPTypeAnswer:
		h.signalingState = webrtc.SignalingStateStable
	default:
	}
	return nil
}

// AddICECandidate appends the candidate. The first candidate moves ICE from
// New to Checking and fires the state-change observer exactly once.
func (h *Handler) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return domain.ErrSessionClosed
	}

	h.candidates = append(h.candidates, candidate)

	if h.iceState == webrtc.ICEConnectionStateNew {
		h.iceState = webrtc.ICEConnectionStateChecking
		h.notifyStateChangeLocked(h.iceState)
	}
	return nil
}

func (h *Handler) AddAudioTrack(id domain.TrackID) error {
	return h.addTrack(id, "audio")
}

func (h *Handler) AddVideoTrack(id domain.TrackID) error {
	return h.addTrack(id, "video")
}

func (h *Handler) addTrack(id domain.TrackID, kind string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return domain.ErrSessionClosed
	}

	track := domain.MediaTrack{ID: id, Kind: kind, Enabled: true}
	h.tracks = append(h.tracks, track)
	if h.onTrack != nil {
		h.onTrack(track)
	}
	return nil
}

func (h *Handler) RemoveTrack(id domain.TrackID) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return domain.ErrSessionClosed
	}

	for i, track := range h.tracks {
		if track.ID == id {
			h.tracks = append(h.tracks[:i], h.tracks[i+1:]...)
			return nil
		}
	}
	return domain.ErrTrackNotFound
}

// SendData accounts an outbound payload. It fails unless ICE is Connected
// or Completed; there is no actual transport behind it.
func (h *Handler) SendData(payload []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return domain.ErrSessionClosed
	}

	if h.iceState != webrtc.ICEConnectionStateConnected &&
		h.iceState != webrtc.ICEConnectionStateCompleted {
		return domain.ErrNotConnected
	}

	h.stats.BytesSent += uint64(len(payload))
	h.stats.PacketsSent++
	return nil
}

func (h *Handler) SignalingState() webrtc.SignalingState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.signalingState
}

func (h *Handler) ICEState() webrtc.ICEConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.iceState
}

// SetICEConnectionState records a state reported by the ICE agent seam and
// fires the state-change observer. A closed session ignores updates.
func (h *Handler) SetICEConnectionState(state webrtc.ICEConnectionState) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed || h.iceState == state {
		return
	}
	h.iceState = state
	h.notifyStateChangeLocked(state)
}

func (h *Handler) IsConnected() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	return (h.iceState == webrtc.ICEConnectionStateConnected ||
		h.iceState == webrtc.ICEConnectionStateCompleted) &&
		h.signalingState == webrtc.SignalingStateStable
}

func (h *Handler) Stats() domain.SessionStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onICECandidate = fn
}

func (h *Handler) OnStateChange(fn func(webrtc.ICEConnectionState)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onStateChange = fn
}

func (h *Handler) OnTrack(fn func(domain.MediaTrack)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onTrack = fn
}

func (h *Handler) OnData(fn func([]byte)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onData = fn
}

// Close is idempotent. It moves both states to Closed, discards tracks and
// candidates, and does not fire the state-change observer.
func (h *Handler) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	h.signalingState = webrtc.SignalingStateClosed
	h.iceState = webrtc.ICEConnectionStateClosed
	h.tracks = nil
	h.candidates = nil
}

// notifyStateChangeLocked must be called with h.mu held. Observers run
// under the session lock and must not call back into the session.
func (h *Handler) notifyStateChangeLocked(state webrtc.ICEConnectionState) {
	if h.onStateChange != nil {
		h.onStateChange(state)
	}
}
