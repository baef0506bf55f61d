package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const idRetryAttempts = 5

// SessionFactory builds a signaling session for a freshly allocated peer ID.
type SessionFactory func(peerID domain.PeerID) domain.SignalingSession

type sessionService struct {
	registry   ports.RoomRegistry
	newSession SessionFactory
	metrics    ports.MetricsCollector
	logger     *zap.SugaredLogger

	maxRooms          int
	maxViewersPerRoom int
	roomIdleTimeout   time.Duration

	mu    sync.RWMutex
	peers map[domain.PeerID]*domain.PeerConnection
}

func NewSessionService(
	registry ports.RoomRegistry,
	newSession SessionFactory,
	metrics ports.MetricsCollector,
	logger *zap.SugaredLogger,
	maxRooms int,
	maxViewersPerRoom int,
	roomIdleTimeout time.Duration,
) ports.SessionService {
	return &sessionService{
		registry:          registry,
		newSession:        newSession,
		metrics:           metrics,
		logger:            logger,
		maxRooms:          maxRooms,
		maxViewersPerRoom: maxViewersPerRoom,
		roomIdleTimeout:   roomIdleTimeout,
		peers:             make(map[domain.PeerID]*domain.PeerConnection),
	}
}

func (s *sessionService) CreateRoom(ctx context.Context, postID string, hostUserID domain.UserID) (domain.RoomID, error) {
	if s.maxRooms > 0 {
		count, err := s.registry.CountRooms(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to count rooms: %w", err)
		}
		if count >= s.maxRooms {
			return "", domain.ErrRoomLimit
		}
	}

	var roomID domain.RoomID
	for attempt := 0; ; attempt++ {
		if attempt == idRetryAttempts {
			return "", domain.ErrIDAllocation
		}
		roomID = generateRoomID()
		exists, err := s.registry.RoomExists(ctx, roomID)
		if err != nil {
			return "", fmt.Errorf("failed to check room id: %w", err)
		}
		if !exists {
			break
		}
	}

	if err := s.registry.CreateRoom(ctx, roomID, postID, hostUserID); err != nil {
		return "", fmt.Errorf("failed to create room: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RoomCreated()
	}
	s.logger.Infow("room created",
		"room_id", roomID,
		"post_id", postID,
		"host_user_id", hostUserID,
	)
	return roomID, nil
}

func (s *sessionService) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	if _, err := s.registry.GetRoom(ctx, roomID); err != nil {
		return err
	}

	removed := s.removeRoomPeers(roomID)

	if err := s.registry.DeleteRoom(ctx, roomID); err != nil {
		return fmt.Errorf("failed to delete room: %w", err)
	}

	if s.metrics != nil {
		s.metrics.RoomDeleted()
	}
	s.logger.Infow("room deleted",
		"room_id", roomID,
		"peers_removed", removed,
	)
	return nil
}

func (s *sessionService) GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.RoomInfo, error) {
	return s.registry.GetRoom(ctx, roomID)
}

func (s *sessionService) AddPeer(ctx context.Context, roomID domain.RoomID, userID domain.UserID, username string, role domain.Role) (domain.PeerID, error) {
	room, err := s.registry.GetRoom(ctx, roomID)
	if err != nil {
		return "", err
	}
	if role == domain.RoleViewer && s.maxViewersPerRoom > 0 && room.ViewerCount >= s.maxViewersPerRoom {
		return "", domain.ErrViewerLimit
	}

	peerID, err := s.allocatePeerID()
	if err != nil {
		return "", err
	}

	session := s.newSession(peerID)
	session.OnStateChange(func(state webrtc.ICEConnectionState) {
		s.onICEStateChange(peerID, state)
	})
	session.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		s.logger.Debugw("local ICE candidate gathered",
			"peer_id", peerID,
			"candidate", candidate.Candidate,
		)
	})

	if err := s.registry.AddParticipant(ctx, roomID, userID, username, role, session); err != nil {
		// The session never became reachable; close it so nothing leaks.
		session.Close()
		return "", err
	}

	s.mu.Lock()
	s.peers[peerID] = &domain.PeerConnection{
		PeerID:    peerID,
		RoomID:    roomID,
		UserID:    userID,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now(),
		Session:   session,
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.PeerAdded(role)
	}
	s.logger.Infow("peer joined",
		"peer_id", peerID,
		"room_id", roomID,
		"user_id", userID,
		"role", role,
	)
	return peerID, nil
}

func (s *sessionService) RemovePeer(ctx context.Context, peerID domain.PeerID) error {
	// Deregister first so the peer ID is unknown to every subsequent call,
	// then tear the session down outside the table lock.
	s.mu.Lock()
	peer, exists := s.peers[peerID]
	if exists {
		delete(s.peers, peerID)
	}
	s.mu.Unlock()

	if !exists {
		return domain.ErrPeerNotFound
	}

	if err := s.registry.RemoveParticipant(ctx, peer.RoomID, peer.UserID); err != nil {
		s.logger.Warnw("failed to remove participant from registry",
			"peer_id", peerID,
			"room_id", peer.RoomID,
			"error", err,
		)
	}

	sessionStats := peer.Session.Stats()
	peer.Session.Close()

	if s.metrics != nil {
		s.metrics.PeerRemoved(peer.Role)
		if sessionStats.BytesSent > 0 {
			s.metrics.DataSent(int(sessionStats.BytesSent))
		}
	}
	s.logger.Infow("peer removed",
		"peer_id", peerID,
		"room_id", peer.RoomID,
	)
	return nil
}

func (s *sessionService) GetPeer(ctx context.Context, peerID domain.PeerID) (*domain.PeerInfo, error) {
	s.mu.RLock()
	peer, exists := s.peers[peerID]
	s.mu.RUnlock()

	if !exists {
		return nil, domain.ErrPeerNotFound
	}

	return &domain.PeerInfo{
		PeerID:         peer.PeerID,
		RoomID:         peer.RoomID,
		UserID:         peer.UserID,
		Role:           peer.Role,
		Active:         peer.Active,
		CreatedAt:      peer.CreatedAt,
		SignalingState: peer.Session.SignalingState(),
		ICEState:       peer.Session.ICEState(),
		Connected:      peer.Session.IsConnected(),
	}, nil
}

func (s *sessionService) CreateOffer(ctx context.Context, peerID domain.PeerID) (webrtc.SessionDescription, error) {
	peer, err := s.lookupPeer(peerID)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	// Only the host originates media; its offer advertises one audio and
	// one video track.
	if peer.Role == domain.RoleHost {
		if err := peer.Session.AddAudioTrack(domain.TrackID("audio_" + string(peerID))); err != nil {
			return webrtc.SessionDescription{}, err
		}
		if err := peer.Session.AddVideoTrack(domain.TrackID("video_" + string(peerID))); err != nil {
			return webrtc.SessionDescription{}, err
		}
	}

	offer, err := peer.Session.CreateOffer()
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	if s.metrics != nil {
		s.metrics.Negotiation("offer")
	}
	return offer, nil
}

func (s *sessionService) ProcessOffer(ctx context.Context, peerID domain.PeerID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	peer, err := s.lookupPeer(peerID)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	answer, err := peer.Session.CreateAnswer(offer)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}

	if s.metrics != nil {
		s.metrics.Negotiation("answer")
	}

	if peer.Role == domain.RoleHost {
		s.logViewerFanOut(ctx, peer.RoomID)
	}
	return answer, nil
}

func (s *sessionService) ProcessAnswer(ctx context.Context, peerID domain.PeerID, answer webrtc.SessionDescription) error {
	peer, err := s.lookupPeer(peerID)
	if err != nil {
		return err
	}
	return peer.Session.SetRemoteDescription(answer)
}

func (s *sessionService) AddICECandidate(ctx context.Context, peerID domain.PeerID, candidate webrtc.ICECandidateInit) error {
	peer, err := s.lookupPeer(peerID)
	if err != nil {
		return err
	}

	if err := peer.Session.AddICECandidate(candidate); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.Negotiation("ice_candidate")
	}
	return nil
}

// Stats combines a registry snapshot with a peer-table snapshot. The two
// stores are locked independently, so the result is eventually consistent.
func (s *sessionService) Stats(ctx context.Context) (*domain.ServerStats, error) {
	registryStats, err := s.registry.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read registry stats: %w", err)
	}

	s.mu.RLock()
	totalPeers := len(s.peers)
	sessions := make([]domain.SignalingSession, 0, totalPeers)
	for _, peer := range s.peers {
		sessions = append(sessions, peer.Session)
	}
	s.mu.RUnlock()

	stats := &domain.ServerStats{
		TotalRooms:   registryStats.TotalRooms,
		ActiveRooms:  registryStats.ActiveRooms,
		TotalPeers:   totalPeers,
		TotalViewers: registryStats.TotalViewers,
		TotalHosts:   registryStats.TotalHosts,
	}
	for _, session := range sessions {
		sessionStats := session.Stats()
		stats.TotalBytesSent += sessionStats.BytesSent
		stats.TotalBytesReceived += sessionStats.BytesReceived
	}
	return stats, nil
}

func (s *sessionService) CleanupIdleRooms(ctx context.Context) ([]domain.RoomID, error) {
	removed, err := s.registry.CleanupIdleRooms(ctx, s.roomIdleTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to clean up idle rooms: %w", err)
	}

	for _, roomID := range removed {
		peers := s.removeRoomPeers(roomID)
		if s.metrics != nil {
			s.metrics.RoomDeleted()
		}
		s.logger.Infow("idle room removed",
			"room_id", roomID,
			"peers_removed", peers,
		)
	}
	return removed, nil
}

// CleanupStalePeers removes peers that never reached a connected state
// within the grace period after joining.
func (s *sessionService) CleanupStalePeers(ctx context.Context, grace time.Duration) ([]domain.PeerID, error) {
	cutoff := time.Now().Add(-grace)

	s.mu.RLock()
	var stale []domain.PeerID
	for peerID, peer := range s.peers {
		if peer.CreatedAt.After(cutoff) {
			continue
		}
		if !peer.Session.IsConnected() {
			stale = append(stale, peerID)
		}
	}
	s.mu.RUnlock()

	for _, peerID := range stale {
		if err := s.RemovePeer(ctx, peerID); err != nil {
			continue
		}
		s.logger.Infow("stale peer removed", "peer_id", peerID)
	}
	return stale, nil
}

func (s *sessionService) lookupPeer(peerID domain.PeerID) (*domain.PeerConnection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	peer, exists := s.peers[peerID]
	if !exists {
		return nil, domain.ErrPeerNotFound
	}
	return peer, nil
}

// onICEStateChange runs under the session lock, so the cascade is handed to
// a fresh goroutine.
func (s *sessionService) onICEStateChange(peerID domain.PeerID, state webrtc.ICEConnectionState) {
	switch state {
	case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
		go func() {
			if err := s.RemovePeer(context.Background(), peerID); err != nil {
				return
			}
			s.logger.Infow("peer removed after ICE state change",
				"peer_id", peerID,
				"state", state.String(),
			)
		}()
	}
}

// logViewerFanOut records which viewers a host's media would reach. No media
// moves in this process; the pass mirrors the distribution step.
func (s *sessionService) logViewerFanOut(ctx context.Context, roomID domain.RoomID) {
	room, err := s.registry.GetRoom(ctx, roomID)
	if err != nil {
		return
	}

	for _, p := range room.Participants {
		if p.Role == domain.RoleViewer && p.Active {
			s.logger.Debugw("host media fan-out",
				"room_id", roomID,
				"viewer_user_id", p.UserID,
			)
		}
	}
}

func (s *sessionService) allocatePeerID() (domain.PeerID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for attempt := 0; attempt < idRetryAttempts; attempt++ {
		peerID := generatePeerID()
		if _, exists := s.peers[peerID]; !exists {
			return peerID, nil
		}
	}
	return "", domain.ErrIDAllocation
}

// removeRoomPeers drops every peer record bound to the room and closes the
// sessions. Registry state is handled by the caller.
func (s *sessionService) removeRoomPeers(roomID domain.RoomID) int {
	s.mu.Lock()
	var dropped []*domain.PeerConnection
	for peerID, peer := range s.peers {
		if peer.RoomID == roomID {
			delete(s.peers, peerID)
			dropped = append(dropped, peer)
		}
	}
	s.mu.Unlock()

	for _, peer := range dropped {
		sessionStats := peer.Session.Stats()
		peer.Session.Close()
		if s.metrics != nil {
			s.metrics.PeerRemoved(peer.Role)
			if sessionStats.BytesSent > 0 {
				s.metrics.DataSent(int(sessionStats.BytesSent))
			}
		}
	}
	return len(dropped)
}

func generateRoomID() domain.RoomID {
	return domain.RoomID("room_" + randomDigits(6))
}

func generatePeerID() domain.PeerID {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return domain.PeerID(fmt.Sprintf("peer_%016x", time.Now().UnixNano()))
	}
	return domain.PeerID("peer_" + hex.EncodeToString(buf))
}

func randomDigits(n int) string {
	const digits = "0123456789"
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%0*d", n, time.Now().UnixNano()%1000000)
	}
	for i, v := range buf {
		buf[i] = digits[int(v)%len(digits)]
	}
	return string(buf)
}
