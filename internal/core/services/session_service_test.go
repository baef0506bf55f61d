package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/infrastructure/repositories/memory"
	webrtchandler "streamcast/internal/infrastructure/webrtc"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestService(t *testing.T, maxRooms, maxViewers int) *sessionService {
	t.Helper()

	svc := NewSessionService(
		memory.NewMemoryRoomRegistry(),
		func(peerID domain.PeerID) domain.SignalingSession {
			return webrtchandler.NewHandler(peerID)
		},
		nil,
		zaptest.NewLogger(t).Sugar(),
		maxRooms,
		maxViewers,
		5*time.Minute,
	)
	return svc.(*sessionService)
}

func TestSessionService_CreateRoom(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(string(roomID), "room_"))
	assert.Len(t, string(roomID), len("room_")+6)

	room, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Equal(t, "post_1", room.PostID)
	assert.Equal(t, domain.UserID("u1"), room.HostUserID)
	assert.True(t, room.Active)
}

// collidingRegistry reports every room ID as taken.
type collidingRegistry struct {
	ports.RoomRegistry
}

func (collidingRegistry) RoomExists(ctx context.Context, roomID domain.RoomID) (bool, error) {
	return true, nil
}

func TestSessionService_RoomIDAllocationExhaustion(t *testing.T) {
	svc := NewSessionService(
		collidingRegistry{memory.NewMemoryRoomRegistry()},
		func(peerID domain.PeerID) domain.SignalingSession {
			return webrtchandler.NewHandler(peerID)
		},
		nil,
		zaptest.NewLogger(t).Sugar(),
		0, 0,
		5*time.Minute,
	)

	_, err := svc.CreateRoom(context.Background(), "post_1", "u1")
	assert.ErrorIs(t, err, domain.ErrIDAllocation)
}

func TestSessionService_RoomLimit(t *testing.T) {
	svc := newTestService(t, 1, 0)
	ctx := context.Background()

	_, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)

	_, err = svc.CreateRoom(ctx, "post_2", "u2")
	assert.ErrorIs(t, err, domain.ErrRoomLimit)
}

func TestSessionService_AddPeer(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	_, err := svc.AddPeer(ctx, "room_missing", "u1", "alice", domain.RoleHost)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)

	peerID, err := svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(peerID), "peer_"))
	assert.Len(t, string(peerID), len("peer_")+16)

	peer, err := svc.GetPeer(ctx, peerID)
	require.NoError(t, err)
	assert.Equal(t, roomID, peer.RoomID)
	assert.Equal(t, domain.RoleHost, peer.Role)
	assert.Equal(t, webrtc.SignalingStateStable, peer.SignalingState)
	assert.False(t, peer.Connected)
}

// observedSession records which observers the orchestrator binds.
type observedSession struct {
	*webrtchandler.Handler
	stateBound     bool
	candidateBound bool
}

func (s *observedSession) OnStateChange(fn func(webrtc.ICEConnectionState)) {
	s.stateBound = true
	s.Handler.OnStateChange(fn)
}

func (s *observedSession) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	s.candidateBound = true
	s.Handler.OnICECandidate(fn)
}

func TestSessionService_AddPeerBindsObservers(t *testing.T) {
	var last *observedSession
	svc := NewSessionService(
		memory.NewMemoryRoomRegistry(),
		func(peerID domain.PeerID) domain.SignalingSession {
			last = &observedSession{Handler: webrtchandler.NewHandler(peerID)}
			return last
		},
		nil,
		zaptest.NewLogger(t).Sugar(),
		0, 0,
		5*time.Minute,
	)

	ctx := context.Background()
	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)
	_, err = svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)

	require.NotNil(t, last)
	assert.True(t, last.stateBound)
	assert.True(t, last.candidateBound)
}

func TestSessionService_SecondHostRejected(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)

	_, err = svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)

	_, err = svc.AddPeer(ctx, roomID, "u2", "bob", domain.RoleHost)
	assert.ErrorIs(t, err, domain.ErrHostAlreadyPresent)

	// The rejected join left nothing behind.
	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalPeers)
}

func TestSessionService_ViewerLimit(t *testing.T) {
	svc := newTestService(t, 0, 1)
	ctx := context.Background()

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)

	_, err = svc.AddPeer(ctx, roomID, "u2", "bob", domain.RoleViewer)
	require.NoError(t, err)

	_, err = svc.AddPeer(ctx, roomID, "u3", "carol", domain.RoleViewer)
	assert.ErrorIs(t, err, domain.ErrViewerLimit)
}

func TestSessionService_RemovePeer(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	assert.ErrorIs(t, svc.RemovePeer(ctx, "peer_missing"), domain.ErrPeerNotFound)

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)
	peerID, err := svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)

	require.NoError(t, svc.RemovePeer(ctx, peerID))

	// Once deregistered, the peer ID is unknown everywhere.
	_, err = svc.GetPeer(ctx, peerID)
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
	assert.ErrorIs(t, svc.RemovePeer(ctx, peerID), domain.ErrPeerNotFound)

	room, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, room.Participants)
}

func TestSessionService_DeleteRoomTearsDownPeers(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	assert.ErrorIs(t, svc.DeleteRoom(ctx, "room_missing"), domain.ErrRoomNotFound)

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)

	hostID, err := svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)
	viewerID, err := svc.AddPeer(ctx, roomID, "u2", "bob", domain.RoleViewer)
	require.NoError(t, err)

	require.NoError(t, svc.DeleteRoom(ctx, roomID))

	_, err = svc.GetRoom(ctx, roomID)
	assert.ErrorIs(t, err, domain.ErrRoomNotFound)
	_, err = svc.GetPeer(ctx, hostID)
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
	_, err = svc.GetPeer(ctx, viewerID)
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalPeers)
	assert.Equal(t, 0, stats.TotalRooms)
}

func TestSessionService_CreateOfferHostTracks(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)

	hostID, err := svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)
	viewerID, err := svc.AddPeer(ctx, roomID, "u2", "bob", domain.RoleViewer)
	require.NoError(t, err)

	hostOffer, err := svc.CreateOffer(ctx, hostID)
	require.NoError(t, err)
	assert.Contains(t, hostOffer.SDP, "m=audio")
	assert.Contains(t, hostOffer.SDP, "m=video")
	assert.Contains(t, hostOffer.SDP, "msid:audio_"+string(hostID))

	viewerOffer, err := svc.CreateOffer(ctx, viewerID)
	require.NoError(t, err)
	assert.NotContains(t, viewerOffer.SDP, "m=audio")
	assert.NotContains(t, viewerOffer.SDP, "m=video")
}

func TestSessionService_OfferAnswerExchange(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)

	hostID, err := svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)
	viewerID, err := svc.AddPeer(ctx, roomID, "u2", "bob", domain.RoleViewer)
	require.NoError(t, err)

	offer, err := svc.CreateOffer(ctx, hostID)
	require.NoError(t, err)

	answer, err := svc.ProcessOffer(ctx, viewerID, offer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	require.NoError(t, svc.ProcessAnswer(ctx, hostID, answer))

	host, err := svc.GetPeer(ctx, hostID)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SignalingStateStable, host.SignalingState)

	require.NoError(t, svc.AddICECandidate(ctx, hostID, webrtc.ICECandidateInit{Candidate: "candidate:1"}))
	host, err = svc.GetPeer(ctx, hostID)
	require.NoError(t, err)
	assert.Equal(t, webrtc.ICEConnectionStateChecking, host.ICEState)

	_, err = svc.ProcessOffer(ctx, "peer_missing", offer)
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
}

func TestSessionService_ICEFailureCascadesRemoval(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)
	peerID, err := svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)

	peer, err := svc.lookupPeer(peerID)
	require.NoError(t, err)

	// The media-engine seam reports a terminal ICE state; the peer must be
	// torn down by the cascade.
	peer.Session.SetICEConnectionState(webrtc.ICEConnectionStateFailed)

	assert.Eventually(t, func() bool {
		_, err := svc.GetPeer(ctx, peerID)
		return err == domain.ErrPeerNotFound
	}, time.Second, 10*time.Millisecond)

	room, err := svc.GetRoom(ctx, roomID)
	require.NoError(t, err)
	assert.Empty(t, room.Participants)
}

func TestSessionService_CleanupStalePeers(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)

	staleID, err := svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)
	connectedID, err := svc.AddPeer(ctx, roomID, "u2", "bob", domain.RoleViewer)
	require.NoError(t, err)
	freshID, err := svc.AddPeer(ctx, roomID, "u3", "carol", domain.RoleViewer)
	require.NoError(t, err)

	svc.mu.Lock()
	svc.peers[staleID].CreatedAt = time.Now().Add(-time.Minute)
	svc.peers[connectedID].CreatedAt = time.Now().Add(-time.Minute)
	svc.mu.Unlock()

	connected, err := svc.lookupPeer(connectedID)
	require.NoError(t, err)
	connected.Session.SetICEConnectionState(webrtc.ICEConnectionStateConnected)

	removed, err := svc.CleanupStalePeers(ctx, 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []domain.PeerID{staleID}, removed)

	_, err = svc.GetPeer(ctx, staleID)
	assert.ErrorIs(t, err, domain.ErrPeerNotFound)
	_, err = svc.GetPeer(ctx, connectedID)
	assert.NoError(t, err)
	_, err = svc.GetPeer(ctx, freshID)
	assert.NoError(t, err)
}

func TestSessionService_CleanupIdleRoomsDropsPeers(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)
	peerID, err := svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)

	// Nothing is idle yet.
	removed, err := svc.CleanupIdleRooms(ctx)
	require.NoError(t, err)
	assert.Empty(t, removed)
	_, err = svc.GetPeer(ctx, peerID)
	assert.NoError(t, err)
}

func TestSessionService_StatsCountsTraffic(t *testing.T) {
	svc := newTestService(t, 0, 0)
	ctx := context.Background()

	roomID, err := svc.CreateRoom(ctx, "post_1", "u1")
	require.NoError(t, err)
	peerID, err := svc.AddPeer(ctx, roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)

	peer, err := svc.lookupPeer(peerID)
	require.NoError(t, err)
	peer.Session.SetICEConnectionState(webrtc.ICEConnectionStateConnected)
	require.NoError(t, peer.Session.SendData([]byte("0123456789")))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalRooms)
	assert.Equal(t, 1, stats.TotalPeers)
	assert.Equal(t, 1, stats.TotalHosts)
	assert.Equal(t, uint64(10), stats.TotalBytesSent)
}
