package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"github.com/gorilla/websocket"
	webrtc "github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// WebSocketServer drives per-connection signaling: one reader goroutine per
// connection, a ping ticker, and a single processing loop so each peer's
// messages apply in order.
type WebSocketServer struct {
	sessionService ports.SessionService

	connections map[domain.PeerID]*websocket.Conn
	mu          sync.RWMutex

	pingInterval   time.Duration
	pongTimeout    time.Duration
	writeTimeout   time.Duration
	maxMessageSize int64

	logger *zap.SugaredLogger
}

type SignalMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type JoinPayload struct {
	RoomID   domain.RoomID `json:"room_id"`
	UserID   domain.UserID `json:"user_id"`
	Username string        `json:"username"`
	Role     domain.Role   `json:"role"`
}

type SDPPayload struct {
	Type string `json:"type"`
	SDP  string `json:"sdp"`
}

type ICECandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdp_mid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdp_mline_index,omitempty"`
}

func NewWebSocketServer(sessionService ports.SessionService, logger *zap.SugaredLogger) *WebSocketServer {
	return &WebSocketServer{
		sessionService: sessionService,
		connections:    make(map[domain.PeerID]*websocket.Conn),
		pingInterval:   30 * time.Second,
		pongTimeout:    60 * time.Second,
		writeTimeout:   10 * time.Second,
		maxMessageSize: 64 * 1024,
		logger:         logger,
	}
}

// SetPingInterval sets ping interval for WebSocket connections
func (s *WebSocketServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetPongTimeout sets pong timeout for WebSocket connections
func (s *WebSocketServer) SetPongTimeout(timeout time.Duration) {
	s.pongTimeout = timeout
}

// SetMaxMessageSize bounds inbound message size; zero disables the limit.
func (s *WebSocketServer) SetMaxMessageSize(size int64) {
	s.maxMessageSize = size
}

func (s *WebSocketServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	if s.maxMessageSize > 0 {
		conn.SetReadLimit(s.maxMessageSize)
	}
	conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan SignalMessage, 10)
	errorChan := make(chan error, 1)
	readerDone := make(chan struct{})
	defer close(readerDone)

	// The reader must never block on a channel send once the processing loop
	// below has exited, or it leaks for the life of the process.
	go func() {
		for {
			var msg SignalMessage
			if err := conn.ReadJSON(&msg); err != nil {
				select {
				case errorChan <- err:
				case <-readerDone:
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.pongTimeout))
			select {
			case messageChan <- msg:
			case <-readerDone:
				return
			}
		}
	}()

	// The peer ID is allocated by the join message; until then the
	// connection is anonymous.
	var peerID domain.PeerID

	for {
		select {
		case msg := <-messageChan:
			newPeerID, err := s.handleMessage(r.Context(), conn, peerID, msg)
			if err != nil {
				s.logger.Infow("error handling signaling message",
					"peer_id", peerID,
					"type", msg.Type,
					"error", err,
				)
				s.sendError(conn, err.Error())
				continue
			}
			if newPeerID != peerID {
				peerID = newPeerID
				s.register(peerID, conn)
			}
			if msg.Type == "leave" {
				goto cleanup
			}

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.logger.Infow("error sending ping", "peer_id", peerID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading signaling message", "peer_id", peerID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	if peerID != "" {
		s.unregister(peerID)
		if err := s.sessionService.RemovePeer(context.Background(), peerID); err != nil &&
			err != domain.ErrPeerNotFound {
			s.logger.Infow("error removing peer on disconnect", "peer_id", peerID, "error", err)
		}
		s.logger.Infow("peer disconnected", "peer_id", peerID)
	}
}

func (s *WebSocketServer) handleMessage(ctx context.Context, conn *websocket.Conn, peerID domain.PeerID, msg SignalMessage) (domain.PeerID, error) {
	if msg.Type == "" {
		return peerID, fmt.Errorf("message type is required")
	}

	if msg.Type == "join" {
		return s.handleJoin(ctx, conn, msg)
	}

	if peerID == "" {
		return peerID, fmt.Errorf("join required before %q", msg.Type)
	}

	switch msg.Type {
	case "offer":
		return peerID, s.handleOffer(ctx, conn, peerID, msg)
	case "answer":
		return peerID, s.handleAnswer(ctx, peerID, msg)
	case "ice_candidate":
		return peerID, s.handleICECandidate(ctx, peerID, msg)
	case "request_offer":
		return peerID, s.handleRequestOffer(ctx, conn, peerID)
	case "leave":
		return peerID, nil
	default:
		return peerID, fmt.Errorf("unknown message type: %s", msg.Type)
	}
}

func (s *WebSocketServer) handleJoin(ctx context.Context, conn *websocket.Conn, msg SignalMessage) (domain.PeerID, error) {
	var payload JoinPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return "", fmt.Errorf("invalid join payload: %w", err)
	}

	if payload.RoomID == "" || payload.UserID == "" {
		return "", fmt.Errorf("room_id and user_id are required")
	}
	if payload.Role != domain.RoleHost && payload.Role != domain.RoleViewer {
		return "", fmt.Errorf("role must be host or viewer")
	}

	peerID, err := s.sessionService.AddPeer(ctx, payload.RoomID, payload.UserID, payload.Username, payload.Role)
	if err != nil {
		return "", err
	}

	s.logger.Infow("peer joined via WebSocket",
		"peer_id", peerID,
		"room_id", payload.RoomID,
		"role", payload.Role,
	)

	return peerID, s.send(conn, map[string]interface{}{
		"type": "joined",
		"payload": map[string]interface{}{
			"peer_id": peerID,
		},
	})
}

func (s *WebSocketServer) handleOffer(ctx context.Context, conn *websocket.Conn, peerID domain.PeerID, msg SignalMessage) error {
	var payload SDPPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid offer payload: %w", err)
	}
	if payload.SDP == "" {
		return fmt.Errorf("sdp is required")
	}

	answer, err := s.sessionService.ProcessOffer(ctx, peerID, webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  payload.SDP,
	})
	if err != nil {
		return err
	}

	return s.send(conn, map[string]interface{}{
		"type": "answer",
		"payload": map[string]interface{}{
			"type": answer.Type.String(),
			"sdp":  answer.SDP,
		},
	})
}

func (s *WebSocketServer) handleAnswer(ctx context.Context, peerID domain.PeerID, msg SignalMessage) error {
	var payload SDPPayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid answer payload: %w", err)
	}
	if payload.SDP == "" {
		return fmt.Errorf("sdp is required")
	}

	return s.sessionService.ProcessAnswer(ctx, peerID, webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  payload.SDP,
	})
}

func (s *WebSocketServer) handleICECandidate(ctx context.Context, peerID domain.PeerID, msg SignalMessage) error {
	var payload ICECandidatePayload
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		return fmt.Errorf("invalid ICE candidate payload: %w", err)
	}
	if payload.Candidate == "" {
		return fmt.Errorf("candidate is required")
	}

	return s.sessionService.AddICECandidate(ctx, peerID, webrtc.ICECandidateInit{
		Candidate:     payload.Candidate,
		SDPMid:        payload.SDPMid,
		SDPMLineIndex: payload.SDPMLineIndex,
	})
}

func (s *WebSocketServer) handleRequestOffer(ctx context.Context, conn *websocket.Conn, peerID domain.PeerID) error {
	offer, err := s.sessionService.CreateOffer(ctx, peerID)
	if err != nil {
		return err
	}

	return s.send(conn, map[string]interface{}{
		"type": "offer",
		"payload": map[string]interface{}{
			"type": offer.Type.String(),
			"sdp":  offer.SDP,
		},
	})
}

func (s *WebSocketServer) register(peerID domain.PeerID, conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[peerID] = conn
}

func (s *WebSocketServer) unregister(peerID domain.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, peerID)
}

func (s *WebSocketServer) IsPeerConnected(peerID domain.PeerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.connections[peerID]
	return exists
}

func (s *WebSocketServer) ConnectionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.connections)
}

func (s *WebSocketServer) send(conn *websocket.Conn, data interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(s.writeTimeout))
	return conn.WriteJSON(data)
}

func (s *WebSocketServer) sendError(conn *websocket.Conn, message string) {
	s.send(conn, map[string]interface{}{
		"type": "error",
		"payload": map[string]interface{}{
			"message": message,
		},
	})
}
