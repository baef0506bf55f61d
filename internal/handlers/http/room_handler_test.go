package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
	"streamcast/internal/core/services"
	"streamcast/internal/infrastructure/monitoring"
	"streamcast/internal/infrastructure/repositories/memory"
	"streamcast/internal/infrastructure/webrtc"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func zaptestLogger(t *testing.T) *zap.SugaredLogger {
	return zaptest.NewLogger(t).Sugar()
}

func testContext() context.Context {
	return context.Background()
}

func newTestRouter(t *testing.T) (*gin.Engine, ports.SessionService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	svc := services.NewSessionService(
		memory.NewMemoryRoomRegistry(),
		func(peerID domain.PeerID) domain.SignalingSession {
			return webrtc.NewHandler(peerID)
		},
		nil,
		zaptestLogger(t),
		0, 0,
		5*time.Minute,
	)

	healthChecker := monitoring.NewHealthChecker()
	router := gin.New()
	NewRoomHandler(svc, healthChecker).SetupRoutes(router, nil)
	return router, svc
}

func doJSON(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req, _ := http.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)
	return w
}

func TestRoomHandler_CreateRoom(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/room/create", `{"post_id":"post_1","host_user_id":"u1"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, strings.HasPrefix(resp["room_id"], "room_"))
	assert.Equal(t, "post_1", resp["post_id"])
}

func TestRoomHandler_CreateRoomValidation(t *testing.T) {
	router, _ := newTestRouter(t)

	// Missing host_user_id.
	w := doJSON(router, http.MethodPost, "/room/create", `{"post_id":"post_1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Empty body.
	w = doJSON(router, http.MethodPost, "/room/create", ``)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Oversized field.
	long := strings.Repeat("x", 257)
	w = doJSON(router, http.MethodPost, "/room/create", `{"post_id":"`+long+`","host_user_id":"u1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoomHandler_StopRoom(t *testing.T) {
	router, svc := newTestRouter(t)

	w := doJSON(router, http.MethodPost, "/room/room_000000/stop", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	roomID, err := svc.CreateRoom(testContext(), "post_1", "u1")
	require.NoError(t, err)

	w = doJSON(router, http.MethodPost, "/room/"+string(roomID)+"/stop", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "stopped", resp["status"])
	assert.Equal(t, string(roomID), resp["room_id"])
}

func TestRoomHandler_RoomStats(t *testing.T) {
	router, svc := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/room/room_000000/stats", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	roomID, err := svc.CreateRoom(testContext(), "post_1", "u1")
	require.NoError(t, err)
	_, err = svc.AddPeer(testContext(), roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)
	_, err = svc.AddPeer(testContext(), roomID, "u2", "bob", domain.RoleViewer)
	require.NoError(t, err)

	w = doJSON(router, http.MethodGet, "/room/"+string(roomID)+"/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		RoomID      string `json:"room_id"`
		PostID      string `json:"post_id"`
		IsActive    bool   `json:"is_active"`
		ViewerCount int    `json:"viewer_count"`
		HasHost     bool   `json:"has_host"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, string(roomID), resp.RoomID)
	assert.Equal(t, "post_1", resp.PostID)
	assert.True(t, resp.IsActive)
	assert.Equal(t, 1, resp.ViewerCount)
	assert.True(t, resp.HasHost)
}

func TestRoomHandler_RouteMatching(t *testing.T) {
	router, _ := newTestRouter(t)

	// Extra path segments never match the stats route.
	w := doJSON(router, http.MethodGet, "/room/abc/extra/stats", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	// The parameterized route matches arbitrary room IDs.
	w = doJSON(router, http.MethodGet, "/room/abc/stats", "")
	assert.Equal(t, http.StatusNotFound, w.Code) // unknown room, but the route matched
	assert.Contains(t, w.Body.String(), "room not found")
}

func TestRoomHandler_ServerStats(t *testing.T) {
	router, svc := newTestRouter(t)

	roomID, err := svc.CreateRoom(testContext(), "post_1", "u1")
	require.NoError(t, err)
	_, err = svc.AddPeer(testContext(), roomID, "u1", "alice", domain.RoleHost)
	require.NoError(t, err)

	w := doJSON(router, http.MethodGet, "/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		TotalRooms  int `json:"total_rooms"`
		ActiveRooms int `json:"active_rooms"`
		TotalPeers  int `json:"total_peers"`
		TotalHosts  int `json:"total_hosts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.TotalRooms)
	assert.Equal(t, 1, resp.ActiveRooms)
	assert.Equal(t, 1, resp.TotalPeers)
	assert.Equal(t, 1, resp.TotalHosts)
}

func TestRoomHandler_Health(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, "media_server", resp["service"])
}

func TestRoomHandler_Ready(t *testing.T) {
	router, _ := newTestRouter(t)

	w := doJSON(router, http.MethodGet, "/ready", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
