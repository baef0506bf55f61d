package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// RedisRoomRegistry stores room and participant data as JSON blobs plus an
// index set of room IDs. Signaling sessions are process-local objects and
// never leave this process; they live in a side table keyed by room and
// user, so a registry read from Redis still resolves to live sessions.
type RedisRoomRegistry struct {
	client *redis.Client
	prefix string

	mu       sync.RWMutex
	sessions map[domain.RoomID]map[domain.UserID]domain.SignalingSession
}

func NewRedisRoomRegistry(client *redis.Client) ports.RoomRegistry {
	return &RedisRoomRegistry{
		client:   client,
		prefix:   "streamcast:room:",
		sessions: make(map[domain.RoomID]map[domain.UserID]domain.SignalingSession),
	}
}

func (r *RedisRoomRegistry) roomKey(id domain.RoomID) string {
	return r.prefix + string(id)
}

func (r *RedisRoomRegistry) idsKey() string {
	return r.prefix + "ids"
}

func (r *RedisRoomRegistry) CreateRoom(ctx context.Context, roomID domain.RoomID, postID string, hostUserID domain.UserID) error {
	exists, err := r.client.Exists(ctx, r.roomKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check room in Redis: %w", err)
	}
	if exists > 0 {
		return domain.ErrRoomExists
	}

	now := time.Now()
	room := &domain.Room{
		ID:           roomID,
		PostID:       postID,
		HostUserID:   hostUserID,
		Active:       true,
		CreatedAt:    now,
		LastActivity: now,
		Participants: make(map[domain.UserID]*domain.Participant),
	}
	if err := r.setRoom(ctx, room); err != nil {
		return err
	}

	if err := r.client.SAdd(ctx, r.idsKey(), string(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to index room in Redis: %w", err)
	}
	return nil
}

func (r *RedisRoomRegistry) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	if _, err := r.getRoom(ctx, roomID); err != nil {
		return err
	}

	if err := r.client.SRem(ctx, r.idsKey(), string(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to unindex room in Redis: %w", err)
	}
	if err := r.client.Del(ctx, r.roomKey(roomID)).Err(); err != nil {
		return fmt.Errorf("failed to delete room from Redis: %w", err)
	}

	r.mu.Lock()
	delete(r.sessions, roomID)
	r.mu.Unlock()
	return nil
}

func (r *RedisRoomRegistry) RoomExists(ctx context.Context, roomID domain.RoomID) (bool, error) {
	n, err := r.client.Exists(ctx, r.roomKey(roomID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check room in Redis: %w", err)
	}
	return n > 0, nil
}

func (r *RedisRoomRegistry) AddParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID, username string, role domain.Role, session domain.SignalingSession) error {
	room, err := r.getRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if role == domain.RoleHost {
		for _, p := range room.Participants {
			if p.Role == domain.RoleHost && p.Active && p.UserID != userID {
				return domain.ErrHostAlreadyPresent
			}
		}
	}

	now := time.Now()
	room.Participants[userID] = &domain.Participant{
		UserID:   userID,
		Username: username,
		Role:     role,
		Active:   true,
		JoinedAt: now,
	}
	room.LastActivity = now
	if err := r.setRoom(ctx, room); err != nil {
		return err
	}

	r.mu.Lock()
	if r.sessions[roomID] == nil {
		r.sessions[roomID] = make(map[domain.UserID]domain.SignalingSession)
	}
	r.sessions[roomID][userID] = session
	r.mu.Unlock()
	return nil
}

func (r *RedisRoomRegistry) RemoveParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	room, err := r.getRoom(ctx, roomID)
	if err != nil {
		return err
	}

	if _, exists := room.Participants[userID]; !exists {
		return domain.ErrParticipantNotFound
	}

	delete(room.Participants, userID)
	room.LastActivity = time.Now()
	if err := r.setRoom(ctx, room); err != nil {
		return err
	}

	r.mu.Lock()
	if sessions := r.sessions[roomID]; sessions != nil {
		delete(sessions, userID)
	}
	r.mu.Unlock()
	return nil
}

func (r *RedisRoomRegistry) GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.RoomInfo, error) {
	room, err := r.getRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}

	info := &domain.RoomInfo{
		ID:           room.ID,
		PostID:       room.PostID,
		HostUserID:   room.HostUserID,
		Active:       room.Active,
		CreatedAt:    room.CreatedAt,
		LastActivity: room.LastActivity,
		ViewerCount:  room.ViewerCount(),
		HasHost:      room.HasHost(),
	}
	for _, p := range room.Participants {
		info.Participants = append(info.Participants, domain.ParticipantInfo{
			UserID:   p.UserID,
			Username: p.Username,
			Role:     p.Role,
			Active:   p.Active,
			JoinedAt: p.JoinedAt,
		})
	}
	return info, nil
}

func (r *RedisRoomRegistry) ListActiveRooms(ctx context.Context) ([]domain.RoomID, error) {
	idStrs, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms from Redis: %w", err)
	}

	var ids []domain.RoomID
	for _, idStr := range idStrs {
		room, err := r.getRoom(ctx, domain.RoomID(idStr))
		if err != nil {
			// Skip rooms that no longer exist
			continue
		}
		if room.Active {
			ids = append(ids, room.ID)
		}
	}
	return ids, nil
}

func (r *RedisRoomRegistry) CountRooms(ctx context.Context) (int, error) {
	n, err := r.client.SCard(ctx, r.idsKey()).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count rooms in Redis: %w", err)
	}
	return int(n), nil
}

func (r *RedisRoomRegistry) CountParticipants(ctx context.Context) (int, error) {
	rooms, err := r.listRooms(ctx)
	if err != nil {
		return 0, err
	}

	total := 0
	for _, room := range rooms {
		total += len(room.Participants)
	}
	return total, nil
}

func (r *RedisRoomRegistry) CleanupIdleRooms(ctx context.Context, timeout time.Duration) ([]domain.RoomID, error) {
	rooms, err := r.listRooms(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().Add(-timeout)

	var removed []domain.RoomID
	for _, room := range rooms {
		if room.LastActivity.Before(cutoff) {
			if err := r.DeleteRoom(ctx, room.ID); err != nil {
				continue
			}
			removed = append(removed, room.ID)
		}
	}
	return removed, nil
}

func (r *RedisRoomRegistry) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	rooms, err := r.listRooms(ctx)
	if err != nil {
		return nil, err
	}

	stats := &domain.RegistryStats{
		TotalRooms: len(rooms),
	}
	for _, room := range rooms {
		if room.Active {
			stats.ActiveRooms++
		}
		for _, p := range room.Participants {
			stats.TotalParticipants++
			if !p.Active {
				continue
			}
			switch p.Role {
			case domain.RoleHost:
				stats.TotalHosts++
			case domain.RoleViewer:
				stats.TotalViewers++
			}
		}
	}
	return stats, nil
}

func (r *RedisRoomRegistry) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRoomRegistry) getRoom(ctx context.Context, roomID domain.RoomID) (*domain.Room, error) {
	data, err := r.client.Get(ctx, r.roomKey(roomID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get room from Redis: %w", err)
	}

	var room domain.Room
	if err := json.Unmarshal([]byte(data), &room); err != nil {
		return nil, fmt.Errorf("failed to unmarshal room: %w", err)
	}
	if room.Participants == nil {
		room.Participants = make(map[domain.UserID]*domain.Participant)
	}

	r.mu.RLock()
	for userID, session := range r.sessions[roomID] {
		if p, exists := room.Participants[userID]; exists {
			p.Session = session
		}
	}
	r.mu.RUnlock()
	return &room, nil
}

func (r *RedisRoomRegistry) setRoom(ctx context.Context, room *domain.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return fmt.Errorf("failed to marshal room: %w", err)
	}

	if err := r.client.Set(ctx, r.roomKey(room.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set room in Redis: %w", err)
	}
	return nil
}

func (r *RedisRoomRegistry) listRooms(ctx context.Context) ([]*domain.Room, error) {
	idStrs, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list rooms from Redis: %w", err)
	}

	var rooms []*domain.Room
	for _, idStr := range idStrs {
		room, err := r.getRoom(ctx, domain.RoomID(idStr))
		if err != nil {
			continue
		}
		rooms = append(rooms, room)
	}
	return rooms, nil
}
