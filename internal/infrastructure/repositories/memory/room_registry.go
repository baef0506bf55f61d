package memory

import (
	"context"
	"sync"
	"time"

	"streamcast/internal/core/domain"
	"streamcast/internal/core/ports"
)

// MemoryRoomRegistry keeps all rooms under one mutex so every operation,
// including cleanup and stats, observes a consistent view.
type MemoryRoomRegistry struct {
	rooms map[domain.RoomID]*domain.Room
	mu    sync.RWMutex

	// now is replaceable in tests to pin time-boundary behavior.
	now func() time.Time
}

func NewMemoryRoomRegistry() ports.RoomRegistry {
	return &MemoryRoomRegistry{
		rooms: make(map[domain.RoomID]*domain.Room),
		now:   time.Now,
	}
}

func (r *MemoryRoomRegistry) CreateRoom(ctx context.Context, roomID domain.RoomID, postID string, hostUserID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[roomID]; exists {
		return domain.ErrRoomExists
	}

	now := r.now()
	r.rooms[roomID] = &domain.Room{
		ID:           roomID,
		PostID:       postID,
		HostUserID:   hostUserID,
		Active:       true,
		CreatedAt:    now,
		LastActivity: now,
		Participants: make(map[domain.UserID]*domain.Participant),
	}
	return nil
}

func (r *MemoryRoomRegistry) DeleteRoom(ctx context.Context, roomID domain.RoomID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.rooms[roomID]; !exists {
		return domain.ErrRoomNotFound
	}

	delete(r.rooms, roomID)
	return nil
}

func (r *MemoryRoomRegistry) RoomExists(ctx context.Context, roomID domain.RoomID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.rooms[roomID]
	return exists, nil
}

func (r *MemoryRoomRegistry) AddParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID, username string, role domain.Role, session domain.SignalingSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return domain.ErrRoomNotFound
	}

	// One active host per room. Rejoining as the same user replaces the
	// previous membership instead.
	if role == domain.RoleHost {
		for _, p := range room.Participants {
			if p.Role == domain.RoleHost && p.Active && p.UserID != userID {
				return domain.ErrHostAlreadyPresent
			}
		}
	}

	now := r.now()
	room.Participants[userID] = &domain.Participant{
		UserID:   userID,
		Username: username,
		Role:     role,
		Active:   true,
		JoinedAt: now,
		Session:  session,
	}
	room.LastActivity = now
	return nil
}

func (r *MemoryRoomRegistry) RemoveParticipant(ctx context.Context, roomID domain.RoomID, userID domain.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return domain.ErrRoomNotFound
	}

	if _, exists := room.Participants[userID]; !exists {
		return domain.ErrParticipantNotFound
	}

	delete(room.Participants, userID)
	room.LastActivity = r.now()
	return nil
}

func (r *MemoryRoomRegistry) GetRoom(ctx context.Context, roomID domain.RoomID) (*domain.RoomInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, exists := r.rooms[roomID]
	if !exists {
		return nil, domain.ErrRoomNotFound
	}

	return snapshotRoom(room), nil
}

func (r *MemoryRoomRegistry) ListActiveRooms(ctx context.Context) ([]domain.RoomID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []domain.RoomID
	for id, room := range r.rooms {
		if room.Active {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *MemoryRoomRegistry) CountRooms(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms), nil
}

func (r *MemoryRoomRegistry) CountParticipants(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, room := range r.rooms {
		total += len(room.Participants)
	}
	return total, nil
}

func (r *MemoryRoomRegistry) CleanupIdleRooms(ctx context.Context, timeout time.Duration) ([]domain.RoomID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-timeout)

	var removed []domain.RoomID
	for id, room := range r.rooms {
		// Strictly older than the cutoff; a room idle for exactly the
		// timeout survives this sweep.
		if room.LastActivity.Before(cutoff) {
			delete(r.rooms, id)
			removed = append(removed, id)
		}
	}
	return removed, nil
}

func (r *MemoryRoomRegistry) Stats(ctx context.Context) (*domain.RegistryStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &domain.RegistryStats{
		TotalRooms: len(r.rooms),
	}
	for _, room := range r.rooms {
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

func (r *MemoryRoomRegistry) HealthCheck(ctx context.Context) error {
	return nil
}

func snapshotRoom(room *domain.Room) *domain.RoomInfo {
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
	return info
}
