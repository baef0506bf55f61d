package domain

// RegistryStats is a consistent snapshot of the room registry, computed
// under a single critical section.
type RegistryStats struct {
	TotalRooms        int
	ActiveRooms       int
	TotalParticipants int
	TotalViewers      int
	TotalHosts        int
}

// ServerStats merges a registry snapshot with a peer-table snapshot. The
// two stores are locked independently, so the combined view is eventually
// consistent.
type ServerStats struct {
	TotalRooms         int    `json:"total_rooms"`
	ActiveRooms        int    `json:"active_rooms"`
	TotalPeers         int    `json:"total_peers"`
	TotalViewers       int    `json:"total_viewers"`
	TotalHosts         int    `json:"total_hosts"`
	TotalBytesSent     uint64 `json:"total_bytes_sent"`
	TotalBytesReceived uint64 `json:"total_bytes_received"`
}
