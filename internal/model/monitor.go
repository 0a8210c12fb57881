package model

// -----------------------------------------------------------------
// Hub Stats API Response Models
// -----------------------------------------------------------------

// HubStats is the main response of the stats endpoint.
type HubStats struct {
	Status      string          `json:"status"` // "healthy" or "idle"
	Connections ConnectionStats `json:"connections"`
	Rooms       RoomStats       `json:"rooms"`
	Broadcasts  BroadcastStats  `json:"broadcasts"`
	Sessions    []SessionInfo   `json:"sessions"`
}

// ConnectionStats holds live-connection statistics.
type ConnectionStats struct {
	TotalConnected int `json:"totalConnected"`
}

// RoomStats holds room membership statistics.
type RoomStats struct {
	TotalRooms  int        `json:"totalRooms"`
	RoomDetails []RoomInfo `json:"roomDetails"`
}

// RoomInfo contains membership information for a single room.
type RoomInfo struct {
	RoomID   string   `json:"roomId"`
	Sessions int      `json:"sessions"`
	UserIDs  []string `json:"userIds"`
}

// BroadcastStats counts fan-out outcomes since process start.
type BroadcastStats struct {
	Enqueued int64 `json:"enqueued"`
	Dropped  int64 `json:"dropped"`
}

// SessionInfo describes one connected session.
type SessionInfo struct {
	SessionID string   `json:"sessionId"`
	UserID    string   `json:"userId"`
	Rooms     []string `json:"rooms"`
}
