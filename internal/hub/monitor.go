package hub

import (
	"github.com/ViseonDev/afghan-bazar-sub000/internal/model"
)

// MonitorService provides methods to gather hub statistics
type MonitorService struct {
	hub *Hub
}

// NewMonitorService creates a new monitor service
func NewMonitorService(hub *Hub) *MonitorService {
	return &MonitorService{hub: hub}
}

// GetStats gathers and returns all hub statistics
func (ms *MonitorService) GetStats() model.HubStats {
	connectionStats := ms.getConnectionStats()
	roomStats := ms.getRoomStats()
	sessions := ms.getSessionList()

	status := "healthy"
	if connectionStats.TotalConnected == 0 {
		status = "idle"
	}

	return model.HubStats{
		Status:      status,
		Connections: connectionStats,
		Rooms:       roomStats,
		Broadcasts: model.BroadcastStats{
			Enqueued: ms.hub.enqueued.Load(),
			Dropped:  ms.hub.dropped.Load(),
		},
		Sessions: sessions,
	}
}

func (ms *MonitorService) getConnectionStats() model.ConnectionStats {
	ms.hub.sessionsMu.RLock()
	defer ms.hub.sessionsMu.RUnlock()

	return model.ConnectionStats{
		TotalConnected: len(ms.hub.sessions),
	}
}

func (ms *MonitorService) getRoomStats() model.RoomStats {
	stats := model.RoomStats{
		RoomDetails: make([]model.RoomInfo, 0),
	}

	// Iterate through all shards to collect room info
	for _, bucket := range ms.hub.shards {
		bucket.RLock()
		for roomID, room := range bucket.rooms {
			userIDs := make([]string, 0, len(room))
			for _, c := range room {
				userIDs = append(userIDs, c.userID)
			}

			stats.RoomDetails = append(stats.RoomDetails, model.RoomInfo{
				RoomID:   roomID,
				Sessions: len(room),
				UserIDs:  userIDs,
			})
			stats.TotalRooms++
		}
		bucket.RUnlock()
	}

	return stats
}

func (ms *MonitorService) getSessionList() []model.SessionInfo {
	ms.hub.sessionsMu.RLock()
	defer ms.hub.sessionsMu.RUnlock()

	sessions := make([]model.SessionInfo, 0, len(ms.hub.sessions))
	for _, c := range ms.hub.sessions {
		sessions = append(sessions, model.SessionInfo{
			SessionID: c.ID,
			UserID:    c.userID,
			Rooms:     c.JoinedRooms(),
		})
	}
	return sessions
}
