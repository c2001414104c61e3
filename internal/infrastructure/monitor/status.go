package monitor

import "time"

// Status is the last observed state of the service's collaborators. A collaborator that
// is not configured reports Configured=false and is never counted as offline.
type Status struct {
	PostgreSQL    Component `json:"postgresql"`
	Redis         Component `json:"redis"`
	SpawnBuffer   Component `json:"spawn_buffer"`
	PendingSpawns int       `json:"pending_spawns"`
	LastCheck     time.Time `json:"last_check"`
}

type Component struct {
	Configured bool `json:"configured"`
	Online     bool `json:"online"`
}

func (c Component) healthy() bool {
	return !c.Configured || c.Online
}

// Healthy reports whether every configured collaborator answered.
func (s Status) Healthy() bool {
	return s.PostgreSQL.healthy() && s.Redis.healthy() && s.SpawnBuffer.healthy()
}
