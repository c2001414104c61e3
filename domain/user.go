package domain

import "time"

// User represents an authenticated identity in the platform.
type User struct {
	ID            string            `json:"id"`
	Email         string            `json:"email,omitempty"`
	Status        string            `json:"status"`
	AgentsEnabled bool              `json:"autonomous_agents_enabled"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

func (u *User) IsActive() bool {
	return u != nil && u.Status == "active"
}
