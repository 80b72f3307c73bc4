package dto

import "time"

// CreateAgentRequest payload for roster registration.
type CreateAgentRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// UpdateAgentRequest payload; nil fields are left untouched.
type UpdateAgentRequest struct {
	Name     *string `json:"name"`
	IsActive *bool   `json:"is_active"`
}

// AgentResponse is the roster entry shape.
type AgentResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}
