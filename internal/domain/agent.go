package domain

import "time"

// Agent is a roster entry eligible for ticket assignment. The roster is kept
// separate from user accounts and is keyed by email; only administrators
// mutate the active flag.
type Agent struct {
	ID        string
	Name      string
	Email     string
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
