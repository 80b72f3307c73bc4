package domain

import "time"

// RotationCursor is the singleton record holding the index of the last agent
// assigned. It is created on the first assignment, advanced atomically on
// every subsequent one, and never deleted.
type RotationCursor struct {
	LastIndex int
	UpdatedAt time.Time
}
