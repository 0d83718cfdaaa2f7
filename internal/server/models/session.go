package models

import (
	"time"

	"github.com/google/uuid"
)

// Session is one authenticated connection from login to logout.
// FinishedAt is nil while the session is active; sessions are closed,
// never deleted.
type Session struct {
	SessionID  uuid.UUID
	UserID     uuid.UUID
	StartedAt  time.Time
	FinishedAt *time.Time
}
