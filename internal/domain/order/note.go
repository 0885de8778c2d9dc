package order

import (
	"time"

	"github.com/google/uuid"
)

// StatusNote is an append-only timeline entry. FromStatus equals ToStatus for
// plain notes.
type StatusNote struct {
	ID         uuid.UUID
	OrderID    uuid.UUID
	FromStatus Status
	ToStatus   Status
	Actor      string
	Note       string
	CreatedAt  time.Time
}

// IsTransition returns true if the note records a status change
func (n *StatusNote) IsTransition() bool {
	return n.FromStatus != n.ToStatus
}
