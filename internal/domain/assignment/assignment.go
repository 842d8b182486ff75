package assignment

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents assignment status.
type Status string

const (
	StatusQueued   Status = "QUEUED"
	StatusOffered  Status = "OFFERED"
	StatusAccepted Status = "ACCEPTED"
	StatusExpired  Status = "EXPIRED"
)

// ErrAlreadyResolved is the expected conflict outcome when a mechanic loses
// an acceptance race or repeats a terminal operation. Callers should refresh
// their queue, not retry.
var ErrAlreadyResolved = errors.New("assignment already resolved")

// Assignment is a candidate binding between a session and a mechanic.
// Broadcast assignments carry a nil MechanicID until accept; direct
// assignments are pre-targeted and only that mechanic may accept.
type Assignment struct {
	ID           int64           `json:"id"`
	AssignmentID uuid.UUID       `json:"assignmentId"`
	SessionID    uuid.UUID       `json:"sessionId"`
	MechanicID   *uuid.UUID      `json:"mechanicId,omitempty"`
	Status       Status          `json:"status"`
	Metadata     json.RawMessage `json:"metadata,omitempty"`
	OfferedAt    time.Time       `json:"offeredAt"`
	AcceptedAt   *time.Time      `json:"acceptedAt,omitempty"`
}

// Open reports whether the assignment can still be accepted.
func (a *Assignment) Open() bool {
	return a.Status == StatusQueued || a.Status == StatusOffered
}

// Direct reports whether the assignment is pre-targeted at one mechanic.
func (a *Assignment) Direct() bool {
	return a.MechanicID != nil
}

// AcceptableBy reports whether mechanicID may attempt to accept. This is the
// cheap pre-check; the store's conditional update is the actual tie-break.
func (a *Assignment) AcceptableBy(mechanicID uuid.UUID) bool {
	if !a.Open() {
		return false
	}
	if a.Direct() && *a.MechanicID != mechanicID {
		return false
	}
	return true
}
