package session

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status represents session status.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusWaiting   Status = "WAITING"
	StatusLive      Status = "LIVE"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
	StatusError     Status = "ERROR"
)

// Type represents the kind of session a customer requested.
type Type string

const (
	TypeChat       Type = "CHAT"
	TypeVideo      Type = "VIDEO"
	TypeDiagnostic Type = "DIAGNOSTIC"
	TypeInPerson   Type = "IN_PERSON"
)

var (
	ErrInvalidTransition = errors.New("invalid session status transition")
	ErrNotParticipant    = errors.New("caller is not a session participant")
)

// IsValidType reports whether t is a known session type.
func IsValidType(t Type) bool {
	switch t {
	case TypeChat, TypeVideo, TypeDiagnostic, TypeInPerson:
		return true
	}
	return false
}

// IsVirtualType reports whether t can be served remotely.
func IsVirtualType(t Type) bool {
	return t != TypeInPerson
}

// Session represents a customer/mechanic session from intake to completion.
// Status is written only through the lifecycle transitions; every store
// write is conditional on the current status.
type Session struct {
	ID              int64           `json:"id"`
	SessionID       uuid.UUID       `json:"sessionId"`
	Type            Type            `json:"type"`
	Status          Status          `json:"status"`
	CustomerID      uuid.UUID       `json:"customerId"`
	MechanicID      *uuid.UUID      `json:"mechanicId,omitempty"`
	PlanCode        string          `json:"planCode"`
	WorkshopID      *uuid.UUID      `json:"workshopId,omitempty"`
	RoomID          *string         `json:"roomId,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	UnattendedAt    *time.Time      `json:"unattendedAt,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	StartedAt       *time.Time      `json:"startedAt,omitempty"`
	EndedAt         *time.Time      `json:"endedAt,omitempty"`
	DurationMinutes *int            `json:"durationMinutes,omitempty"`
}

// CanTransitionTo validates a session status transition. Same-state
// transitions are allowed so duplicate client retries collapse to no-ops.
func (s *Session) CanTransitionTo(target Status) bool {
	if s.Status == target {
		return true
	}
	transitions := map[Status][]Status{
		StatusPending:   {StatusWaiting, StatusCancelled, StatusExpired, StatusError},
		StatusWaiting:   {StatusLive, StatusCompleted, StatusCancelled, StatusExpired, StatusError},
		StatusLive:      {StatusCompleted, StatusCancelled, StatusExpired, StatusError},
		StatusCompleted: {},
		StatusCancelled: {},
		StatusExpired:   {},
		StatusError:     {},
	}
	allowed := transitions[s.Status]
	for _, st := range allowed {
		if st == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the session reached a final status.
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusCancelled, StatusExpired, StatusError:
		return true
	}
	return false
}

// IsActive reports whether the session still occupies its customer.
func (s *Session) IsActive() bool {
	return !s.IsTerminal()
}

// Bound reports whether a mechanic is attached.
func (s *Session) Bound() bool {
	return s.MechanicID != nil
}

// DurationFrom computes the session duration in whole minutes, falling back
// to CreatedAt when the session never went live.
func (s *Session) DurationFrom(now time.Time) int {
	start := s.CreatedAt
	if s.StartedAt != nil {
		start = *s.StartedAt
	}
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int(d / time.Minute)
}

// ParticipantRole identifies a session participant.
type ParticipantRole string

const (
	RoleCustomer ParticipantRole = "CUSTOMER"
	RoleMechanic ParticipantRole = "MECHANIC"
)

// Participant is a join record; upserted so repeated joins are idempotent.
type Participant struct {
	SessionID uuid.UUID       `json:"sessionId"`
	UserID    uuid.UUID       `json:"userId"`
	Role      ParticipantRole `json:"role"`
	JoinedAt  time.Time       `json:"joinedAt"`
}

// EventKind enumerates audit event kinds.
type EventKind string

const (
	EventCreated    EventKind = "CREATED"
	EventAssigned   EventKind = "ASSIGNED"
	EventJoined     EventKind = "JOINED"
	EventStarted    EventKind = "STARTED"
	EventEnded      EventKind = "ENDED"
	EventCancelled  EventKind = "CANCELLED"
	EventExpired    EventKind = "EXPIRED"
	EventUnattended EventKind = "UNATTENDED"
	EventErrored    EventKind = "ERRORED"
)

// Event is an append-only audit record of a session transition.
type Event struct {
	ID        int64           `json:"id"`
	EventID   uuid.UUID       `json:"eventId"`
	SessionID uuid.UUID       `json:"sessionId"`
	Kind      EventKind       `json:"kind"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewEvent builds an audit event for a session transition.
func NewEvent(sessionID uuid.UUID, kind EventKind, actor string, payload json.RawMessage) *Event {
	return &Event{
		EventID:   uuid.New(),
		SessionID: sessionID,
		Kind:      kind,
		Actor:     actor,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}
