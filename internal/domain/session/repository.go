package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines session persistence. The compare-and-swap methods are
// the only way status moves; callers must treat a false return as losing the
// race, not as an error.
type Repository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	GetActiveByCustomer(ctx context.Context, customerID uuid.UUID) (*Session, error)
	ListByStatus(ctx context.Context, status Status, limit, offset int) ([]*Session, error)

	// CompareAndSwapStatus moves sessionID from expected to next in a single
	// conditional update. Returns false when the row was not in expected.
	CompareAndSwapStatus(ctx context.Context, sessionID uuid.UUID, expected, next Status) (bool, error)

	// BindMechanic attaches a mechanic to a still-unbound session.
	BindMechanic(ctx context.Context, sessionID, mechanicID uuid.UUID) (bool, error)

	// MarkLive stamps startedAt while swapping waiting -> live.
	MarkLive(ctx context.Context, sessionID uuid.UUID, startedAt time.Time) (bool, error)

	// MarkEnded stamps endedAt and duration while swapping status from one of
	// the given states to next.
	MarkEnded(ctx context.Context, sessionID uuid.UUID, from []Status, next Status, endedAt time.Time, durationMinutes int) (bool, error)

	SetRoomID(ctx context.Context, sessionID uuid.UUID, roomID string) error

	// Sweep operations: bulk conditional updates returning affected ids.
	ExpireStalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	FlagUnattended(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	CancelStaleWaiting(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	OrphanStaleLive(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

// ParticipantRepository defines join-record persistence.
type ParticipantRepository interface {
	Upsert(ctx context.Context, p *Participant) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Participant, error)
}

// EventRepository defines the append-only audit log.
type EventRepository interface {
	Append(ctx context.Context, e *Event) error
	ListBySession(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*Event, error)
}
