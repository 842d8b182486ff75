package assignment

//go:generate go run go.uber.org/mock/mockgen -destination=mocks/mock_repository.go -package=mocks . Repository

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines assignment persistence.
type Repository interface {
	Create(ctx context.Context, a *Assignment) error
	GetByID(ctx context.Context, assignmentID uuid.UUID) (*Assignment, error)
	ListOpenForMechanic(ctx context.Context, mechanicID uuid.UUID, limit int) ([]*Assignment, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*Assignment, error)

	// Accept performs the single conditional update that resolves the race:
	// only a row still open and unbound (or pre-bound to this mechanic) is
	// touched. Exactly one concurrent caller observes true.
	Accept(ctx context.Context, assignmentID, mechanicID uuid.UUID, at time.Time) (bool, error)

	// ExpireSiblings invalidates every still-open assignment for the session
	// other than winnerID.
	ExpireSiblings(ctx context.Context, sessionID, winnerID uuid.UUID) (int, error)

	// ExpireForSessions invalidates open assignments belonging to swept
	// sessions.
	ExpireForSessions(ctx context.Context, sessionIDs []uuid.UUID) (int, error)
}
