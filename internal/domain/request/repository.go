package request

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines request persistence.
type Repository interface {
	Create(ctx context.Context, r *Request) error
	GetByID(ctx context.Context, requestID uuid.UUID) (*Request, error)
	GetBySessionID(ctx context.Context, sessionID uuid.UUID) (*Request, error)
	ListByCustomer(ctx context.Context, customerID uuid.UUID, limit, offset int) ([]*Request, error)

	// CancelDangling cancels every pending, unbound request for the customer
	// and returns how many rows moved. Used before inserting a fresh request.
	CancelDangling(ctx context.Context, customerID uuid.UUID, at time.Time) (int, error)

	// MarkAccepted binds a mechanic while the request is still pending.
	MarkAccepted(ctx context.Context, requestID, mechanicID uuid.UUID, at time.Time) (bool, error)

	// CompareAndSwapStatus moves requestID from expected to next conditionally.
	CompareAndSwapStatus(ctx context.Context, requestID uuid.UUID, expected, next Status) (bool, error)

	// ExpireStalePending expires pending unbound requests older than cutoff
	// and returns the affected ids.
	ExpireStalePending(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}
