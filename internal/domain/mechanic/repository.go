package mechanic

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines mechanic profile persistence.
type Repository interface {
	Create(ctx context.Context, p *Profile) error
	GetByID(ctx context.Context, mechanicID uuid.UUID) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
}
