package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/session-hub/session-hub/internal/domain/mechanic"
)

// MechanicRepository implements mechanic.Repository.
type MechanicRepository struct {
	pool *pgxpool.Pool
}

func NewMechanicRepository(pool *pgxpool.Pool) *MechanicRepository {
	return &MechanicRepository{pool: pool}
}

func (r *MechanicRepository) Create(ctx context.Context, p *mechanic.Profile) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO mechanic_profiles
		(mechanic_id, display_name, service_tier, workshop_id, can_accept_sessions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, p.MechanicID, p.DisplayName, p.ServiceTier, p.WorkshopID, p.CanAcceptSessions, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r *MechanicRepository) GetByID(ctx context.Context, mechanicID uuid.UUID) (*mechanic.Profile, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT mechanic_id, display_name, service_tier, workshop_id, can_accept_sessions, created_at, updated_at
		FROM mechanic_profiles WHERE mechanic_id=$1
	`, mechanicID)
	var p mechanic.Profile
	if err := row.Scan(&p.MechanicID, &p.DisplayName, &p.ServiceTier, &p.WorkshopID, &p.CanAcceptSessions, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *MechanicRepository) Update(ctx context.Context, p *mechanic.Profile) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE mechanic_profiles
		SET display_name=$1, service_tier=$2, workshop_id=$3, can_accept_sessions=$4, updated_at=$5
		WHERE mechanic_id=$6
	`, p.DisplayName, p.ServiceTier, p.WorkshopID, p.CanAcceptSessions, time.Now().UTC(), p.MechanicID)
	return err
}
