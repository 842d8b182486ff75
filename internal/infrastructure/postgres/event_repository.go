package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/session-hub/session-hub/internal/domain/session"
)

// EventRepository implements session.EventRepository. Rows are append-only.
type EventRepository struct {
	pool *pgxpool.Pool
}

func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

func (r *EventRepository) Append(ctx context.Context, e *session.Event) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_events (event_id, session_id, kind, actor, payload, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, e.EventID, e.SessionID, e.Kind, e.Actor, e.Payload, e.CreatedAt)
	return err
}

func (r *EventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID, limit, offset int) ([]*session.Event, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, event_id, session_id, kind, actor, payload, created_at
		FROM session_events WHERE session_id=$1
		ORDER BY created_at ASC, id ASC
		LIMIT $2 OFFSET $3
	`, sessionID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*session.Event, 0)
	for rows.Next() {
		var e session.Event
		if err := rows.Scan(&e.ID, &e.EventID, &e.SessionID, &e.Kind, &e.Actor, &e.Payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// ParticipantRepository implements session.ParticipantRepository.
type ParticipantRepository struct {
	pool *pgxpool.Pool
}

func NewParticipantRepository(pool *pgxpool.Pool) *ParticipantRepository {
	return &ParticipantRepository{pool: pool}
}

func (r *ParticipantRepository) Upsert(ctx context.Context, p *session.Participant) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_participants (session_id, user_id, role, joined_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (session_id, user_id) DO NOTHING
	`, p.SessionID, p.UserID, p.Role, p.JoinedAt)
	return err
}

func (r *ParticipantRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*session.Participant, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT session_id, user_id, role, joined_at
		FROM session_participants WHERE session_id=$1
		ORDER BY joined_at ASC
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*session.Participant, 0)
	for rows.Next() {
		var p session.Participant
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.Role, &p.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}
